package graft

import "reflect"

// BindingInfo describes one registration for inspection.
type BindingInfo struct {
	Contract     reflect.Type
	Identifier   any
	Scope        Scope
	ToChoice     ToChoice
	ConcreteType reflect.Type // nil when unknown before construction
	Provider     string
	Conditional  bool
	NonLazy      bool
}

// Bindings returns every registration in c, grouped by contract in
// first-registration order.
func (c *Container) Bindings() []BindingInfo {
	_ = c.FlushBindings()

	var out []BindingInfo

	for _, contract := range c.registry.contracts() {
		ctx := c.rootContext(contract, nil)

		for _, e := range c.registry.entries(contract) {
			info := BindingInfo{
				Contract:     contract,
				Identifier:   e.identifier,
				ConcreteType: e.provider.InstanceType(ctx),
				Provider:     providerName(e.provider),
				Conditional:  e.condition != nil,
				NonLazy:      e.nonLazy,
			}

			if d := e.descriptor; d != nil {
				info.Scope, info.ToChoice = d.Scope, d.ToChoice
			} else {
				info.Scope, info.ToChoice = describeProvider(e.provider)
			}

			out = append(out, info)
		}
	}

	return out
}

// describeProvider infers scope and target for providers registered
// directly rather than through a binder.
func describeProvider(p Provider) (Scope, ToChoice) {
	switch p := p.(type) {
	case *InstanceProvider:
		return ScopeSingleton, ToInstance
	case *MethodProvider:
		return ScopeTransient, ToMethod
	case *CachedProvider:
		_, to := describeProvider(p.inner)

		return ScopeCached, to
	case *SubContainerProvider, *parentProvider:
		return ScopeSubContainer, ToSubContainer
	case *PooledProvider:
		return ScopeTransient, ToPool
	default:
		return ScopeTransient, ToConcrete
	}
}

// BindingQuery defines criteria for querying bindings. Zero fields match
// everything.
type BindingQuery struct {
	// Contract filters by exact contract type.
	Contract reflect.Type

	// Scope filters by scope. ScopeUnset matches all scopes.
	Scope Scope

	// ToChoice filters by construction method.
	// nil matches all.
	ToChoice *ToChoice

	// Identifier filters by identifier. nil matches bindings with or without one.
	Identifier any

	// Implements keeps bindings whose concrete type is assignable to it.
	// Bindings with an unknown concrete type never match.
	Implements reflect.Type

	// NonLazy filters by the NonLazy flag.
	// nil matches all.
	NonLazy *bool
}

// Query returns the bindings of c matching q.
//
// Example:
//
//	// Find every singleton implementing io.Closer
//	closers := graft.Query(c, graft.BindingQuery{
//	    Scope:      graft.ScopeSingleton,
//	    Implements: graft.TypeOf[io.Closer](),
//	})
func Query(c *Container, q BindingQuery) []BindingInfo {
	var results []BindingInfo

	for _, info := range c.Bindings() {
		if q.Contract != nil && info.Contract != q.Contract {
			continue
		}

		if q.Scope != ScopeUnset && info.Scope != q.Scope {
			continue
		}

		if q.ToChoice != nil && info.ToChoice != *q.ToChoice {
			continue
		}

		if q.Identifier != nil && !sameValue(q.Identifier, info.Identifier) {
			continue
		}

		if q.Implements != nil && (info.ConcreteType == nil || !info.ConcreteType.AssignableTo(q.Implements)) {
			continue
		}

		if q.NonLazy != nil && info.NonLazy != *q.NonLazy {
			continue
		}

		results = append(results, info)
	}

	return results
}

// FindByScope returns all bindings with a specific scope.
func FindByScope(c *Container, s Scope) []BindingInfo {
	return Query(c, BindingQuery{Scope: s})
}

// FindImplementing returns all bindings whose concrete type implements iface.
func FindImplementing(c *Container, iface reflect.Type) []BindingInfo {
	return Query(c, BindingQuery{Implements: iface})
}

// FindNonLazy returns all bindings instantiated by ResolveNonLazy.
func FindNonLazy(c *Container) []BindingInfo {
	nonLazy := true

	return Query(c, BindingQuery{NonLazy: &nonLazy})
}
