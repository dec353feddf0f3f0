package graft

import "reflect"

// InjectContext describes one resolution request: which contract is wanted,
// with which identifier, and where the result will be injected.
//
// A context is never mutated once handed to a provider. Each dependency gets a
// derived child whose Parent is the request that caused its target to be built,
// so the chain of parents is the path through the object graph.
type InjectContext struct {
	Container *Container

	// Contract is the requested type.
	Contract   reflect.Type
	Identifier any
	Optional   bool

	// TargetType is the concrete type the value is injected into, if any.
	TargetType     reflect.Type
	TargetInstance any
	// MemberName is the field, parameter or method the value is injected into.
	MemberName string

	Parent *InjectContext

	// concrete is the type a factory method is building, used as the target
	// of anything it resolves through this context.
	concrete reflect.Type
	session  *session
}

// NewContext returns a root context for contract.
func NewContext(contract reflect.Type) *InjectContext {
	return &InjectContext{Contract: contract}
}

// AncestorTypes returns the concrete types currently under construction above
// this request, innermost first.
func (ctx *InjectContext) AncestorTypes() []reflect.Type {
	var types []reflect.Type

	for cur := ctx; cur != nil; cur = cur.Parent {
		if cur.TargetType != nil {
			types = append(types, cur.TargetType)
		}
	}

	return types
}

// ObjectGraph returns AncestorTypes root first, ending with the requested contract.
func (ctx *InjectContext) ObjectGraph() []reflect.Type {
	ancestors := ctx.AncestorTypes()
	path := make([]reflect.Type, 0, len(ancestors)+1)

	for i := len(ancestors) - 1; i >= 0; i-- {
		path = append(path, ancestors[i])
	}

	if ctx.Contract != nil {
		path = append(path, ctx.Contract)
	}

	return path
}

// dependency derives the context for a dependency of target.
func (ctx *InjectContext) dependency(target reflect.Type, instance any, info InjectableInfo) *InjectContext {
	return &InjectContext{
		Container:      ctx.Container,
		Contract:       info.Type,
		Identifier:     info.Identifier,
		Optional:       info.Optional,
		TargetType:     target,
		TargetInstance: instance,
		MemberName:     info.MemberName,
		Parent:         ctx,
		session:        ctx.session,
	}
}

// withContract derives a sibling request for another contract at the same
// injection point. Used by the list fallback and deferred references.
func (ctx *InjectContext) withContract(contract reflect.Type, optional bool) *InjectContext {
	cp := *ctx
	cp.Contract = contract
	cp.Optional = optional

	return &cp
}

// withContainer re-targets the request at another container in the same session.
func (ctx *InjectContext) withContainer(c *Container) *InjectContext {
	cp := *ctx
	cp.Container = c

	return &cp
}

// detached returns a copy that starts a new session when resolved.
func (ctx *InjectContext) detached() *InjectContext {
	cp := *ctx
	cp.session = nil

	return &cp
}

func (ctx *InjectContext) target() reflect.Type {
	if ctx.concrete != nil {
		return ctx.concrete
	}

	return ctx.Contract
}

// Resolve resolves contract as a dependency of the value this context is
// building. Factory methods must resolve through their context rather than
// through the container so the request stays in the same session.
func (ctx *InjectContext) Resolve(contract reflect.Type) (any, error) {
	return ctx.resolve(InjectableInfo{Type: contract})
}

// ResolveID is Resolve for an identified binding.
func (ctx *InjectContext) ResolveID(contract reflect.Type, id any) (any, error) {
	return ctx.resolve(InjectableInfo{Type: contract, Identifier: id})
}

// TryResolve is Resolve that yields nil instead of a missing or ambiguous error.
func (ctx *InjectContext) TryResolve(contract reflect.Type) (any, error) {
	return ctx.resolve(InjectableInfo{Type: contract, Optional: true})
}

// ResolveAll resolves every matching binding of contract.
func (ctx *InjectContext) ResolveAll(contract reflect.Type) ([]any, error) {
	child := ctx.dependency(ctx.target(), nil, InjectableInfo{Type: contract})
	if child.session == nil {
		return ctx.Container.ResolveAllContext(child)
	}

	return ctx.Container.resolveAll(child)
}

func (ctx *InjectContext) resolve(info InjectableInfo) (any, error) {
	child := ctx.dependency(ctx.target(), nil, info)
	if child.session == nil {
		return ctx.Container.ResolveContext(child)
	}

	return ctx.Container.resolveSingle(child)
}
