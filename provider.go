package graft

import "reflect"

// InjectFunc completes a construction started by Provider.Instances by
// injecting members. It is nil when there is nothing left to do.
type InjectFunc func() error

// Provider produces instances for one binding.
//
// Instances returns the values together with a deferred inject step. The
// resolution engine runs the inject step after any cache has stored the values,
// which lets members of a cached object refer back to it.
type Provider interface {
	// InstanceType is the concrete type the provider will produce for ctx, or
	// nil when it cannot tell without constructing.
	InstanceType(ctx *InjectContext) reflect.Type

	// Instances produces values for ctx. args are extra typed arguments that
	// take precedence over container lookups for constructor parameters.
	Instances(ctx *InjectContext, args []Arg) ([]any, InjectFunc, error)
}

// Releaser is implemented by providers that hand out instances which must be
// given back, such as pools.
type Releaser interface {
	Release(instance any) error
}

// ProviderOption configures a registration.
type ProviderOption func(*providerEntry)

// WithIdentifier registers the provider under an identifier. Only requests
// for the same identifier match it.
func WithIdentifier(id any) ProviderOption {
	return func(e *providerEntry) {
		e.identifier = id
	}
}

// WithCondition restricts the registration to contexts for which cond holds.
func WithCondition(cond Condition) ProviderOption {
	return func(e *providerEntry) {
		e.condition = And(e.condition, cond)
	}
}

// AsNonLazy marks the registration for instantiation by ResolveNonLazy.
func AsNonLazy() ProviderOption {
	return func(e *providerEntry) {
		e.nonLazy = true
	}
}

func withDescriptor(d *BindingDescriptor) ProviderOption {
	return func(e *providerEntry) {
		e.descriptor = d
	}
}

// providerEntry is one registration of a provider under a contract.
type providerEntry struct {
	provider   Provider
	identifier any
	condition  Condition
	nonLazy    bool
	descriptor *BindingDescriptor
}

func (e *providerEntry) matches(ctx *InjectContext) bool {
	if !sameValue(e.identifier, ctx.Identifier) {
		return false
	}

	return e.condition == nil || e.condition(ctx)
}

// providerContext prepares ctx for a provider call. A context built with
// NewContext has no session yet and gets a fresh one; it must name the
// container to resolve dependencies from.
func providerContext(ctx *InjectContext) (*InjectContext, error) {
	if ctx == nil {
		return nil, newInvalidBindingError(nil, "provider called without a context")
	}

	if ctx.Container == nil {
		return nil, newInvalidBindingError(ctx.Contract, "provider called without a container in its context")
	}

	if ctx.session == nil {
		return ctx.Container.rootContext(ctx.Contract, ctx), nil
	}

	return ctx, nil
}
