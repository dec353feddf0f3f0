package graft

import (
	"reflect"

	"go.uber.org/multierr"
)

// ValidateResolve walks the object graph of contract without constructing
// anything except types implementing AllowDuringValidation. Every missing,
// ambiguous or circular dependency is reported as a separate ErrValidation
// entry; an empty result means the graph is resolvable.
func (c *Container) ValidateResolve(contract reflect.Type) []error {
	return c.ValidateResolveContext(NewContext(contract))
}

// ValidateResolveContext is ValidateResolve for the call site described by ctx.
func (c *Container) ValidateResolveContext(ctx *InjectContext) []error {
	if c.isDisposed() {
		return []error{ErrContainerDisposed}
	}

	if err := c.FlushBindings(); err != nil {
		return wrapValidation(multierr.Errors(err))
	}

	s := newSession(true)

	cp := *ctx
	cp.session = s

	if _, err := c.resolveSingle(c.rootContext(ctx.Contract, &cp)); err != nil {
		s.record(err)
	}

	return wrapValidation(s.errs)
}

// Validate checks every registered binding the way ValidateResolve does and
// returns the combined errors, or nil.
func (c *Container) Validate() error {
	if c.isDisposed() {
		return ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return err
	}

	s := newSession(true)

	for _, contract := range c.registry.contracts() {
		for _, e := range c.registry.entries(contract) {
			ctx := c.rootContext(contract, &InjectContext{
				Contract:   contract,
				Identifier: e.identifier,
				session:    s,
			})

			if _, err := c.resolveFromProvider(ctx, e.provider); err != nil {
				s.record(err)
			}
		}
	}

	return multierr.Combine(wrapValidation(s.errs)...)
}

func wrapValidation(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		out = append(out, newValidationError(err))
	}

	return out
}
