package graft

import (
	"reflect"

	"github.com/pkg/errors"
)

// MethodFunc creates an instance for a binding. Dependencies resolved
// through ctx belong to the same resolution and share its cycle checks.
type MethodFunc func(ctx *InjectContext) (any, error)

// MethodProvider creates instances by calling a user-supplied function
// instead of a constructor.
type MethodProvider struct {
	method        MethodFunc
	concrete      reflect.Type
	injectMembers bool
}

// NewMethodProvider returns a provider calling method. concrete is the type
// method produces, or nil when unknown.
func NewMethodProvider(method MethodFunc, concrete reflect.Type) *MethodProvider {
	return &MethodProvider{method: method, concrete: concrete}
}

// WithMemberInjection makes the provider inject the members of each
// instance method returns.
func (p *MethodProvider) WithMemberInjection() *MethodProvider {
	p.injectMembers = true

	return p
}

func (p *MethodProvider) InstanceType(*InjectContext) reflect.Type {
	return p.concrete
}

func (p *MethodProvider) Instances(ctx *InjectContext, args []Arg) ([]any, InjectFunc, error) {
	if len(args) > 0 {
		return nil, nil, newInvalidBindingError(ctx.Contract, "method bindings do not accept arguments")
	}

	ctx, err := providerContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	s := ctx.session
	produced := p.concrete
	if produced == nil {
		produced = ctx.Contract
	}

	if s.validating && !canCreateDuringValidation(produced) {
		return []any{validationMarker{typ: produced}}, nil, nil
	}

	pop, err := s.enterProvider(p, produced)
	if err != nil {
		return nil, nil, err
	}
	defer pop()

	mctx := *ctx
	mctx.concrete = produced

	instance, err := p.method(&mctx)
	if err != nil {
		if _, ok := err.(*Error); ok {
			return nil, nil, err
		}

		return nil, nil, newConstructionError(produced, ctx.ObjectGraph(), errors.WithStack(err))
	}

	if instance == nil && !ctx.Container.allowNullBindings {
		return nil, nil, newConstructionError(produced, ctx.ObjectGraph(), errNilInstance)
	}

	if !p.injectMembers || instance == nil {
		return []any{instance}, nil, nil
	}

	c := ctx.Container
	inject := func() error {
		return c.injectMembers(ctx, p, reflect.TypeOf(instance), instance, nil)
	}

	return []any{instance}, inject, nil
}
