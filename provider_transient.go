package graft

import "reflect"

// InstanceProvider always returns the same pre-supplied value.
type InstanceProvider struct {
	instance any
}

// NewInstanceProvider returns a provider for instance.
func NewInstanceProvider(instance any) *InstanceProvider {
	return &InstanceProvider{instance: instance}
}

func (p *InstanceProvider) InstanceType(*InjectContext) reflect.Type {
	if p.instance == nil {
		return nil
	}

	return reflect.TypeOf(p.instance)
}

func (p *InstanceProvider) Instances(ctx *InjectContext, args []Arg) ([]any, InjectFunc, error) {
	if len(args) > 0 {
		return nil, nil, newInvalidBindingError(ctx.Contract, "instance bindings do not accept arguments")
	}

	return []any{p.instance}, nil, nil
}

// TransientProvider constructs a new instance of a concrete type on every call.
type TransientProvider struct {
	concrete reflect.Type
	args     []Arg
}

// NewTransientProvider returns a provider constructing concrete with the
// given extra arguments.
func NewTransientProvider(concrete reflect.Type, args ...Arg) *TransientProvider {
	return &TransientProvider{concrete: concrete, args: args}
}

func (p *TransientProvider) InstanceType(*InjectContext) reflect.Type {
	return p.concrete
}

func (p *TransientProvider) Instances(ctx *InjectContext, args []Arg) ([]any, InjectFunc, error) {
	ctx, err := providerContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	all := make([]Arg, 0, len(p.args)+len(args))
	all = append(all, p.args...)
	all = append(all, args...)
	list := newArgList(all)

	c := ctx.Container

	instance, err := c.construct(ctx, p, p.concrete, list)
	if err != nil {
		return nil, nil, err
	}

	inject := func() error {
		return c.injectMembers(ctx, p, p.concrete, instance, list)
	}

	return []any{instance}, inject, nil
}

// construct resolves the constructor dependencies of concrete and builds it.
// While validating it returns a marker unless concrete is allowed to be built.
func (c *Container) construct(ctx *InjectContext, p Provider, concrete reflect.Type, args *argList) (any, error) {
	s := ctx.session

	pop, err := s.enterType(concrete, p)
	if err != nil {
		return nil, err
	}
	defer pop()

	deps, err := c.introspector.ConstructorDependencies(concrete)
	if err != nil {
		return nil, asGraftError(concrete, s.types(), err)
	}

	values := make([]any, len(deps))
	placeholder := false

	for i, dep := range deps {
		if v, ok := args.take(dep.Type); ok {
			values[i] = v

			continue
		}

		v, err := c.resolveSingle(ctx.dependency(concrete, nil, dep))
		if err != nil {
			return nil, err
		}

		if isMarker(v) {
			placeholder = true
		}

		values[i] = v
	}

	if s.validating && (placeholder || !canCreateDuringValidation(concrete)) {
		return validationMarker{typ: concrete}, nil
	}

	instance, err := c.instantiator.Construct(concrete, values)
	if err != nil {
		return nil, asGraftError(concrete, s.types(), err)
	}

	if instance == nil {
		return nil, newConstructionError(concrete, s.types(), errNilInstance)
	}

	return instance, nil
}

// injectMembers resolves and injects the fields and inject methods of
// instance, then runs its PostInject hook and checks that every arg was used.
// A marker instance only has its dependencies walked.
func (c *Container) injectMembers(ctx *InjectContext, p Provider, concrete reflect.Type, instance any, args *argList) error {
	s := ctx.session

	fields, err := c.introspector.FieldDependencies(concrete)
	if err != nil {
		return asGraftError(concrete, ctx.ObjectGraph(), err)
	}

	methods, err := c.introspector.MethodDependencies(concrete)
	if err != nil {
		return asGraftError(concrete, ctx.ObjectGraph(), err)
	}

	target := instance
	if isMarker(instance) {
		target = nil
	}

	if len(fields) > 0 || len(methods) > 0 {
		pop, err := s.enterType(concrete, p)
		if err != nil {
			return err
		}
		defer pop()

		values := MemberValues{Fields: make([]any, len(fields))}

		for i, dep := range fields {
			if values.Fields[i], err = c.resolveMember(ctx, concrete, target, dep, args); err != nil {
				return err
			}
		}

		for _, m := range methods {
			params := make([]any, len(m.Params))

			for i, dep := range m.Params {
				if params[i], err = c.resolveMember(ctx, concrete, target, dep, args); err != nil {
					return err
				}
			}

			values.Methods = append(values.Methods, params)
		}

		if target != nil {
			if err := c.instantiator.InjectMembers(target, values); err != nil {
				return asGraftError(concrete, s.types(), err)
			}
		}
	}

	if err := args.check(concrete); err != nil {
		return err
	}

	if hook, ok := target.(PostInjector); ok {
		if err := hook.PostInject(); err != nil {
			return newConstructionError(concrete, ctx.ObjectGraph(), err)
		}
	}

	return nil
}

func (c *Container) resolveMember(ctx *InjectContext, concrete reflect.Type, target any, dep InjectableInfo, args *argList) (any, error) {
	if v, ok := args.take(dep.Type); ok {
		return v, nil
	}

	return c.resolveSingle(ctx.dependency(concrete, target, dep))
}

// asGraftError keeps container errors as they are and wraps anything else as
// a construction failure of concrete.
func asGraftError(concrete reflect.Type, path []reflect.Type, err error) error {
	if _, ok := err.(*Error); ok {
		return err
	}

	return newConstructionError(concrete, path, err)
}
