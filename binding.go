package graft

import (
	"reflect"

	"go.uber.org/multierr"
)

// BindingDescriptor is the finished description of one binding. The binder
// builds it; once registered it is never modified.
type BindingDescriptor struct {
	Contracts     []reflect.Type
	Scope         Scope
	ToChoice      ToChoice
	ConcreteTypes []reflect.Type

	Instance      any
	Method        MethodFunc
	InjectMembers bool
	Installer     Installer
	Pool          *PoolOptions

	Identifier any
	Condition  Condition
	NonLazy    bool
	Arguments  []Arg
}

// Validate reports structural problems. allowNull permits nil instances.
func (d *BindingDescriptor) Validate(allowNull bool) error {
	if len(d.Contracts) == 0 {
		return newInvalidBindingError(nil, "binding has no contract")
	}

	contract := d.Contracts[0]

	if d.Identifier != nil && !reflect.TypeOf(d.Identifier).Comparable() {
		return newInvalidBindingError(contract, "identifier of type %T is not comparable", d.Identifier)
	}

	if len(d.Arguments) > 0 && d.ToChoice != ToSelf && d.ToChoice != ToConcrete && d.ToChoice != ToPool {
		return newInvalidBindingError(contract, "arguments are only supported for constructed bindings, not %s", d.ToChoice)
	}

	if (d.Scope == ScopeSubContainer) != (d.ToChoice == ToSubContainer) {
		return newInvalidBindingError(contract, "sub-container scope and FromSubContainer must be used together")
	}

	var err error

	switch d.ToChoice {
	case ToSelf:
		for _, t := range d.Contracts {
			if t.Kind() == reflect.Interface {
				err = multierr.Append(err, newInvalidBindingError(t, "cannot bind interface %s to itself", t))
			}
		}
	case ToConcrete:
		if len(d.ConcreteTypes) == 0 {
			return newInvalidBindingError(contract, "To requires at least one concrete type")
		}

		err = multierr.Append(err, d.checkConcretes())
	case ToInstance:
		if d.Instance == nil {
			if !allowNull {
				return newInvalidBindingError(contract, "instance for %s is nil; enable null bindings to allow it", typeName(contract))
			}

			break
		}

		for _, t := range d.Contracts {
			if !reflect.TypeOf(d.Instance).AssignableTo(t) {
				err = multierr.Append(err, newInvalidBindingError(t,
					"instance of type %T does not satisfy %s", d.Instance, t))
			}
		}
	case ToMethod:
		if d.Method == nil {
			return newInvalidBindingError(contract, "FromMethod requires a method")
		}
	case ToSubContainer:
		if d.Installer == nil {
			return newInvalidBindingError(contract, "FromSubContainer requires an installer")
		}
	case ToPool:
		if d.Pool == nil {
			return newInvalidBindingError(contract, "FromPool requires options")
		}

		if d.Pool.MaxSize > 0 && d.Pool.InitialSize > d.Pool.MaxSize {
			return newInvalidBindingError(contract, "pool initial size %d exceeds max size %d", d.Pool.InitialSize, d.Pool.MaxSize)
		}

		if d.Scope == ScopeSingleton || d.Scope == ScopeCached {
			return newInvalidBindingError(contract, "pooled bindings manage their own instances and cannot be cached")
		}

		if len(d.ConcreteTypes) > 1 || (len(d.ConcreteTypes) == 0 && len(d.Contracts) > 1) {
			return newInvalidBindingError(contract, "pooled bindings need exactly one concrete type")
		}

		if len(d.ConcreteTypes) == 0 && contract.Kind() == reflect.Interface {
			return newInvalidBindingError(contract, "cannot pool interface %s without a concrete type", contract)
		}

		err = multierr.Append(err, d.checkConcretes())
	}

	return err
}

func (d *BindingDescriptor) checkConcretes() error {
	var err error

	for _, concrete := range d.ConcreteTypes {
		if concrete.Kind() == reflect.Interface {
			err = multierr.Append(err, newInvalidBindingError(concrete, "concrete type %s is an interface", concrete))

			continue
		}

		for _, contract := range d.Contracts {
			if !concrete.AssignableTo(contract) {
				err = multierr.Append(err, newInvalidBindingError(contract,
					"%s does not satisfy contract %s", concrete, contract))
			}
		}
	}

	return err
}

// install turns a validated descriptor into providers and registers them.
func (c *Container) install(d *BindingDescriptor) error {
	if d.Scope == ScopeUnset {
		d.Scope = ScopeTransient
	}

	if err := d.Validate(c.allowNullBindings); err != nil {
		return err
	}

	opts := []ProviderOption{
		WithIdentifier(d.Identifier),
		WithCondition(d.Condition),
		withDescriptor(d),
	}
	if d.NonLazy {
		opts = append(opts, AsNonLazy())
	}

	register := func(contract reflect.Type, p Provider) error {
		return c.RegisterProvider(contract, p, opts...)
	}

	var err error

	switch d.ToChoice {
	case ToSelf:
		for _, contract := range d.Contracts {
			err = multierr.Append(err, register(contract, c.constructedProvider(d, contract)))
		}
	case ToConcrete:
		for _, concrete := range d.ConcreteTypes {
			p := c.constructedProvider(d, concrete)
			for _, contract := range d.Contracts {
				err = multierr.Append(err, register(contract, p))
			}
		}
	case ToInstance:
		p := NewInstanceProvider(d.Instance)
		for _, contract := range d.Contracts {
			err = multierr.Append(err, register(contract, p))
		}
	case ToMethod:
		mp := NewMethodProvider(d.Method, nil)
		if d.InjectMembers {
			mp.WithMemberInjection()
		}

		var p Provider = mp
		if d.Scope == ScopeSingleton || d.Scope == ScopeCached {
			p = NewCachedProvider(mp)
		}

		for _, contract := range d.Contracts {
			err = multierr.Append(err, register(contract, p))
		}
	case ToSubContainer:
		p := NewSubContainerProvider(d.Installer, nil)
		for _, contract := range d.Contracts {
			err = multierr.Append(err, register(contract, p))
		}
	case ToPool:
		concrete := d.Contracts[0]
		if len(d.ConcreteTypes) == 1 {
			concrete = d.ConcreteTypes[0]
		}

		p := NewPooledProvider(c, NewTransientProvider(concrete, d.Arguments...), *d.Pool)
		for _, contract := range d.Contracts {
			err = multierr.Append(err, register(contract, p))
		}
	}

	return err
}

// constructedProvider returns the provider building concrete for d's scope.
// Singleton bindings of the same concrete type and identifier share one cache.
func (c *Container) constructedProvider(d *BindingDescriptor, concrete reflect.Type) Provider {
	base := NewTransientProvider(concrete, d.Arguments...)

	switch d.Scope {
	case ScopeSingleton:
		return c.singletonProvider(concrete, d.Identifier, base)
	case ScopeCached:
		return NewCachedProvider(base)
	default:
		return base
	}
}
