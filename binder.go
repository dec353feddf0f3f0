package graft

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Binder builds one binding with a fluent API:
//
//	graft.Bind[Greeter](c).To(graft.TypeOf[*English]()).AsSingle()
//	graft.Bind[*Config](c).FromInstance(cfg)
//	graft.Bind[Cache](c).WithID("redis").FromMethod(newRedisCache).AsCached()
//
// The binding is registered when Done is called or, at the latest, before the
// container's next resolution. Errors in the chain are reported at that point.
type Binder struct {
	container *Container
	desc      *BindingDescriptor
	err       error
	once      sync.Once
	done      atomic.Bool
	result    error
	// late is set when the chain is changed after Done.
	late error
}

// Bind starts a binding for contract T.
func Bind[T any](c *Container) *Binder {
	return c.Bind(TypeOf[T]())
}

// Rebind removes every binding of contract T, then starts a new one.
func Rebind[T any](c *Container) *Binder {
	return c.Rebind(TypeOf[T]())
}

// Bind starts a binding shared by every given contract.
func (c *Container) Bind(contracts ...reflect.Type) *Binder {
	b := &Binder{
		container: c,
		desc: &BindingDescriptor{
			Contracts: contracts,
			ToChoice:  ToSelf,
		},
	}

	if len(contracts) == 0 {
		b.fail(newInvalidBindingError(nil, "Bind requires at least one contract"))
	}

	for _, t := range contracts {
		if t == nil {
			b.fail(newInvalidBindingError(nil, "Bind received a nil contract"))
		}
	}

	c.pendingMu.Lock()
	c.pending = append(c.pending, b)
	c.pendingMu.Unlock()

	return b
}

// Rebind unbinds contract, then starts a new binding for it.
func (c *Container) Rebind(contract reflect.Type) *Binder {
	err := c.Unbind(contract)

	b := c.Bind(contract)
	if err != nil {
		b.fail(errors.Wrapf(err, "rebind %s", contract))
	}

	return b
}

// FlushBindings registers every binding still being built. It runs
// automatically before resolution; calling it directly surfaces binding errors
// early.
func (c *Container) FlushBindings() error {
	var err error

	for {
		c.pendingMu.Lock()
		pending := c.pending
		c.pending = nil
		c.pendingMu.Unlock()

		if len(pending) == 0 {
			return err
		}

		for _, b := range pending {
			if b.done.Load() {
				err = multierr.Append(err, b.late)

				continue
			}

			err = multierr.Append(err, b.Done())
		}
	}
}

// To binds the contracts to one or more concrete types. Several concrete
// types produce several bindings of the same contracts.
func (b *Binder) To(concretes ...reflect.Type) *Binder {
	if b.sealed("To") {
		return b
	}

	b.desc.ToChoice = ToConcrete
	b.desc.ConcreteTypes = append(b.desc.ConcreteTypes, concretes...)

	return b
}

// ToSelf binds each contract to itself. This is the default.
func (b *Binder) ToSelf() *Binder {
	if b.sealed("ToSelf") {
		return b
	}

	b.desc.ToChoice = ToSelf
	b.desc.ConcreteTypes = nil

	return b
}

// FromInstance binds the contracts to an existing value.
func (b *Binder) FromInstance(instance any) *Binder {
	if b.sealed("FromInstance") {
		return b
	}

	b.desc.ToChoice = ToInstance
	b.desc.Instance = instance

	return b
}

// FromMethod binds the contracts to a factory function.
func (b *Binder) FromMethod(method MethodFunc) *Binder {
	if b.sealed("FromMethod") {
		return b
	}

	b.desc.ToChoice = ToMethod
	b.desc.Method = method

	return b
}

// FromConstructor registers fn as the constructor of its result type and
// binds the contracts to that type.
func (b *Binder) FromConstructor(fn any) *Binder {
	if b.sealed("FromConstructor") {
		return b
	}

	info, err := analyzeConstructor(fn)
	if err != nil {
		return b.fail(newInvalidBindingError(b.contract(), "invalid constructor: %v", err))
	}

	if err := b.container.RegisterConstructor(fn, false); err != nil {
		return b.fail(err)
	}

	b.desc.ToChoice = ToConcrete
	b.desc.ConcreteTypes = []reflect.Type{info.result}

	return b
}

// WithMemberInjection injects the members of instances returned by FromMethod.
func (b *Binder) WithMemberInjection() *Binder {
	if b.sealed("WithMemberInjection") {
		return b
	}

	b.desc.InjectMembers = true

	return b
}

// FromSubContainer resolves the contracts from a child container installed by
// installer, built once on first use.
func (b *Binder) FromSubContainer(installer Installer) *Binder {
	if b.sealed("FromSubContainer") {
		return b
	}

	b.desc.ToChoice = ToSubContainer
	b.desc.Installer = installer
	b.desc.Scope = ScopeSubContainer

	return b
}

// FromPool hands out instances of the bound concrete type from a pool. Call
// it after To when the contract is an interface.
func (b *Binder) FromPool(opts PoolOptions) *Binder {
	if b.sealed("FromPool") {
		return b
	}

	b.desc.ToChoice = ToPool
	b.desc.Pool = &opts

	return b
}

// AsSingle shares one instance per concrete type and identifier across every
// contract bound to it.
func (b *Binder) AsSingle() *Binder {
	return b.scope("AsSingle", ScopeSingleton)
}

// AsTransient creates a new instance on every resolution.
func (b *Binder) AsTransient() *Binder {
	return b.scope("AsTransient", ScopeTransient)
}

// AsCached creates one instance for this binding.
func (b *Binder) AsCached() *Binder {
	return b.scope("AsCached", ScopeCached)
}

// WithID restricts the binding to requests for identifier id.
func (b *Binder) WithID(id any) *Binder {
	if b.sealed("WithID") {
		return b
	}

	b.desc.Identifier = id

	return b
}

// When restricts the binding to contexts matching cond. Several conditions
// must all hold.
func (b *Binder) When(cond Condition) *Binder {
	if b.sealed("When") {
		return b
	}

	if cond == nil {
		return b.fail(newInvalidBindingError(b.contract(), "When requires a condition"))
	}

	b.desc.Condition = And(b.desc.Condition, cond)

	return b
}

// WhenInjectedInto restricts the binding to injections into one of targets.
func (b *Binder) WhenInjectedInto(targets ...reflect.Type) *Binder {
	return b.When(WhenInjectedInto(targets...))
}

// WhenInjectedIntoInstance restricts the binding to injections into instance.
func (b *Binder) WhenInjectedIntoInstance(instance any) *Binder {
	return b.When(WhenInjectedIntoInstance(instance))
}

// WhenInjectedIntoMember restricts the binding to one member of target.
func (b *Binder) WhenInjectedIntoMember(target reflect.Type, member string) *Binder {
	return b.When(WhenInjectedIntoMember(target, member))
}

// NonLazy marks the binding for instantiation by ResolveNonLazy.
func (b *Binder) NonLazy() *Binder {
	if b.sealed("NonLazy") {
		return b
	}

	b.desc.NonLazy = true

	return b
}

// WithArguments supplies extra constructor arguments, matched by type.
func (b *Binder) WithArguments(args ...any) *Binder {
	if b.sealed("WithArguments") {
		return b
	}

	b.desc.Arguments = append(b.desc.Arguments, ArgsOf(args...)...)

	return b
}

// Descriptor returns the descriptor being built.
func (b *Binder) Descriptor() *BindingDescriptor {
	return b.desc
}

// Done registers the binding. Later calls return the first result, or the
// error of a change made after registration.
func (b *Binder) Done() error {
	b.once.Do(func() {
		b.done.Store(true)

		if b.err != nil {
			b.result = b.err

			return
		}

		b.result = b.container.install(b.desc)
	})

	if b.result != nil {
		return b.result
	}

	return b.late
}

// sealed reports whether the binding was already registered. Changing it then
// has no effect; the first such change is logged, kept for Done and queued
// for the next FlushBindings.
func (b *Binder) sealed(method string) bool {
	if !b.done.Load() {
		return false
	}

	if b.late != nil {
		return true
	}

	c := b.container
	b.late = newInvalidBindingError(b.contract(), "%s called after the binding was registered", method)

	c.logger.Warn("binding changed after registration",
		zap.String("method", method),
		zap.Stringer("contract", b.contract()),
	)

	c.pendingMu.Lock()
	c.pending = append(c.pending, b)
	c.pendingMu.Unlock()

	return true
}

func (b *Binder) scope(method string, s Scope) *Binder {
	if b.sealed(method) {
		return b
	}

	if b.desc.ToChoice == ToSubContainer {
		return b.fail(newInvalidBindingError(b.contract(), "sub-container bindings cannot change scope to %s", s))
	}

	b.desc.Scope = s

	return b
}

func (b *Binder) contract() reflect.Type {
	if len(b.desc.Contracts) == 0 {
		return nil
	}

	return b.desc.Contracts[0]
}

func (b *Binder) fail(err error) *Binder {
	if b.err == nil {
		b.err = err
	}

	return b
}
