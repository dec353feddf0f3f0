package graft

import (
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Container is a binding registry and resolution engine.
//
// Bindings are declared with the Binder DSL (Bind, Rebind) or registered
// directly as providers. Resolution is safe for concurrent use; Dispose is not
// and must only run once every in-flight resolution has returned.
type Container struct {
	parent       *Container
	registry     *registry
	introspector TypeIntrospector
	instantiator Instantiator
	injector     *ReflectInjector
	logger       *zap.Logger
	middleware   *middlewareChain
	lock         *buildLock

	allowNullBindings bool
	validateNonLazy   bool

	singletons  map[singletonKey]*CachedProvider
	singletonMu sync.Mutex

	pending   []*Binder
	pendingMu sync.Mutex

	children []*Container
	tracked  []Provider
	mu       sync.Mutex

	disposed atomic.Bool
}

type singletonKey struct {
	concrete reflect.Type
	id       any
}

func newContainer(parent *Container, opts ...Option) *Container {
	c := &Container{
		parent:     parent,
		registry:   newRegistry(),
		logger:     zap.NewNop(),
		middleware: newMiddlewareChain(),
		singletons: make(map[singletonKey]*CachedProvider),
	}

	if parent != nil {
		c.introspector = parent.introspector
		c.instantiator = parent.instantiator
		c.injector = parent.injector
		c.logger = parent.logger
		c.middleware = parent.middleware.clone()
		c.lock = parent.lock
		c.allowNullBindings = parent.allowNullBindings
		c.validateNonLazy = parent.validateNonLazy
	} else {
		c.injector = NewReflectInjector()
		c.introspector = c.injector
		c.instantiator = c.injector
		c.lock = newBuildLock()
	}

	for _, opt := range opts {
		opt(c)
	}

	// The container is always resolvable from itself.
	_ = c.registry.register(containerType, &providerEntry{provider: NewInstanceProvider(c)})

	return c
}

// CreateSubContainer returns a child container sharing this container's
// introspector, instantiator, logger and middleware. The child sees none of
// the parent's bindings except those bridged with BridgeParent. Children are
// disposed with their parent.
func (c *Container) CreateSubContainer(opts ...Option) *Container {
	child := newContainer(c, opts...)

	c.mu.Lock()
	c.children = append(c.children, child)
	c.mu.Unlock()

	return child
}

// Parent returns the container this one was created from, or nil.
func (c *Container) Parent() *Container {
	return c.parent
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Injector returns the default reflect injector, or nil when both the
// introspector and the instantiator were replaced.
func (c *Container) Injector() *ReflectInjector {
	return c.injector
}

// RegisterConstructor registers fn with the container's reflect injector.
func (c *Container) RegisterConstructor(fn any, preferred bool) error {
	if c.injector == nil {
		return newInvalidBindingError(nil, "container has no reflect injector to register constructors with")
	}

	return c.injector.RegisterConstructor(fn, preferred)
}

// BridgeParent makes contracts resolvable in this container by resolving them
// from the parent.
func (c *Container) BridgeParent(contracts ...reflect.Type) error {
	if c.parent == nil {
		return newInvalidBindingError(nil, "container has no parent to bridge to")
	}

	var err error

	for _, contract := range contracts {
		err = multierr.Append(err, c.RegisterProvider(contract, &parentProvider{parent: c.parent}))
	}

	return err
}

// RegisterProvider registers p under contract.
func (c *Container) RegisterProvider(contract reflect.Type, p Provider, opts ...ProviderOption) error {
	if c.isDisposed() {
		return ErrContainerDisposed
	}

	if contract == nil || p == nil {
		return newInvalidBindingError(contract, "contract and provider are required")
	}

	entry := &providerEntry{provider: p}
	for _, opt := range opts {
		opt(entry)
	}

	if entry.identifier != nil && !reflect.TypeOf(entry.identifier).Comparable() {
		return newInvalidBindingError(contract, "identifier of type %T is not comparable", entry.identifier)
	}

	if err := c.registry.register(contract, entry); err != nil {
		return err
	}

	c.logger.Debug("binding registered",
		zap.Stringer("contract", contract),
		zap.String("provider", providerName(p)),
		zap.Any("identifier", entry.identifier),
	)

	return nil
}

// UnregisterProvider removes p from every contract and disposes it.
func (c *Container) UnregisterProvider(p Provider) error {
	if c.isDisposed() {
		return ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return err
	}

	if c.registry.unregister(p) == 0 {
		return newNotRegisteredError(p)
	}

	c.logger.Debug("binding unregistered", zap.String("provider", providerName(p)))

	return c.disposeProvider(p)
}

// Unbind removes every registration of contract. Providers left without any
// contract are disposed.
func (c *Container) Unbind(contract reflect.Type) error {
	if c.isDisposed() {
		return ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return err
	}

	var err error

	for _, p := range c.registry.removeContract(contract) {
		err = multierr.Append(err, c.disposeProvider(p))
	}

	c.logger.Debug("contract unbound", zap.Stringer("contract", contract))

	return err
}

// Lookup returns the providers of contract that match ctx, in registration
// order. A nil ctx matches unconditional bindings without identifier.
func (c *Container) Lookup(contract reflect.Type, ctx *InjectContext) []Provider {
	_ = c.FlushBindings()

	ctx = c.rootContext(contract, ctx)
	ctx.Contract = contract

	var out []Provider
	for _, e := range c.registry.lookup(ctx) {
		out = append(out, e.provider)
	}

	return out
}

// HasBinding reports whether contract has a matching unconditional binding.
func (c *Container) HasBinding(contract reflect.Type) bool {
	return c.HasBindingContext(NewContext(contract))
}

// HasBindingID reports whether contract has a binding with identifier id.
func (c *Container) HasBindingID(contract reflect.Type, id any) bool {
	return c.HasBindingContext(&InjectContext{Contract: contract, Identifier: id})
}

// HasBindingContext reports whether any binding of ctx.Contract matches ctx.
func (c *Container) HasBindingContext(ctx *InjectContext) bool {
	if ctx == nil || c.isDisposed() {
		return false
	}

	return len(c.Lookup(ctx.Contract, ctx)) > 0
}

// Resolve returns the single instance bound to contract.
func (c *Container) Resolve(contract reflect.Type) (any, error) {
	return c.ResolveContext(NewContext(contract))
}

// ResolveID returns the single instance bound to contract with identifier id.
func (c *Container) ResolveID(contract reflect.Type, id any) (any, error) {
	return c.ResolveContext(&InjectContext{Contract: contract, Identifier: id})
}

// TryResolve is Resolve that returns nil instead of a missing or ambiguous
// binding error.
func (c *Container) TryResolve(contract reflect.Type) (any, error) {
	return c.ResolveContext(&InjectContext{Contract: contract, Optional: true})
}

// ResolveContext resolves ctx.Contract for the call site described by ctx.
// It starts a new resolution unless ctx already belongs to one.
func (c *Container) ResolveContext(ctx *InjectContext) (any, error) {
	if c.isDisposed() {
		return nil, ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return nil, err
	}

	if ctx == nil || ctx.Contract == nil {
		return nil, newInvalidBindingError(nil, "resolve requires a contract")
	}

	ctx = c.rootContext(ctx.Contract, ctx)

	if err := c.middleware.beforeResolve(ctx); err != nil {
		return nil, err
	}

	instance, err := c.resolveSingle(ctx)

	if mwErr := c.middleware.afterResolve(ctx, instance, err); mwErr != nil {
		return nil, mwErr
	}

	if err != nil {
		return nil, err
	}

	return instance, nil
}

// ResolveAll returns an instance from every binding of contract, in
// registration order. No binding is not an error.
func (c *Container) ResolveAll(contract reflect.Type) ([]any, error) {
	return c.ResolveAllContext(NewContext(contract))
}

// ResolveAllContext is ResolveAll for the call site described by ctx.
func (c *Container) ResolveAllContext(ctx *InjectContext) ([]any, error) {
	if c.isDisposed() {
		return nil, ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return nil, err
	}

	if ctx == nil || ctx.Contract == nil {
		return nil, newInvalidBindingError(nil, "resolve requires a contract")
	}

	return c.resolveAll(c.rootContext(ctx.Contract, ctx))
}

// ResolveTypeAll returns the concrete type of every binding of contract
// without constructing anything. Types that cannot be known before
// construction are reported as the contract itself.
func (c *Container) ResolveTypeAll(contract reflect.Type) []reflect.Type {
	_ = c.FlushBindings()

	ctx := c.rootContext(contract, nil)

	var out []reflect.Type

	for _, e := range c.registry.lookup(ctx) {
		t := e.provider.InstanceType(ctx)
		if t == nil {
			t = contract
		}

		out = append(out, t)
	}

	return out
}

// AllContracts returns every bound contract in first-registration order.
func (c *Container) AllContracts() []reflect.Type {
	_ = c.FlushBindings()

	return c.registry.contracts()
}

// DependencyContracts returns the contracts concrete depends on through its
// constructor, fields and inject methods.
func (c *Container) DependencyContracts(concrete reflect.Type) ([]reflect.Type, error) {
	ctor, fields, methods, err := dependencies(c.introspector, concrete)
	if err != nil {
		return nil, err
	}

	var out []reflect.Type
	for _, d := range ctor {
		out = append(out, d.Type)
	}

	for _, d := range fields {
		out = append(out, d.Type)
	}

	for _, m := range methods {
		for _, d := range m.Params {
			out = append(out, d.Type)
		}
	}

	return out, nil
}

// Instantiate constructs concrete, which need not be bound, resolving its
// dependencies from the container. args are matched to dependencies by type
// before the container is consulted, and every arg must be used.
func (c *Container) Instantiate(concrete reflect.Type, args ...any) (any, error) {
	if c.isDisposed() {
		return nil, ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return nil, err
	}

	ctx := c.rootContext(concrete, nil)
	p := NewTransientProvider(concrete, ArgsOf(args...)...)

	instances, err := c.instancesOf(ctx, p)
	if err != nil {
		return nil, err
	}

	return instances[0], nil
}

// Inject injects the members of an existing instance and runs its
// PostInject hook.
func (c *Container) Inject(instance any, args ...any) error {
	if c.isDisposed() {
		return ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return err
	}

	if instance == nil {
		return newInvalidBindingError(nil, "cannot inject into nil")
	}

	concrete := reflect.TypeOf(instance)
	ctx := c.rootContext(concrete, nil)

	return c.injectMembers(ctx, nil, concrete, instance, newArgList(ArgsOf(args...)))
}

// ResolveNonLazy resolves every binding marked NonLazy, in registration order.
// With ValidateOnResolveNonLazy set, the whole container is validated first
// and nothing is instantiated if validation fails.
func (c *Container) ResolveNonLazy() error {
	if c.isDisposed() {
		return ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return err
	}

	if c.validateNonLazy {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	var err error

	for _, contract := range c.registry.contracts() {
		for _, e := range c.registry.entries(contract) {
			if !e.nonLazy {
				continue
			}

			ctx := c.rootContext(contract, &InjectContext{Contract: contract, Identifier: e.identifier})

			if _, resolveErr := c.resolveFromProvider(ctx, e.provider); resolveErr != nil {
				err = multierr.Append(err, resolveErr)

				continue
			}

			c.logger.Debug("non-lazy binding instantiated", zap.Stringer("contract", contract))
		}
	}

	return err
}

// Release returns instance to the pooled binding of contract it was taken from.
func (c *Container) Release(contract reflect.Type, instance any) error {
	if c.isDisposed() {
		return ErrContainerDisposed
	}

	for _, e := range c.registry.entries(contract) {
		if r, ok := e.provider.(Releaser); ok {
			return r.Release(instance)
		}
	}

	return newInvalidBindingError(contract, "no pooled binding for %s", typeName(contract))
}

// Dispose disposes child containers, then cached instances in reverse order of
// creation, then every provider. Disposing twice returns ErrContainerDisposed.
func (c *Container) Dispose() error {
	if !c.disposed.CompareAndSwap(false, true) {
		return ErrContainerDisposed
	}

	var err error

	c.mu.Lock()
	children := c.children
	tracked := c.tracked
	c.children, c.tracked = nil, nil
	c.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		if childErr := children[i].Dispose(); childErr != nil && childErr != ErrContainerDisposed {
			err = multierr.Append(err, childErr)
		}
	}

	disposed := make(map[Provider]struct{}, len(tracked))

	for i := len(tracked) - 1; i >= 0; i-- {
		disposed[tracked[i]] = struct{}{}
		err = multierr.Append(err, c.disposeProvider(tracked[i]))
	}

	for _, p := range c.registry.distinctProviders() {
		if _, ok := disposed[p]; ok {
			continue
		}

		err = multierr.Append(err, c.disposeProvider(p))
	}

	if err != nil {
		c.logger.Error("container disposed with errors", zap.Error(err))
	}

	return err
}

func (c *Container) isDisposed() bool {
	return c.disposed.Load()
}

// rootContext prepares ctx to start a resolution in c.
func (c *Container) rootContext(contract reflect.Type, ctx *InjectContext) *InjectContext {
	if ctx == nil {
		ctx = NewContext(contract)
	} else {
		cp := *ctx
		ctx = &cp
	}

	ctx.Container = c
	if ctx.session == nil {
		ctx.session = newSession(false)
	}

	return ctx
}

// track records a populated cache for teardown.
func (c *Container) track(p Provider) {
	c.mu.Lock()
	c.tracked = append(c.tracked, p)
	c.mu.Unlock()
}

// untrack forgets p in c and its descendants, which may have populated a
// cache registered here.
func (c *Container) untrack(p Provider) {
	c.mu.Lock()
	for i, t := range c.tracked {
		if t == p {
			c.tracked = append(c.tracked[:i], c.tracked[i+1:]...)

			break
		}
	}
	children := append([]*Container(nil), c.children...)
	c.mu.Unlock()

	for _, child := range children {
		child.untrack(p)
	}
}

func (c *Container) disposeProvider(p Provider) error {
	c.dropSingleton(p)
	c.untrack(p)

	d, ok := p.(Disposable)
	if !ok {
		return nil
	}

	if err := d.Dispose(); err != nil {
		return err
	}

	c.logger.Debug("provider disposed", zap.String("provider", providerName(p)))

	return nil
}

// singletonProvider returns the cache shared by every singleton binding of
// concrete and id, creating it around inner on first use.
func (c *Container) singletonProvider(concrete reflect.Type, id any, inner Provider) *CachedProvider {
	c.singletonMu.Lock()
	defer c.singletonMu.Unlock()

	key := singletonKey{concrete: concrete, id: id}
	if p, ok := c.singletons[key]; ok {
		return p
	}

	p := NewCachedProvider(inner)
	c.singletons[key] = p

	return p
}

func (c *Container) dropSingleton(p Provider) {
	cp, ok := p.(*CachedProvider)
	if !ok {
		return
	}

	c.singletonMu.Lock()
	defer c.singletonMu.Unlock()

	for key, sp := range c.singletons {
		if sp == cp {
			delete(c.singletons, key)
		}
	}
}

func providerName(p Provider) string {
	return reflect.TypeOf(p).String()
}
