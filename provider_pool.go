package graft

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Poolable is implemented by pooled instances that reset themselves when
// they move in and out of a pool.
type Poolable interface {
	OnSpawned()
	OnDespawned()
}

// PoolOptions configures a pooled binding.
type PoolOptions struct {
	// InitialSize instances are created the first time the pool is used.
	InitialSize int
	// MaxSize caps the number of live instances. Zero means unbounded.
	MaxSize int

	OnSpawned   func(instance any)
	OnDespawned func(instance any)
}

// PooledProvider reuses instances released back to it. Instances are built
// by a factory provider and must be comparable.
type PooledProvider struct {
	container *Container
	factory   Provider
	opts      PoolOptions

	free   []any
	active map[any]struct{}
	total  int
	warmed bool
	mu     sync.Mutex
}

// NewPooledProvider returns a pool owned by c that builds instances with factory.
func NewPooledProvider(c *Container, factory Provider, opts PoolOptions) *PooledProvider {
	return &PooledProvider{
		container: c,
		factory:   factory,
		opts:      opts,
		active:    make(map[any]struct{}),
	}
}

func (p *PooledProvider) InstanceType(ctx *InjectContext) reflect.Type {
	return p.factory.InstanceType(ctx)
}

func (p *PooledProvider) Instances(ctx *InjectContext, args []Arg) ([]any, InjectFunc, error) {
	if len(args) > 0 {
		return nil, nil, newInvalidBindingError(ctx.Contract, "pooled bindings do not accept arguments")
	}

	ctx, err := providerContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	if ctx.session.validating {
		instances, inject, err := p.factory.Instances(ctx, nil)

		return instances, inject, err
	}

	lock := ctx.Container.lock
	lock.acquire()
	defer lock.release()

	if err := p.warmUp(ctx); err != nil {
		return nil, nil, err
	}

	instance, ok := p.popFree()
	if !ok {
		if err := p.checkCapacity(ctx); err != nil {
			return nil, nil, err
		}

		created, err := p.create(ctx)
		if err != nil {
			return nil, nil, err
		}

		instance = created
	}

	p.spawn(instance)

	return []any{instance}, nil, nil
}

// Release returns instance to the pool. Releasing an instance that is not
// active is logged and otherwise ignored.
func (p *PooledProvider) Release(instance any) error {
	if instance == nil || !reflect.TypeOf(instance).Comparable() {
		return newInvalidBindingError(nil, "cannot release %T to a pool", instance)
	}

	p.mu.Lock()
	if _, ok := p.active[instance]; !ok {
		p.mu.Unlock()

		p.container.logger.Warn("instance released to pool twice or never spawned from it",
			zap.String("type", reflect.TypeOf(instance).String()),
		)

		return nil
	}

	delete(p.active, instance)
	p.mu.Unlock()

	p.despawn(instance)

	p.mu.Lock()
	p.free = append(p.free, instance)
	p.mu.Unlock()

	return nil
}

// ExpandBy adds n inactive instances to the pool.
func (p *PooledProvider) ExpandBy(n int) error {
	c := p.container
	if c.isDisposed() {
		return ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return err
	}

	ctx := c.rootContext(p.factory.InstanceType(nil), nil)

	c.lock.acquire()
	defer c.lock.release()

	for i := 0; i < n; i++ {
		if err := p.checkCapacity(ctx); err != nil {
			return err
		}

		instance, err := p.create(ctx)
		if err != nil {
			return err
		}

		p.mu.Lock()
		p.free = append(p.free, instance)
		p.mu.Unlock()
	}

	return nil
}

// Clear drops every inactive instance, disposing those that are Disposable.
func (p *PooledProvider) Clear() error {
	p.mu.Lock()
	free := p.free
	p.free = nil
	p.total -= len(free)
	p.mu.Unlock()

	var err error

	for _, instance := range free {
		if d, ok := instance.(Disposable); ok {
			err = multierr.Append(err, d.Dispose())
		}
	}

	return err
}

// Dispose clears the pool. Active instances are left to their holders.
func (p *PooledProvider) Dispose() error {
	return p.Clear()
}

// NumTotal is the number of live instances, active or not.
func (p *PooledProvider) NumTotal() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.total
}

// NumActive is the number of instances handed out and not yet released.
func (p *PooledProvider) NumActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.active)
}

// NumInactive is the number of instances waiting in the pool.
func (p *PooledProvider) NumInactive() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.free)
}

// warmUp creates the initial instances on first use. The caller holds the
// build lock.
func (p *PooledProvider) warmUp(ctx *InjectContext) error {
	if p.warmed {
		return nil
	}

	p.warmed = true

	for i := 0; i < p.opts.InitialSize; i++ {
		instance, err := p.create(ctx)
		if err != nil {
			return err
		}

		p.mu.Lock()
		p.free = append(p.free, instance)
		p.mu.Unlock()
	}

	return nil
}

func (p *PooledProvider) create(ctx *InjectContext) (any, error) {
	instances, err := ctx.Container.instancesOf(ctx, p.factory)
	if err != nil {
		return nil, err
	}

	if len(instances) != 1 || instances[0] == nil {
		return nil, newInvalidBindingError(ctx.Contract, "pool factory must produce exactly one instance")
	}

	instance := instances[0]
	if !reflect.TypeOf(instance).Comparable() {
		return nil, newInvalidBindingError(ctx.Contract, "pooled type %T is not comparable", instance)
	}

	p.mu.Lock()
	p.total++
	p.mu.Unlock()

	return instance, nil
}

func (p *PooledProvider) checkCapacity(ctx *InjectContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opts.MaxSize > 0 && p.total >= p.opts.MaxSize {
		return newConstructionError(p.factory.InstanceType(ctx), ctx.ObjectGraph(),
			errors.Errorf("pool reached its maximum size of %d", p.opts.MaxSize))
	}

	return nil
}

func (p *PooledProvider) popFree() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, false
	}

	instance := p.free[n-1]
	p.free = p.free[:n-1]

	return instance, true
}

func (p *PooledProvider) spawn(instance any) {
	p.mu.Lock()
	p.active[instance] = struct{}{}
	p.mu.Unlock()

	if pi, ok := instance.(Poolable); ok {
		pi.OnSpawned()
	}

	if p.opts.OnSpawned != nil {
		p.opts.OnSpawned(instance)
	}
}

func (p *PooledProvider) despawn(instance any) {
	if pi, ok := instance.(Poolable); ok {
		pi.OnDespawned()
	}

	if p.opts.OnDespawned != nil {
		p.opts.OnDespawned(instance)
	}
}
