package graft

import (
	"reflect"
	"sync/atomic"

	"go.uber.org/multierr"
)

type cacheState int

const (
	cacheIdle cacheState = iota
	cacheCreating
	cacheInjecting
)

// CachedProvider wraps another provider and keeps the first instances it
// produces. Population happens at most once, under the container's build
// lock; afterwards reads are lock free.
//
// Resolving the provider again while its wrapped provider is still
// constructing is a constructor cycle and fails. Resolving it while members
// are being injected returns the instances already stored, which is how
// circular field dependencies are satisfied.
type CachedProvider struct {
	inner     Provider
	instances []any
	state     cacheState
	done      atomic.Bool
}

// NewCachedProvider wraps inner.
func NewCachedProvider(inner Provider) *CachedProvider {
	return &CachedProvider{inner: inner}
}

func (p *CachedProvider) InstanceType(ctx *InjectContext) reflect.Type {
	return p.inner.InstanceType(ctx)
}

func (p *CachedProvider) Instances(ctx *InjectContext, args []Arg) ([]any, InjectFunc, error) {
	if len(args) > 0 {
		return nil, nil, newInvalidBindingError(ctx.Contract, "cached bindings do not accept arguments at resolve time")
	}

	if p.done.Load() {
		return p.instances, nil, nil
	}

	ctx, err := providerContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	s := ctx.session
	if s.validating {
		return p.validate(ctx)
	}

	lock := ctx.Container.lock
	lock.acquire()
	defer lock.release()

	if p.done.Load() {
		return p.instances, nil, nil
	}

	switch p.state {
	case cacheCreating:
		return nil, nil, newCircularDependencyError(s.path(p.typeFor(ctx)))
	case cacheInjecting:
		return p.instances, nil, nil
	}

	p.state = cacheCreating

	instances, inject, err := p.inner.Instances(ctx, nil)
	if err != nil {
		p.state = cacheIdle

		return nil, nil, err
	}

	p.instances = instances
	p.state = cacheInjecting

	if inject != nil {
		if err := inject(); err != nil {
			p.instances = nil
			p.state = cacheIdle

			return nil, nil, err
		}
	}

	p.state = cacheIdle
	p.done.Store(true)
	ctx.Container.track(p)

	return instances, nil, nil
}

// validate walks the wrapped provider once per validation session without
// populating the cache.
func (p *CachedProvider) validate(ctx *InjectContext) ([]any, InjectFunc, error) {
	s := ctx.session

	if instances, ok := s.validated[p]; ok {
		if instances == nil {
			return nil, nil, newCircularDependencyError(s.path(p.typeFor(ctx)))
		}

		return instances, nil, nil
	}

	s.validated[p] = nil

	instances, inject, err := p.inner.Instances(ctx, nil)
	if err != nil {
		delete(s.validated, p)

		return nil, nil, err
	}

	s.validated[p] = instances

	return instances, inject, nil
}

func (p *CachedProvider) typeFor(ctx *InjectContext) reflect.Type {
	if t := p.inner.InstanceType(ctx); t != nil {
		return t
	}

	return ctx.Contract
}

// Populated reports whether the cache holds its instances.
func (p *CachedProvider) Populated() bool {
	return p.done.Load()
}

// Dispose disposes cached instances and the wrapped provider, and empties the
// cache. It is safe to call more than once.
func (p *CachedProvider) Dispose() error {
	var err error

	if p.done.Load() {
		for i := len(p.instances) - 1; i >= 0; i-- {
			if d, ok := p.instances[i].(Disposable); ok {
				err = multierr.Append(err, d.Dispose())
			}
		}
	}

	p.instances = nil
	p.done.Store(false)

	if d, ok := p.inner.(Disposable); ok {
		err = multierr.Append(err, d.Dispose())
	}

	return err
}
