package graft

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// deferredRef is implemented by the deferred reference types. A dependency
// of type *Lazy[T], *OptionalLazy[T] or *Factory[T] needs no binding of its
// own: the container creates the reference and binds it to the call site.
type deferredRef interface {
	deferredContract() reflect.Type
	deferredOptional() bool
	bindContext(ctx *InjectContext)
}

var deferredRefType = reflect.TypeOf((*deferredRef)(nil)).Elem()

func isDeferredType(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr && t.Implements(deferredRefType)
}

// newDeferred creates the deferred reference requested by ctx. While
// validating only the existence of the target binding is checked.
func (c *Container) newDeferred(ctx *InjectContext) (any, error) {
	ref := reflect.New(ctx.Contract.Elem()).Interface().(deferredRef)

	target := ctx.withContract(ref.deferredContract(), ref.deferredOptional()).detached()
	target.Container = c
	ref.bindContext(target)

	if ctx.session != nil && ctx.session.validating && !ref.deferredOptional() && len(c.registry.lookup(target)) == 0 {
		return fail(ctx, newMissingBindingError(target))
	}

	return ref, nil
}

// Lazy is a dependency resolved on first access. Injecting *Lazy[T] instead
// of T breaks constructor cycles and defers expensive construction.
//
// Example:
//
//	type Service struct {
//	    Repo *graft.Lazy[Repository] `inject:""`
//	}
//
//	repo, err := s.Repo.Get()
//
// Get may be called from a PostInject hook. Getting a dependency that is
// still being constructed on the same goroutine fails as a circular
// dependency.
type Lazy[T any] struct {
	ctx      *InjectContext
	once     sync.Once
	value    T
	err      error
	resolved atomic.Bool
}

// NewLazy returns a reference to T in c.
func NewLazy[T any](c *Container) *Lazy[T] {
	return &Lazy[T]{ctx: &InjectContext{Container: c, Contract: TypeOf[T]()}}
}

// NewLazyID returns a reference to T with identifier id in c.
func NewLazyID[T any](c *Container, id any) *Lazy[T] {
	return &Lazy[T]{ctx: &InjectContext{Container: c, Contract: TypeOf[T](), Identifier: id}}
}

// Get resolves the dependency and returns it.
// The resolution happens only once; subsequent calls return the cached value.
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		l.value, l.err = resolveAs[T](l.ctx)
		l.resolved.Store(l.err == nil)
	})

	return l.value, l.err
}

// MustGet resolves the dependency and returns it, panicking on error.
func (l *Lazy[T]) MustGet() T {
	value, err := l.Get()
	if err != nil {
		panic(fmt.Sprintf("lazy dependency %s failed: %v", typeName(TypeOf[T]()), err))
	}

	return value
}

// IsResolved returns true if the dependency has been resolved.
func (l *Lazy[T]) IsResolved() bool {
	return l.resolved.Load()
}

func (l *Lazy[T]) deferredContract() reflect.Type { return TypeOf[T]() }
func (l *Lazy[T]) deferredOptional() bool { return false }
func (l *Lazy[T]) bindContext(ctx *InjectContext) { l.ctx = ctx }

// OptionalLazy is a Lazy whose dependency may be missing. Get returns the
// zero value without error when nothing is bound.
type OptionalLazy[T any] struct {
	ctx      *InjectContext
	once     sync.Once
	value    T
	err      error
	found    bool
	resolved atomic.Bool
}

// NewOptionalLazy returns an optional reference to T in c.
func NewOptionalLazy[T any](c *Container) *OptionalLazy[T] {
	return &OptionalLazy[T]{ctx: &InjectContext{Container: c, Contract: TypeOf[T](), Optional: true}}
}

// Get resolves the dependency and returns it.
// Returns the zero value without error if the dependency is not found.
func (l *OptionalLazy[T]) Get() (T, error) {
	l.once.Do(func() {
		var instance any

		instance, l.err = l.ctx.Container.ResolveContext(l.ctx)
		if l.err == nil && instance != nil {
			l.value, l.found = instance.(T)
			if !l.found {
				l.err = fmt.Errorf("optional lazy dependency: expected %s, got %T", typeName(TypeOf[T]()), instance)
			}
		}

		l.resolved.Store(l.err == nil)
	})

	return l.value, l.err
}

// MustGet resolves the dependency and returns it, panicking on error.
// Returns the zero value if the dependency is not found (does not panic).
func (l *OptionalLazy[T]) MustGet() T {
	value, err := l.Get()
	if err != nil {
		panic(fmt.Sprintf("optional lazy dependency %s failed: %v", typeName(TypeOf[T]()), err))
	}

	return value
}

// IsResolved returns true if the dependency has been resolved.
func (l *OptionalLazy[T]) IsResolved() bool {
	return l.resolved.Load()
}

// IsFound returns true if the dependency was found (only valid after resolution).
func (l *OptionalLazy[T]) IsFound() bool {
	return l.resolved.Load() && l.found
}

func (l *OptionalLazy[T]) deferredContract() reflect.Type { return TypeOf[T]() }
func (l *OptionalLazy[T]) deferredOptional() bool { return true }
func (l *OptionalLazy[T]) bindContext(ctx *InjectContext) { l.ctx = ctx }

// Factory resolves a new instance on every call to Create. With a transient
// binding each call constructs a fresh instance.
type Factory[T any] struct {
	ctx *InjectContext
}

// NewFactory returns a factory for T in c.
func NewFactory[T any](c *Container) *Factory[T] {
	return &Factory[T]{ctx: &InjectContext{Container: c, Contract: TypeOf[T]()}}
}

// Create resolves and returns an instance of the dependency.
func (f *Factory[T]) Create() (T, error) {
	return resolveAs[T](f.ctx)
}

// MustCreate is Create that panics on error.
func (f *Factory[T]) MustCreate() T {
	value, err := f.Create()
	if err != nil {
		panic(fmt.Sprintf("factory %s failed: %v", typeName(TypeOf[T]()), err))
	}

	return value
}

func (f *Factory[T]) deferredContract() reflect.Type { return TypeOf[T]() }
func (f *Factory[T]) deferredOptional() bool { return false }
func (f *Factory[T]) bindContext(ctx *InjectContext) { f.ctx = ctx }

// resolveAs resolves ctx in a new resolution and converts the result to T.
func resolveAs[T any](ctx *InjectContext) (T, error) {
	var zero T

	instance, err := ctx.Container.ResolveContext(ctx)
	if err != nil {
		return zero, err
	}

	if instance == nil {
		return zero, nil
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, newTypeMismatchError(ctx, instance)
	}

	return typed, nil
}
