package graft

import "fmt"

// Resolve with type safety.
func Resolve[T any](c *Container) (T, error) {
	return resolveAs[T](&InjectContext{Container: c, Contract: TypeOf[T]()})
}

// ResolveID resolves the binding of T with identifier id.
func ResolveID[T any](c *Container, id any) (T, error) {
	return resolveAs[T](&InjectContext{Container: c, Contract: TypeOf[T](), Identifier: id})
}

// TryResolve resolves T, returning the zero value when it is not bound or is
// bound more than once.
func TryResolve[T any](c *Container) (T, error) {
	return resolveAs[T](&InjectContext{Container: c, Contract: TypeOf[T](), Optional: true})
}

// Must resolves or panics - use only during startup.
func Must[T any](c *Container) T {
	instance, err := Resolve[T](c)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", typeName(TypeOf[T]()), err))
	}

	return instance
}

// ResolveAll resolves every binding of T in registration order.
func ResolveAll[T any](c *Container) ([]T, error) {
	instances, err := c.ResolveAll(TypeOf[T]())
	if err != nil {
		return nil, err
	}

	return castAll[T](NewContext(TypeOf[T]()), instances)
}

// Instantiate constructs T, which need not be bound. See Container.Instantiate.
func Instantiate[T any](c *Container, args ...any) (T, error) {
	var zero T

	instance, err := c.Instantiate(TypeOf[T](), args...)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, newTypeMismatchError(NewContext(TypeOf[T]()), instance)
	}

	return typed, nil
}

// ResolveFrom resolves T as a dependency of whatever ctx is building. Use it
// inside factory methods.
//
// Example:
//
//	graft.Bind[*Service](c).FromMethod(func(ctx *graft.InjectContext) (any, error) {
//	    repo, err := graft.ResolveFrom[Repository](ctx)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return NewService(repo), nil
//	})
func ResolveFrom[T any](ctx *InjectContext) (T, error) {
	var zero T

	instance, err := ctx.Resolve(TypeOf[T]())
	if err != nil || instance == nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		// Validation hands out markers in place of real instances.
		if isMarker(instance) {
			return zero, nil
		}

		return zero, newTypeMismatchError(ctx, instance)
	}

	return typed, nil
}

// ResolveAllFrom resolves every binding of T as a dependency of whatever ctx
// is building.
func ResolveAllFrom[T any](ctx *InjectContext) ([]T, error) {
	instances, err := ctx.ResolveAll(TypeOf[T]())
	if err != nil {
		return nil, err
	}

	return castAll[T](ctx, instances)
}

// Method adapts a typed factory to a MethodFunc.
//
// Example:
//
//	graft.Bind[Cache](c).FromMethod(graft.Method(newRedisCache)).AsSingle()
func Method[T any](fn func(ctx *InjectContext) (T, error)) MethodFunc {
	return func(ctx *InjectContext) (any, error) {
		return fn(ctx)
	}
}

func castAll[T any](ctx *InjectContext, instances []any) ([]T, error) {
	out := make([]T, 0, len(instances))

	for _, instance := range instances {
		if isMarker(instance) {
			continue
		}

		typed, ok := instance.(T)
		if !ok {
			return nil, newTypeMismatchError(ctx, instance)
		}

		out = append(out, typed)
	}

	return out, nil
}
