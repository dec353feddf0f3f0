package graft

import "go.uber.org/zap"

// Option configures a container.
type Option func(*Container)

// WithLogger sets the container logger. A nil logger disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger == nil {
			logger = zap.NewNop()
		}

		c.logger = logger
	}
}

// WithIntrospector replaces the type introspector.
func WithIntrospector(in TypeIntrospector) Option {
	return func(c *Container) {
		c.introspector = in
		if c.instantiator != Instantiator(c.injector) {
			c.injector = nil
		}
	}
}

// WithInstantiator replaces the object instantiator.
func WithInstantiator(in Instantiator) Option {
	return func(c *Container) {
		c.instantiator = in
		if c.introspector != TypeIntrospector(c.injector) {
			c.injector = nil
		}
	}
}

// WithInjector uses injector as both introspector and instantiator.
func WithInjector(injector *ReflectInjector) Option {
	return func(c *Container) {
		c.injector = injector
		c.introspector = injector
		c.instantiator = injector
	}
}

// WithAllowNullBindings permits instance bindings to nil.
func WithAllowNullBindings(allow bool) Option {
	return func(c *Container) {
		c.allowNullBindings = allow
	}
}

// WithMiddleware appends resolution middleware.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Container) {
		for _, m := range mw {
			c.middleware.add(m)
		}
	}
}

// WithValidateOnResolveNonLazy makes ResolveNonLazy validate the container first.
func WithValidateOnResolveNonLazy(validate bool) Option {
	return func(c *Container) {
		c.validateNonLazy = validate
	}
}
