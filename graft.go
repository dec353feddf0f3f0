// Package graft is a dependency injection container built around a binding
// registry and a resolution engine.
//
// Bindings map a contract type, optionally qualified by an identifier and a
// condition, to a provider that knows how to produce instances:
//
//	c := graft.New()
//	graft.Bind[Logger](c).To(graft.TypeOf[*ConsoleLogger]()).AsSingle()
//	graft.Bind[*Service](c).AsTransient()
//
//	svc, err := graft.Resolve[*Service](c)
//
// Constructors are registered with RegisterConstructor or FromConstructor;
// types without one are zero-allocated and receive their dependencies
// through `inject` struct tags and Inject methods. Validate walks every
// binding without constructing anything and reports missing, ambiguous and
// circular dependencies together.
package graft

// New creates a root container.
func New(opts ...Option) *Container {
	return newContainer(nil, opts...)
}
