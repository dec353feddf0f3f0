package graft

import "reflect"

// EdgeKind says how a dependency is consumed.
type EdgeKind int

const (
	// EdgeConstructor is a constructor parameter. It must exist before the
	// dependent can be created.
	EdgeConstructor EdgeKind = iota
	// EdgeMember is an injected field or inject method parameter.
	EdgeMember
	// EdgeDeferred is a Lazy, OptionalLazy or Factory reference.
	EdgeDeferred
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeConstructor:
		return "constructor"
	case EdgeMember:
		return "member"
	case EdgeDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// GraphEdge is a dependency of one contract on another.
type GraphEdge struct {
	Contract   reflect.Type
	Identifier any
	Optional   bool
	Kind       EdgeKind
}

// DependencyGraph is a static view of the dependencies between contracts.
type DependencyGraph struct {
	nodes map[reflect.Type]*node
	order []reflect.Type // Preserve registration order
}

type node struct {
	contract reflect.Type
	edges    []GraphEdge
}

// NewDependencyGraph creates an empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[reflect.Type]*node),
	}
}

// AddNode adds contract with its dependencies. Adding an existing contract
// appends to its edges.
func (g *DependencyGraph) AddNode(contract reflect.Type, edges ...GraphEdge) {
	n, ok := g.nodes[contract]
	if !ok {
		n = &node{contract: contract}
		g.nodes[contract] = n
		g.order = append(g.order, contract)
	}

	n.edges = append(n.edges, edges...)
}

// Nodes returns every contract in the order it was added.
func (g *DependencyGraph) Nodes() []reflect.Type {
	return append([]reflect.Type(nil), g.order...)
}

// HasNode checks if a contract exists in the graph.
func (g *DependencyGraph) HasNode(contract reflect.Type) bool {
	_, ok := g.nodes[contract]

	return ok
}

// Dependencies returns every edge leaving contract.
func (g *DependencyGraph) Dependencies(contract reflect.Type) []GraphEdge {
	if n, ok := g.nodes[contract]; ok {
		return n.edges
	}

	return nil
}

// EagerDependencies returns only the constructor dependencies of contract.
// These are the ones that must be resolved before it can be created.
func (g *DependencyGraph) EagerDependencies(contract reflect.Type) []reflect.Type {
	var eager []reflect.Type

	for _, e := range g.Dependencies(contract) {
		if e.Kind == EdgeConstructor {
			eager = append(eager, e.Contract)
		}
	}

	return eager
}

// TopologicalSort returns contracts with every dependency before its
// dependents, following constructor and member edges. Contracts without
// dependencies keep their registration order.
func (g *DependencyGraph) TopologicalSort() ([]reflect.Type, error) {
	return g.sort(func(k EdgeKind) bool { return k != EdgeDeferred })
}

// TopologicalSortEagerOnly is TopologicalSort over constructor edges only.
// Member and deferred dependencies can be satisfied after construction, so
// cycles through them are not reported.
func (g *DependencyGraph) TopologicalSortEagerOnly() ([]reflect.Type, error) {
	return g.sort(func(k EdgeKind) bool { return k == EdgeConstructor })
}

func (g *DependencyGraph) sort(follow func(EdgeKind) bool) ([]reflect.Type, error) {
	visited := make(map[reflect.Type]bool)
	var stack []reflect.Type
	result := make([]reflect.Type, 0, len(g.nodes))

	for _, contract := range g.order {
		if err := g.visit(contract, follow, visited, &stack, &result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// visit performs DFS traversal. stack holds the contracts being visited so
// a cycle can be reported with its full path.
func (g *DependencyGraph) visit(contract reflect.Type, follow func(EdgeKind) bool, visited map[reflect.Type]bool, stack *[]reflect.Type, result *[]reflect.Type) error {
	if visited[contract] {
		return nil
	}

	for i, t := range *stack {
		if t == contract {
			path := append(append([]reflect.Type(nil), (*stack)[i:]...), contract)

			return newCircularDependencyError(path)
		}
	}

	n := g.nodes[contract]
	if n == nil {
		// Not bound here, may be optional or bridged.
		return nil
	}

	*stack = append(*stack, contract)

	for _, e := range n.edges {
		if !follow(e.Kind) {
			continue
		}

		if err := g.visit(e.Contract, follow, visited, stack, result); err != nil {
			return err
		}
	}

	*stack = (*stack)[:len(*stack)-1]
	visited[contract] = true
	*result = append(*result, contract)

	return nil
}

// BuildGraph builds the dependency graph of every binding in c from the
// introspector's metadata. Nothing is constructed. Instance and method
// bindings have no edges since the container does not build them.
func BuildGraph(c *Container) (*DependencyGraph, error) {
	if c.isDisposed() {
		return nil, ErrContainerDisposed
	}

	if err := c.FlushBindings(); err != nil {
		return nil, err
	}

	g := NewDependencyGraph()

	for _, contract := range c.registry.contracts() {
		g.AddNode(contract)

		for _, e := range c.registry.entries(contract) {
			concrete, ok := constructedType(e.provider)
			if !ok {
				continue
			}

			edges, err := c.edgesOf(concrete)
			if err != nil {
				return nil, err
			}

			g.AddNode(contract, edges...)
		}
	}

	return g, nil
}

func (c *Container) edgesOf(concrete reflect.Type) ([]GraphEdge, error) {
	ctor, fields, methods, err := dependencies(c.introspector, concrete)
	if err != nil {
		return nil, err
	}

	edges := make([]GraphEdge, 0, len(ctor)+len(fields))
	add := func(info InjectableInfo, kind EdgeKind) {
		edges = append(edges, c.edge(info, kind))
	}

	for _, d := range ctor {
		add(d, EdgeConstructor)
	}

	for _, d := range fields {
		add(d, EdgeMember)
	}

	for _, m := range methods {
		for _, d := range m.Params {
			add(d, EdgeMember)
		}
	}

	return edges, nil
}

// edge maps a dependency to the contract it will actually be resolved as.
func (c *Container) edge(info InjectableInfo, kind EdgeKind) GraphEdge {
	e := GraphEdge{Contract: info.Type, Identifier: info.Identifier, Optional: info.Optional, Kind: kind}

	switch {
	case isDeferredType(info.Type):
		ref := reflect.New(info.Type.Elem()).Interface().(deferredRef)
		e.Contract = ref.deferredContract()
		e.Optional = ref.deferredOptional()
		e.Kind = EdgeDeferred
	case info.Type.Kind() == reflect.Slice && !c.registry.has(info.Type):
		e.Contract = info.Type.Elem()
	}

	return e
}

// constructedType returns the concrete type a provider builds with the
// introspector, if it does.
func constructedType(p Provider) (reflect.Type, bool) {
	switch p := p.(type) {
	case *TransientProvider:
		return p.concrete, true
	case *CachedProvider:
		return constructedType(p.inner)
	case *PooledProvider:
		return constructedType(p.factory)
	default:
		return nil, false
	}
}
