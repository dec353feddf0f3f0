package graft

import "reflect"

// Scope is the caching policy of a binding.
type Scope int

const (
	// ScopeUnset means no scope was chosen; bindings finalize it to ScopeTransient.
	ScopeUnset Scope = iota

	// ScopeTransient creates a new instance on every resolve.
	ScopeTransient

	// ScopeSingleton shares one instance per concrete type and identifier across
	// every contract bound to it.
	ScopeSingleton

	// ScopeCached creates one instance per binding.
	ScopeCached

	// ScopeSubContainer resolves from a child container built once per binding.
	ScopeSubContainer
)

func (s Scope) String() string {
	switch s {
	case ScopeTransient:
		return "transient"
	case ScopeSingleton:
		return "singleton"
	case ScopeCached:
		return "cached"
	case ScopeSubContainer:
		return "subcontainer"
	default:
		return "unset"
	}
}

// ToChoice is what a binding resolves to.
type ToChoice int

const (
	ToSelf ToChoice = iota
	ToConcrete
	ToInstance
	ToMethod
	ToSubContainer
	ToPool
)

func (c ToChoice) String() string {
	switch c {
	case ToSelf:
		return "self"
	case ToConcrete:
		return "concrete"
	case ToInstance:
		return "instance"
	case ToMethod:
		return "method"
	case ToSubContainer:
		return "subcontainer"
	case ToPool:
		return "pool"
	default:
		return "unknown"
	}
}

// TypeOf returns the contract type for T. It works for interfaces, which
// reflect.TypeOf cannot see through a nil value.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// AllowDuringValidation marks types that may really be constructed while the
// container runs in validation mode. Everything else is replaced by a marker.
type AllowDuringValidation interface {
	AllowDuringValidation()
}

// Disposable is implemented by cached instances and providers that hold resources.
type Disposable interface {
	Dispose() error
}

// PostInjector is called once all members of an instance were injected.
type PostInjector interface {
	PostInject() error
}

var (
	allowDuringValidationType = TypeOf[AllowDuringValidation]()
	containerType             = TypeOf[*Container]()
)

func canCreateDuringValidation(t reflect.Type) bool {
	return t != nil && (t.Implements(allowDuringValidationType) || t == containerType)
}

// validationMarker stands in for an instance that validation chose not to create.
type validationMarker struct {
	typ reflect.Type
}

func isMarker(v any) bool {
	_, ok := v.(validationMarker)

	return ok
}
