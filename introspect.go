package graft

import "reflect"

// InjectableInfo describes one dependency of a concrete type: a constructor
// parameter, an injected field or an inject method parameter.
type InjectableInfo struct {
	Type       reflect.Type
	Identifier any
	Optional   bool
	MemberName string
}

// MethodInfo is an inject method and its parameters.
type MethodInfo struct {
	Name   string
	Params []InjectableInfo
}

// MemberValues holds resolved member dependencies aligned with the
// introspector's field and method metadata. A nil value leaves the member
// untouched.
type MemberValues struct {
	Fields  []any
	Methods [][]any
}

// TypeIntrospector supplies injection metadata for concrete types.
type TypeIntrospector interface {
	// ConstructorDependencies returns the ordered constructor parameters of
	// concrete. It fails when concrete has several constructors and none is
	// marked as preferred.
	ConstructorDependencies(concrete reflect.Type) ([]InjectableInfo, error)
	FieldDependencies(concrete reflect.Type) ([]InjectableInfo, error)
	MethodDependencies(concrete reflect.Type) ([]MethodInfo, error)
}

// Instantiator allocates instances and injects their members once the
// resolution engine has resolved every dependency.
type Instantiator interface {
	Construct(concrete reflect.Type, args []any) (any, error)
	InjectMembers(instance any, values MemberValues) error
}

// dependencies returns every dependency of concrete grouped by phase.
func dependencies(in TypeIntrospector, concrete reflect.Type) (ctor, fields []InjectableInfo, methods []MethodInfo, err error) {
	if ctor, err = in.ConstructorDependencies(concrete); err != nil {
		return nil, nil, nil, err
	}

	if fields, err = in.FieldDependencies(concrete); err != nil {
		return nil, nil, nil, err
	}

	if methods, err = in.MethodDependencies(concrete); err != nil {
		return nil, nil, nil, err
	}

	return ctor, fields, methods, nil
}
