package graft

import (
	"reflect"
	"strings"
)

// Arg is an extra typed argument supplied at bind or instantiate time. Args
// are matched to dependencies by assignability before the container is
// consulted, and each is used at most once.
type Arg struct {
	Type  reflect.Type
	Value any
}

// ArgOf returns an Arg typed as T, which lets an argument satisfy an
// interface dependency.
func ArgOf[T any](v T) Arg {
	return Arg{Type: TypeOf[T](), Value: v}
}

// ArgsOf converts values to args typed by their dynamic type. Values that
// already are Args are kept.
func ArgsOf(values ...any) []Arg {
	if len(values) == 0 {
		return nil
	}

	args := make([]Arg, 0, len(values))

	for _, v := range values {
		switch a := v.(type) {
		case Arg:
			args = append(args, a)
		case nil:
			continue
		default:
			args = append(args, Arg{Type: reflect.TypeOf(v), Value: v})
		}
	}

	return args
}

// argList hands out args to one construction.
type argList struct {
	items []Arg
	used  []bool
}

func newArgList(args []Arg) *argList {
	return &argList{items: args, used: make([]bool, len(args))}
}

// take returns the first unused arg assignable to t.
func (l *argList) take(t reflect.Type) (any, bool) {
	if l == nil {
		return nil, false
	}

	for i, a := range l.items {
		if l.used[i] || a.Type == nil || !a.Type.AssignableTo(t) {
			continue
		}

		l.used[i] = true

		return a.Value, true
	}

	return nil, false
}

// check fails when some args were never used.
func (l *argList) check(concrete reflect.Type) error {
	if l == nil {
		return nil
	}

	var unused []string

	for i, a := range l.items {
		if !l.used[i] {
			unused = append(unused, typeName(a.Type))
		}
	}

	if len(unused) == 0 {
		return nil
	}

	return newInvalidBindingError(concrete, "passed unnecessary arguments when constructing %s: %s",
		typeName(concrete), strings.Join(unused, ", "))
}
