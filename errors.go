package graft

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeMissingBinding indicates no provider matched a required contract
	CodeMissingBinding = "MISSING_BINDING"

	// CodeAmbiguousBinding indicates more than one provider matched a single-resolve
	CodeAmbiguousBinding = "AMBIGUOUS_BINDING"

	// CodeCircularDependency indicates a type appeared twice in the construction stack
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"

	// CodeDuplicateBinding indicates the same provider was registered twice under one contract
	CodeDuplicateBinding = "DUPLICATE_BINDING"

	// CodeNotRegistered indicates an unregister of a provider that was never registered
	CodeNotRegistered = "NOT_REGISTERED"

	// CodeValidation marks an entry produced by the dry-run validator
	CodeValidation = "VALIDATION"

	// CodeInvalidBinding indicates a malformed binding or constructor
	CodeInvalidBinding = "INVALID_BINDING"

	// CodeTypeMismatch indicates a provider produced a value not assignable to the contract
	CodeTypeMismatch = "TYPE_MISMATCH"

	// CodeContainerDisposed indicates an operation on a disposed container
	CodeContainerDisposed = "CONTAINER_DISPOSED"

	// CodeConstructionFailed indicates a constructor, factory method or hook returned an error
	CodeConstructionFailed = "CONSTRUCTION_FAILED"
)

// Error is the error type returned by every container operation.
// Two errors are considered equal by errors.Is when their codes match, so the
// sentinels below can be used for checks. Path is the object graph that was
// under construction when the error occurred, root first.
type Error struct {
	Code       string
	Message    string
	Contract   reflect.Type
	Identifier any
	Path       []reflect.Type
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Message)

	if len(e.Path) > 0 {
		b.WriteString(" (object graph: ")
		b.WriteString(FormatPath(e.Path))
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Code == e.Code
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrMissingBinding     = &Error{Code: CodeMissingBinding, Message: "missing binding"}
	ErrAmbiguousBinding   = &Error{Code: CodeAmbiguousBinding, Message: "ambiguous binding"}
	ErrCircularDependency = &Error{Code: CodeCircularDependency, Message: "circular dependency"}
	ErrDuplicateBinding   = &Error{Code: CodeDuplicateBinding, Message: "duplicate binding"}
	ErrNotRegistered      = &Error{Code: CodeNotRegistered, Message: "provider not registered"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrInvalidBinding     = &Error{Code: CodeInvalidBinding, Message: "invalid binding"}
	ErrTypeMismatch       = &Error{Code: CodeTypeMismatch, Message: "type mismatch"}
	ErrContainerDisposed  = &Error{Code: CodeContainerDisposed, Message: "container has been disposed"}
	ErrConstructionFailed = &Error{Code: CodeConstructionFailed, Message: "construction failed"}

	errNilInstance = errors.New("constructor returned a nil instance")
)

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

func newMissingBindingError(ctx *InjectContext) *Error {
	return &Error{
		Code:       CodeMissingBinding,
		Message:    fmt.Sprintf("unable to resolve %s", describeBinding(ctx.Contract, ctx.Identifier)),
		Contract:   ctx.Contract,
		Identifier: ctx.Identifier,
		Path:       ctx.ObjectGraph(),
	}
}

func newAmbiguousBindingError(ctx *InjectContext, matches int) *Error {
	return &Error{
		Code: CodeAmbiguousBinding,
		Message: fmt.Sprintf("found %d matches for %s when only one was expected",
			matches, describeBinding(ctx.Contract, ctx.Identifier)),
		Contract:   ctx.Contract,
		Identifier: ctx.Identifier,
		Path:       ctx.ObjectGraph(),
	}
}

func newCircularDependencyError(path []reflect.Type) *Error {
	var contract reflect.Type
	if len(path) > 0 {
		contract = path[len(path)-1]
	}

	return &Error{
		Code:     CodeCircularDependency,
		Message:  fmt.Sprintf("circular dependency detected while constructing %s", typeName(contract)),
		Contract: contract,
		Path:     path,
	}
}

func newDuplicateBindingError(contract reflect.Type) *Error {
	return &Error{
		Code:     CodeDuplicateBinding,
		Message:  fmt.Sprintf("found duplicate provider registration for contract %s", typeName(contract)),
		Contract: contract,
	}
}

func newNotRegisteredError(p Provider) *Error {
	return &Error{
		Code:    CodeNotRegistered,
		Message: fmt.Sprintf("tried to unregister provider %T that was not registered", p),
	}
}

func newInvalidBindingError(contract reflect.Type, format string, args ...any) *Error {
	return &Error{
		Code:     CodeInvalidBinding,
		Message:  fmt.Sprintf(format, args...),
		Contract: contract,
	}
}

func newTypeMismatchError(ctx *InjectContext, actual any) *Error {
	return &Error{
		Code: CodeTypeMismatch,
		Message: fmt.Sprintf("provider for %s returned %T which is not assignable to the contract",
			describeBinding(ctx.Contract, ctx.Identifier), actual),
		Contract:   ctx.Contract,
		Identifier: ctx.Identifier,
		Path:       ctx.ObjectGraph(),
	}
}

func newConstructionError(concrete reflect.Type, path []reflect.Type, cause error) *Error {
	return &Error{
		Code:     CodeConstructionFailed,
		Message:  fmt.Sprintf("failed to construct %s", typeName(concrete)),
		Contract: concrete,
		Path:     path,
		Cause:    cause,
	}
}

func newValidationError(cause error) *Error {
	e := &Error{
		Code:    CodeValidation,
		Message: "validation failed",
		Cause:   cause,
	}

	if ge, ok := cause.(*Error); ok {
		e.Contract = ge.Contract
		e.Identifier = ge.Identifier
	}

	return e
}

// FormatPath renders an object graph root first.
func FormatPath(path []reflect.Type) string {
	names := make([]string, len(path))
	for i, t := range path {
		names[i] = typeName(t)
	}

	return strings.Join(names, " -> ")
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	return t.String()
}

func describeBinding(contract reflect.Type, id any) string {
	if id == nil {
		return fmt.Sprintf("type '%s'", typeName(contract))
	}

	return fmt.Sprintf("type '%s' with identifier '%v'", typeName(contract), id)
}
