package graft

import "reflect"

// Key provides type-safe binding identification: a contract together with
// an identifier. Use NewKey to declare keys next to the types they bind.
type Key[T any] struct {
	id any
}

// NewKey creates a new typed key. id must be comparable; nil selects the
// binding without identifier.
//
// Example:
//
//	var PrimaryDB = graft.NewKey[*sql.DB]("primary")
//	var ReplicaDB = graft.NewKey[*sql.DB]("replica")
func NewKey[T any](id any) Key[T] {
	return Key[T]{id: id}
}

// ID returns the identifier of the key.
func (k Key[T]) ID() any {
	return k.id
}

// Contract returns the contract type of the key.
func (k Key[T]) Contract() reflect.Type {
	return TypeOf[T]()
}

func (k Key[T]) String() string {
	return describeBinding(k.Contract(), k.id)
}

// BindKey starts a binding for the key's contract and identifier.
//
// Example:
//
//	graft.BindKey(c, PrimaryDB).FromMethod(openPrimary).AsSingle()
func BindKey[T any](c *Container, key Key[T]) *Binder {
	return Bind[T](c).WithID(key.id)
}

// ResolveKey resolves the binding identified by key.
//
// Example:
//
//	db, err := graft.ResolveKey(c, PrimaryDB)
func ResolveKey[T any](c *Container, key Key[T]) (T, error) {
	return ResolveID[T](c, key.id)
}

// MustResolveKey resolves the binding identified by key and panics on error.
func MustResolveKey[T any](c *Container, key Key[T]) T {
	result, err := ResolveKey(c, key)
	if err != nil {
		panic(err)
	}

	return result
}

// HasKey checks if a binding is registered for key.
func HasKey[T any](c *Container, key Key[T]) bool {
	return c.HasBindingID(key.Contract(), key.id)
}
