package graft

import (
	"bytes"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"sync"
)

// frame is one entry of the re-entrancy stack.
type frame struct {
	typ      reflect.Type
	provider Provider
	// construct frames take part in cycle detection by type. Method frames
	// are matched by provider instead.
	construct bool
}

// session is the state of one top-level resolution. Every dependency
// resolved on behalf of that call shares it, so the stack describes a single
// logical thread of construction even when the container is used from many
// goroutines.
type session struct {
	stack      []frame
	validating bool
	errs       []error
	seen       map[string]struct{}
	validated  map[Provider][]any
}

func newSession(validating bool) *session {
	s := &session{validating: validating}
	if validating {
		s.seen = make(map[string]struct{})
		s.validated = make(map[Provider][]any)
	}

	return s
}

// enterType pushes a construction frame for t, failing when t is already
// being constructed in this session.
func (s *session) enterType(t reflect.Type, p Provider) (func(), error) {
	for _, f := range s.stack {
		if f.construct && f.typ == t {
			return nil, newCircularDependencyError(s.path(t))
		}
	}

	return s.push(frame{typ: t, provider: p, construct: true}), nil
}

// enterProvider pushes a frame for a factory method provider, failing when
// the same provider is already running in this session.
func (s *session) enterProvider(p Provider, t reflect.Type) (func(), error) {
	for _, f := range s.stack {
		if f.provider == p && !f.construct {
			return nil, newCircularDependencyError(s.path(t))
		}
	}

	return s.push(frame{typ: t, provider: p}), nil
}

// enterBridge pushes a frame for a provider that forwards t to another
// container, failing when the same provider is already forwarding t.
func (s *session) enterBridge(p Provider, t reflect.Type) (func(), error) {
	for _, f := range s.stack {
		if f.provider == p && f.typ == t && !f.construct {
			return nil, newCircularDependencyError(s.path(t))
		}
	}

	return s.push(frame{typ: t, provider: p}), nil
}

func (s *session) push(f frame) func() {
	s.stack = append(s.stack, f)
	depth := len(s.stack)

	return func() {
		s.stack = s.stack[:depth-1]
	}
}

// types returns the stacked types, root first.
func (s *session) types() []reflect.Type {
	out := make([]reflect.Type, len(s.stack))
	for i, f := range s.stack {
		out[i] = f.typ
	}

	return out
}

// path is the stack followed by next, root first.
func (s *session) path(next reflect.Type) []reflect.Type {
	return append(s.types(), next)
}

// record keeps err for the validation report. A broken binding reached
// through several paths is reported once.
func (s *session) record(err error) {
	key := err.Error()
	if ge, ok := err.(*Error); ok && ge.Contract != nil {
		key = fmt.Sprintf("%s|%s|%v", ge.Code, ge.Contract, ge.Identifier)
	}

	if _, dup := s.seen[key]; dup {
		return
	}

	s.seen[key] = struct{}{}
	s.errs = append(s.errs, err)
}

// buildLock serializes first-time construction across a container tree. It is
// re-entrant for the goroutine that holds it: a cached object may resolve
// other cached objects while it is being built, including through a new
// top-level call such as Resolve on the container or Lazy.Get from a hook.
// A goroutine that blocks on another goroutine's resolution while holding
// the lock deadlocks.
type buildLock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner uint64
	depth int
}

func newBuildLock() *buildLock {
	l := &buildLock{}
	l.cond = sync.NewCond(&l.mu)

	return l
}

func (l *buildLock) acquire() {
	id := goroutineID()

	l.mu.Lock()
	defer l.mu.Unlock()

	for l.depth > 0 && l.owner != id {
		l.cond.Wait()
	}

	l.owner = id
	l.depth++
}

func (l *buildLock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.depth--
	if l.depth == 0 {
		l.owner = 0
		l.cond.Broadcast()
	}
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID reads the current goroutine's id from its stack header,
// "goroutine 42 [running]:".
func goroutineID() uint64 {
	var buf [64]byte

	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)

	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}

	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("graft: cannot parse goroutine id from %q", buf[:n]))
	}

	return id
}

// fail reports err for ctx. While validating the error is recorded and a
// marker is returned so validation continues past it.
func fail(ctx *InjectContext, err error) (any, error) {
	if ctx.session != nil && ctx.session.validating {
		ctx.session.record(err)

		return validationMarker{typ: ctx.Contract}, nil
	}

	return nil, err
}

// resolveSingle resolves exactly one instance for ctx within its session.
func (c *Container) resolveSingle(ctx *InjectContext) (any, error) {
	if c.isDisposed() {
		return nil, ErrContainerDisposed
	}

	entries := preferConditional(c.registry.lookup(ctx))

	switch {
	case len(entries) == 0:
		if v, handled, err := c.resolveFallback(ctx); handled {
			return v, err
		}

		if ctx.Optional {
			return nil, nil
		}

		return fail(ctx, newMissingBindingError(ctx))
	case len(entries) > 1:
		if ctx.Optional {
			return nil, nil
		}

		return fail(ctx, newAmbiguousBindingError(ctx, len(entries)))
	}

	return c.resolveFromProvider(ctx, entries[0].provider)
}

// preferConditional narrows several matches to the single conditional one
// among them, if there is exactly one. A binding restricted to a call site
// overrides the general binding of the same contract.
func preferConditional(entries []*providerEntry) []*providerEntry {
	if len(entries) < 2 {
		return entries
	}

	var conditional *providerEntry

	for _, e := range entries {
		if e.condition == nil {
			continue
		}

		if conditional != nil {
			return entries
		}

		conditional = e
	}

	if conditional == nil {
		return entries
	}

	return []*providerEntry{conditional}
}

func (c *Container) resolveFromProvider(ctx *InjectContext, p Provider) (any, error) {
	instances, err := c.instancesOf(ctx, p)
	if err != nil {
		return fail(ctx, err)
	}

	if len(instances) != 1 {
		return fail(ctx, newInvalidBindingError(ctx.Contract,
			"provider %T returned %d instances for %s", p, len(instances), describeBinding(ctx.Contract, ctx.Identifier)))
	}

	v := instances[0]
	if v != nil && !isMarker(v) && !reflect.TypeOf(v).AssignableTo(ctx.Contract) {
		return fail(ctx, newTypeMismatchError(ctx, v))
	}

	return v, nil
}

// instancesOf runs a provider and its deferred inject step.
func (c *Container) instancesOf(ctx *InjectContext, p Provider) ([]any, error) {
	instances, inject, err := p.Instances(ctx, nil)
	if err != nil {
		return nil, err
	}

	if inject != nil {
		if err := inject(); err != nil {
			return nil, err
		}
	}

	return instances, nil
}

// resolveAll resolves every matching provider in registration order. A
// contract with no matches yields an empty list.
func (c *Container) resolveAll(ctx *InjectContext) ([]any, error) {
	if c.isDisposed() {
		return nil, ErrContainerDisposed
	}

	var out []any

	for _, e := range c.registry.lookup(ctx) {
		instances, err := c.instancesOf(ctx, e.provider)
		if err != nil {
			if _, err := fail(ctx, err); err != nil {
				return nil, err
			}

			continue
		}

		for _, v := range instances {
			if v != nil && !isMarker(v) && !reflect.TypeOf(v).AssignableTo(ctx.Contract) {
				if _, err := fail(ctx, newTypeMismatchError(ctx, v)); err != nil {
					return nil, err
				}

				continue
			}

			out = append(out, v)
		}
	}

	return out, nil
}

// resolveFallback handles contracts with no matching binding that can still
// be satisfied: slices collect every binding of their element type, and
// deferred references are created on demand.
func (c *Container) resolveFallback(ctx *InjectContext) (any, bool, error) {
	t := ctx.Contract

	if isDeferredType(t) {
		v, err := c.newDeferred(ctx)

		return v, true, err
	}

	if t.Kind() != reflect.Slice {
		return nil, false, nil
	}

	elemCtx := ctx.withContract(t.Elem(), ctx.Optional)

	if !c.registry.has(t.Elem()) {
		if ctx.Optional {
			return reflect.MakeSlice(t, 0, 0).Interface(), true, nil
		}

		return nil, false, nil
	}

	items, err := c.resolveAll(elemCtx)
	if err != nil {
		return nil, true, err
	}

	return toSlice(t, items), true, nil
}

// toSlice builds a typed slice, skipping validation markers.
func toSlice(t reflect.Type, items []any) any {
	out := reflect.MakeSlice(t, 0, len(items))

	for _, item := range items {
		if isMarker(item) {
			continue
		}

		out = reflect.Append(out, valueOf(t.Elem(), item))
	}

	return out.Interface()
}
