package graft

import (
	"reflect"
	"sync/atomic"
)

// SubContainerProvider resolves its contract from a child container that is
// built once, on first use, by an installer.
type SubContainerProvider struct {
	installer  Installer
	identifier any
	child      *Container
	built      atomic.Bool
	err        error
	// typing stops InstanceType from looping through a child that bridges
	// the same contract back to the parent.
	typing atomic.Bool
}

// NewSubContainerProvider returns a provider resolving from a child container
// installed by installer. identifier selects the binding inside the child.
func NewSubContainerProvider(installer Installer, identifier any) *SubContainerProvider {
	return &SubContainerProvider{installer: installer, identifier: identifier}
}

func (p *SubContainerProvider) InstanceType(ctx *InjectContext) reflect.Type {
	if !p.built.Load() || p.child == nil {
		return nil
	}

	if !p.typing.CompareAndSwap(false, true) {
		return nil
	}
	defer p.typing.Store(false)

	types := p.child.ResolveTypeAll(ctx.Contract)
	if len(types) != 1 {
		return nil
	}

	return types[0]
}

func (p *SubContainerProvider) Instances(ctx *InjectContext, args []Arg) ([]any, InjectFunc, error) {
	if len(args) > 0 {
		return nil, nil, newInvalidBindingError(ctx.Contract, "sub-container bindings do not accept arguments")
	}

	ctx, err := providerContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	pop, err := ctx.session.enterBridge(p, ctx.Contract)
	if err != nil {
		return nil, nil, err
	}
	defer pop()

	child, err := p.container(ctx)
	if err != nil {
		return nil, nil, err
	}

	cctx := &InjectContext{
		Container:      child,
		Contract:       ctx.Contract,
		Identifier:     p.identifier,
		Optional:       ctx.Optional,
		TargetType:     ctx.TargetType,
		TargetInstance: ctx.TargetInstance,
		MemberName:     ctx.MemberName,
		Parent:         ctx.Parent,
		session:        ctx.session,
	}

	instance, err := child.resolveSingle(cctx)
	if err != nil {
		return nil, nil, err
	}

	return []any{instance}, nil, nil
}

// Container returns the child container, or nil before first use.
func (p *SubContainerProvider) Container() *Container {
	if !p.built.Load() {
		return nil
	}

	return p.child
}

// container builds the child once. Installation failures are remembered.
func (p *SubContainerProvider) container(ctx *InjectContext) (*Container, error) {
	if p.built.Load() {
		return p.child, p.err
	}

	lock := ctx.Container.lock
	lock.acquire()
	defer lock.release()

	if p.built.Load() {
		return p.child, p.err
	}

	child := ctx.Container.CreateSubContainer()

	err := p.installer.InstallBindings(child)
	if err == nil {
		err = child.FlushBindings()
	}

	p.child, p.err = child, err
	p.built.Store(true)

	return child, err
}

// Dispose disposes the child container.
func (p *SubContainerProvider) Dispose() error {
	if !p.built.Load() || p.child == nil {
		return nil
	}

	err := p.child.Dispose()
	if err == ErrContainerDisposed {
		return nil
	}

	return err
}

// parentProvider bridges a contract to the parent container.
type parentProvider struct {
	parent *Container
}

func (p *parentProvider) InstanceType(ctx *InjectContext) reflect.Type {
	types := p.parent.ResolveTypeAll(ctx.Contract)
	if len(types) != 1 {
		return nil
	}

	return types[0]
}

func (p *parentProvider) Instances(ctx *InjectContext, args []Arg) ([]any, InjectFunc, error) {
	if len(args) > 0 {
		return nil, nil, newInvalidBindingError(ctx.Contract, "bridged bindings do not accept arguments")
	}

	ctx, err := providerContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	pop, err := ctx.session.enterBridge(p, ctx.Contract)
	if err != nil {
		return nil, nil, err
	}
	defer pop()

	instance, err := p.parent.resolveSingle(ctx.withContainer(p.parent))
	if err != nil {
		return nil, nil, err
	}

	return []any{instance}, nil, nil
}
