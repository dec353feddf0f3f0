package graft

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engine struct {
	Logger Logger `inject:""`
}

func engineInstaller(calls *int) Installer {
	return InstallerFunc(func(c *Container) error {
		*calls++

		Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()
		Bind[*engine](c).AsSingle()

		return nil
	})
}

func TestSubContainer_BuiltOnce(t *testing.T) {
	c := New()
	calls := 0

	Bind[*engine](c).FromSubContainer(engineInstaller(&calls))

	providers := c.Lookup(TypeOf[*engine](), nil)
	require.Len(t, providers, 1)

	sub, ok := providers[0].(*SubContainerProvider)
	require.True(t, ok)
	assert.Nil(t, sub.Container())
	assert.Zero(t, calls)

	e1, err := Resolve[*engine](c)
	require.NoError(t, err)
	require.NotNil(t, e1.Logger)

	e2, err := Resolve[*engine](c)
	require.NoError(t, err)
	assert.Same(t, e1, e2)
	assert.Equal(t, 1, calls)

	child := sub.Container()
	require.NotNil(t, child)
	assert.Same(t, c, child.Parent())
	assert.False(t, c.HasBinding(TypeOf[Logger]()))
	assert.True(t, child.HasBinding(TypeOf[Logger]()))
}

func TestSubContainer_ParentBindingsNeedBridge(t *testing.T) {
	c := New()
	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()

	Bind[*engine](c).FromSubContainer(InstallerFunc(func(child *Container) error {
		Bind[*engine](child)

		return nil
	}))

	_, err := Resolve[*engine](c)
	assert.ErrorIs(t, err, ErrMissingBinding)

	bridged := New()
	Bind[Logger](bridged).To(TypeOf[*consoleLogger]()).AsSingle()

	Bind[*engine](bridged).FromSubContainer(InstallerFunc(func(child *Container) error {
		Bind[*engine](child)

		return child.BridgeParent(TypeOf[Logger]())
	}))

	e, err := Resolve[*engine](bridged)
	require.NoError(t, err)

	logger, err := Resolve[Logger](bridged)
	require.NoError(t, err)
	assert.Same(t, logger, e.Logger)
}

func TestSubContainer_BridgeWithoutParent(t *testing.T) {
	err := New().BridgeParent(TypeOf[Logger]())
	assert.ErrorIs(t, err, ErrInvalidBinding)
}

func TestSubContainer_BridgeBackToItself(t *testing.T) {
	c := New()
	Bind[*engine](c).FromSubContainer(InstallerFunc(func(child *Container) error {
		return child.BridgeParent(TypeOf[*engine]())
	}))

	_, err := Resolve[*engine](c)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)

	_, err = Resolve[*engine](c)
	assert.ErrorIs(t, err, ErrCircularDependency)

	assert.Equal(t, []reflect.Type{TypeOf[*engine]()}, c.ResolveTypeAll(TypeOf[*engine]()))
}

func TestSubContainer_ScopeIsFixed(t *testing.T) {
	c := New()
	calls := 0

	Bind[*engine](c).FromSubContainer(engineInstaller(&calls)).AsSingle()

	assert.ErrorIs(t, c.FlushBindings(), ErrInvalidBinding)
	assert.False(t, c.HasBinding(TypeOf[*engine]()))
}

func TestSubContainer_InstallerErrorIsRemembered(t *testing.T) {
	c := New()
	boom := errors.New("boom")
	calls := 0

	Bind[*engine](c).FromSubContainer(InstallerFunc(func(*Container) error {
		calls++

		return boom
	}))

	_, err := Resolve[*engine](c)
	assert.ErrorIs(t, err, boom)

	_, err = Resolve[*engine](c)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestSubContainer_DisposedWithParent(t *testing.T) {
	c := New()
	log := &disposeLog{}

	Bind[*database](c).FromSubContainer(InstallerFunc(func(child *Container) error {
		Bind[*database](child).FromMethod(func(*InjectContext) (any, error) {
			return &database{log: log}, nil
		}).AsSingle()

		return nil
	}))

	_, err := Resolve[*database](c)
	require.NoError(t, err)

	require.NoError(t, c.Dispose())
	assert.Equal(t, []string{"database"}, log.names)
}
