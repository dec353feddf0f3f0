package graft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	primaryGreeter = NewKey[Greeter]("primary")
	backupGreeter  = NewKey[Greeter]("backup")
)

func TestKey(t *testing.T) {
	c := New()
	BindKey(c, primaryGreeter).To(TypeOf[*english]()).AsSingle()

	assert.Equal(t, "primary", primaryGreeter.ID())
	assert.Equal(t, TypeOf[Greeter](), primaryGreeter.Contract())
	assert.Equal(t, "type 'graft.Greeter' with identifier 'primary'", primaryGreeter.String())

	assert.True(t, HasKey(c, primaryGreeter))
	assert.False(t, HasKey(c, backupGreeter))

	g, err := ResolveKey(c, primaryGreeter)
	require.NoError(t, err)
	assert.Equal(t, "hello", g.Greet())
	assert.Same(t, g, MustResolveKey(c, primaryGreeter))

	_, err = ResolveKey(c, backupGreeter)
	assert.ErrorIs(t, err, ErrMissingBinding)
	assert.Panics(t, func() { MustResolveKey(c, backupGreeter) })
}

func TestKey_WithoutIdentifier(t *testing.T) {
	c := New()
	anyGreeter := NewKey[Greeter](nil)

	BindKey(c, anyGreeter).To(TypeOf[*german]())

	assert.Equal(t, "type 'graft.Greeter'", anyGreeter.String())

	g, err := Resolve[Greeter](c)
	require.NoError(t, err)
	assert.Equal(t, "hallo", g.Greet())
	assert.False(t, HasKey(c, primaryGreeter))
}

func TestTypedHelpers(t *testing.T) {
	c := New()
	Bind[Plugin](c).To(TypeOf[*pluginA](), TypeOf[*pluginB]())
	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()

	plugins, err := ResolveAll[Plugin](c)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "a", plugins[0].Name())
	assert.Equal(t, "b", plugins[1].Name())

	_, err = Resolve[Plugin](c)
	assert.ErrorIs(t, err, ErrAmbiguousBinding)

	p, err := TryResolve[Plugin](c)
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.NotNil(t, Must[Logger](c))
	assert.Panics(t, func() { Must[Greeter](c) })

	svc, err := Instantiate[*service](c)
	require.NoError(t, err)
	assert.NotNil(t, svc.Logger)
}

func TestMethodHelpers(t *testing.T) {
	c := New()
	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()
	Bind[Plugin](c).To(TypeOf[*pluginA](), TypeOf[*pluginB]())

	Bind[*service](c).FromMethod(Method(func(ctx *InjectContext) (*service, error) {
		logger, err := ResolveFrom[Logger](ctx)
		if err != nil {
			return nil, err
		}

		plugins, err := ResolveAllFrom[Plugin](ctx)
		if err != nil {
			return nil, err
		}

		return &service{Logger: logger, id: len(plugins)}, nil
	}))

	svc, err := Resolve[*service](c)
	require.NoError(t, err)
	assert.NotNil(t, svc.Logger)
	assert.Equal(t, 2, svc.id)
}
