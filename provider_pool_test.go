package graft

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type bullet struct {
	spawned   int
	despawned int
	disposed  bool
}

func (b *bullet) OnSpawned()   { b.spawned++ }
func (b *bullet) OnDespawned() { b.despawned++ }

func (b *bullet) Dispose() error {
	b.disposed = true

	return nil
}

func poolOf(t *testing.T, c *Container, contract reflect.Type) *PooledProvider {
	t.Helper()

	providers := c.Lookup(contract, nil)
	require.Len(t, providers, 1)

	pool, ok := providers[0].(*PooledProvider)
	require.True(t, ok)

	return pool
}

func TestPool_SpawnAndRelease(t *testing.T) {
	c := New()
	Bind[*bullet](c).FromPool(PoolOptions{InitialSize: 2, MaxSize: 3})

	pool := poolOf(t, c, TypeOf[*bullet]())
	assert.Zero(t, pool.NumTotal())

	b1, err := Resolve[*bullet](c)
	require.NoError(t, err)
	assert.Equal(t, 1, b1.spawned)
	assert.Equal(t, 2, pool.NumTotal())
	assert.Equal(t, 1, pool.NumActive())
	assert.Equal(t, 1, pool.NumInactive())

	b2, err := Resolve[*bullet](c)
	require.NoError(t, err)
	assert.NotSame(t, b1, b2)

	b3, err := Resolve[*bullet](c)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.NumTotal())
	assert.Equal(t, 3, pool.NumActive())
	assert.Zero(t, pool.NumInactive())

	_, err = c.Resolve(TypeOf[*bullet]())
	assert.ErrorIs(t, err, ErrConstructionFailed)

	require.NoError(t, c.Release(TypeOf[*bullet](), b3))
	assert.Equal(t, 1, b3.despawned)
	assert.Equal(t, 1, pool.NumInactive())

	again, err := Resolve[*bullet](c)
	require.NoError(t, err)
	assert.Same(t, b3, again)
	assert.Equal(t, 2, b3.spawned)
}

func TestPool_DoubleReleaseIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c := New(WithLogger(zap.New(core)))

	Bind[*bullet](c).FromPool(PoolOptions{})

	b, err := Resolve[*bullet](c)
	require.NoError(t, err)

	require.NoError(t, c.Release(TypeOf[*bullet](), b))
	require.NoError(t, c.Release(TypeOf[*bullet](), b))

	assert.Equal(t, 1, b.despawned)
	assert.Equal(t, 1, logs.FilterMessageSnippet("released to pool twice").Len())
	assert.Equal(t, 1, poolOf(t, c, TypeOf[*bullet]()).NumInactive())
}

func TestPool_InterfaceContract(t *testing.T) {
	c := New()

	var spawned, despawned []any

	Bind[Plugin](c).To(TypeOf[*pluginA]()).FromPool(PoolOptions{
		OnSpawned:   func(instance any) { spawned = append(spawned, instance) },
		OnDespawned: func(instance any) { despawned = append(despawned, instance) },
	})

	p, err := Resolve[Plugin](c)
	require.NoError(t, err)
	assert.IsType(t, &pluginA{}, p)

	require.NoError(t, c.Release(TypeOf[Plugin](), p))
	assert.Equal(t, []any{p}, spawned)
	assert.Equal(t, []any{p}, despawned)
}

func TestPool_ExpandAndClear(t *testing.T) {
	c := New()
	Bind[*bullet](c).FromPool(PoolOptions{MaxSize: 4})

	pool := poolOf(t, c, TypeOf[*bullet]())

	require.NoError(t, pool.ExpandBy(3))
	assert.Equal(t, 3, pool.NumTotal())
	assert.Equal(t, 3, pool.NumInactive())

	err := pool.ExpandBy(2)
	assert.ErrorIs(t, err, ErrConstructionFailed)
	assert.Equal(t, 4, pool.NumTotal())

	active, err := Resolve[*bullet](c)
	require.NoError(t, err)

	require.NoError(t, pool.Clear())
	assert.Equal(t, 1, pool.NumTotal())
	assert.Zero(t, pool.NumInactive())
	assert.False(t, active.disposed)
}

func TestPool_DisposedWithContainer(t *testing.T) {
	c := New()
	Bind[*bullet](c).FromPool(PoolOptions{InitialSize: 1})

	b, err := Resolve[*bullet](c)
	require.NoError(t, err)
	require.NoError(t, c.Release(TypeOf[*bullet](), b))

	require.NoError(t, c.Dispose())
	assert.True(t, b.disposed)
}

func TestPool_InvalidOptions(t *testing.T) {
	c := New()
	Bind[*bullet](c).FromPool(PoolOptions{InitialSize: 3, MaxSize: 2})
	assert.ErrorIs(t, c.FlushBindings(), ErrInvalidBinding)

	Bind[*bullet](c).FromPool(PoolOptions{}).AsSingle()
	assert.ErrorIs(t, c.FlushBindings(), ErrInvalidBinding)

	Bind[Plugin](c).FromPool(PoolOptions{})
	assert.ErrorIs(t, c.FlushBindings(), ErrInvalidBinding)

	assert.ErrorIs(t, c.Release(TypeOf[*pluginA](), &pluginA{}), ErrInvalidBinding)
}

func TestPool_Validation(t *testing.T) {
	c := New()
	Bind[*bullet](c).FromPool(PoolOptions{InitialSize: 2})

	assert.NoError(t, c.Validate())
	assert.Zero(t, poolOf(t, c, TypeOf[*bullet]()).NumTotal())
}
