package graft

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Logger is the contract used by most tests.
type Logger interface {
	Log(msg string)
}

type consoleLogger struct {
	lines []string
}

func (l *consoleLogger) Log(msg string) {
	l.lines = append(l.lines, msg)
}

type service struct {
	Logger Logger `inject:""`
	id     int
}

type Plugin interface {
	Name() string
}

type pluginA struct{ n int }

func (p *pluginA) Name() string { return "a" }

type pluginB struct{ n int }

func (p *pluginB) Name() string { return "b" }

// disposeLog records the order in which instances are disposed.
type disposeLog struct {
	names []string
}

type database struct {
	log *disposeLog
}

func (d *database) Dispose() error {
	d.log.names = append(d.log.names, "database")

	return nil
}

type repository struct {
	db  *database
	log *disposeLog
}

func (r *repository) Dispose() error {
	r.log.names = append(r.log.names, "repository")

	return nil
}

// countingProvider counts how often it is disposed.
type countingProvider struct {
	InstanceProvider
	disposed int
}

func (p *countingProvider) Dispose() error {
	p.disposed++

	return nil
}

func TestContainer_SingletonSharedAcrossTransientServices(t *testing.T) {
	c := New()

	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()
	Bind[*service](c).AsTransient()

	s1, err := Resolve[*service](c)
	require.NoError(t, err)

	s2, err := Resolve[*service](c)
	require.NoError(t, err)

	assert.NotSame(t, s1, s2)
	require.NotNil(t, s1.Logger)
	assert.Same(t, s1.Logger, s2.Logger)
}

func TestContainer_ResolveSatisfiesContract(t *testing.T) {
	c := New()
	Bind[Logger](c).To(TypeOf[*consoleLogger]())

	instance, err := c.Resolve(TypeOf[Logger]())
	require.NoError(t, err)

	assert.Implements(t, (*Logger)(nil), instance)
	assert.IsType(t, &consoleLogger{}, instance)
}

func TestContainer_MissingBinding(t *testing.T) {
	c := New()

	_, err := c.Resolve(TypeOf[Logger]())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingBinding)

	instance, err := c.TryResolve(TypeOf[Logger]())
	require.NoError(t, err)
	assert.Nil(t, instance)

	logger, err := TryResolve[Logger](c)
	require.NoError(t, err)
	assert.Nil(t, logger)
}

func TestContainer_AmbiguousBinding(t *testing.T) {
	c := New()

	Bind[Plugin](c).To(TypeOf[*pluginA]())
	Bind[Plugin](c).To(TypeOf[*pluginB]())

	_, err := c.Resolve(TypeOf[Plugin]())
	assert.ErrorIs(t, err, ErrAmbiguousBinding)

	instance, err := c.TryResolve(TypeOf[Plugin]())
	require.NoError(t, err)
	assert.Nil(t, instance)

	plugins, err := ResolveAll[Plugin](c)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "a", plugins[0].Name())
	assert.Equal(t, "b", plugins[1].Name())
}

func TestContainer_ToSeveralConcretes(t *testing.T) {
	c := New()

	Bind[Plugin](c).To(TypeOf[*pluginB](), TypeOf[*pluginA]())

	plugins, err := ResolveAll[Plugin](c)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "b", plugins[0].Name())
	assert.Equal(t, "a", plugins[1].Name())

	assert.Equal(t, []reflect.Type{TypeOf[*pluginB](), TypeOf[*pluginA]()}, c.ResolveTypeAll(TypeOf[Plugin]()))
}

func TestContainer_ResolveAllWithoutBindings(t *testing.T) {
	c := New()

	plugins, err := c.ResolveAll(TypeOf[Plugin]())
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

func TestContainer_Scopes(t *testing.T) {
	c := New()

	Bind[*consoleLogger](c).AsSingle()
	Bind[*pluginA](c).AsTransient()
	Bind[*pluginB](c).AsCached()

	l1, _ := Resolve[*consoleLogger](c)
	l2, _ := Resolve[*consoleLogger](c)
	assert.Same(t, l1, l2)

	a1, _ := Resolve[*pluginA](c)
	a2, _ := Resolve[*pluginA](c)
	assert.NotSame(t, a1, a2)

	b1, _ := Resolve[*pluginB](c)
	b2, _ := Resolve[*pluginB](c)
	assert.Same(t, b1, b2)
}

func TestContainer_DefaultScopeIsTransient(t *testing.T) {
	c := New()
	Bind[*pluginA](c)

	a1, err := Resolve[*pluginA](c)
	require.NoError(t, err)

	a2, err := Resolve[*pluginA](c)
	require.NoError(t, err)

	assert.NotSame(t, a1, a2)
}

func TestContainer_SingletonSharedAcrossContracts(t *testing.T) {
	c := New()

	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()
	Bind[*consoleLogger](c).AsSingle()

	viaInterface, err := Resolve[Logger](c)
	require.NoError(t, err)

	viaConcrete, err := Resolve[*consoleLogger](c)
	require.NoError(t, err)

	assert.Same(t, viaConcrete, viaInterface)
}

func TestContainer_CachedPerBinding(t *testing.T) {
	c := New()

	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsCached()
	Bind[*consoleLogger](c).AsCached()

	viaInterface, err := Resolve[Logger](c)
	require.NoError(t, err)

	viaConcrete, err := Resolve[*consoleLogger](c)
	require.NoError(t, err)

	assert.NotSame(t, viaConcrete, viaInterface)
}

func TestContainer_MultipleContractsOneBinding(t *testing.T) {
	c := New()

	c.Bind(TypeOf[Logger](), TypeOf[*consoleLogger]()).To(TypeOf[*consoleLogger]()).AsCached()

	viaInterface, err := Resolve[Logger](c)
	require.NoError(t, err)

	viaConcrete, err := Resolve[*consoleLogger](c)
	require.NoError(t, err)

	assert.Same(t, viaConcrete, viaInterface)
}

func TestContainer_FromInstance(t *testing.T) {
	c := New()
	logger := &consoleLogger{}

	Bind[Logger](c).FromInstance(logger)

	resolved, err := Resolve[Logger](c)
	require.NoError(t, err)
	assert.Same(t, logger, resolved)
}

func TestContainer_NullInstances(t *testing.T) {
	c := New()
	Bind[Logger](c).FromInstance(nil)

	err := c.FlushBindings()
	assert.ErrorIs(t, err, ErrInvalidBinding)

	c = New(WithAllowNullBindings(true))
	Bind[Logger](c).FromInstance(nil)

	logger, err := Resolve[Logger](c)
	require.NoError(t, err)
	assert.Nil(t, logger)
}

func TestContainer_ResolvesItself(t *testing.T) {
	c := New()

	self, err := Resolve[*Container](c)
	require.NoError(t, err)
	assert.Same(t, c, self)

	child := c.CreateSubContainer()
	childSelf, err := Resolve[*Container](child)
	require.NoError(t, err)
	assert.Same(t, child, childSelf)
}

func TestContainer_RegisterDuplicateProvider(t *testing.T) {
	c := New()
	p := NewInstanceProvider(&consoleLogger{})

	require.NoError(t, c.RegisterProvider(TypeOf[Logger](), p))
	err := c.RegisterProvider(TypeOf[Logger](), p)
	assert.ErrorIs(t, err, ErrDuplicateBinding)

	// The same provider may back another contract.
	require.NoError(t, c.RegisterProvider(TypeOf[*consoleLogger](), p))
}

func TestContainer_UnregisterProvider(t *testing.T) {
	c := New()
	p := &countingProvider{InstanceProvider: InstanceProvider{instance: &consoleLogger{}}}

	require.NoError(t, c.RegisterProvider(TypeOf[Logger](), p))
	require.NoError(t, c.RegisterProvider(TypeOf[*consoleLogger](), p))

	require.NoError(t, c.UnregisterProvider(p))
	assert.Equal(t, 1, p.disposed)

	_, err := c.Resolve(TypeOf[Logger]())
	assert.ErrorIs(t, err, ErrMissingBinding)

	all, err := c.ResolveAll(TypeOf[*consoleLogger]())
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.False(t, c.HasBinding(TypeOf[Logger]()))
	assert.NotContains(t, c.AllContracts(), TypeOf[Logger]())

	err = c.UnregisterProvider(p)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Equal(t, 1, p.disposed)
}

func TestContainer_CachedProviderDisposedOnce(t *testing.T) {
	populated := func(t *testing.T) (*Container, *countingProvider, *CachedProvider) {
		c := New()
		inner := &countingProvider{InstanceProvider: InstanceProvider{instance: &consoleLogger{}}}
		p := NewCachedProvider(inner)

		require.NoError(t, c.RegisterProvider(TypeOf[Logger](), p))

		_, err := Resolve[Logger](c)
		require.NoError(t, err)
		require.True(t, p.Populated())

		return c, inner, p
	}

	t.Run("unregistered", func(t *testing.T) {
		c, inner, p := populated(t)

		require.NoError(t, c.UnregisterProvider(p))
		assert.Equal(t, 1, inner.disposed)

		require.NoError(t, c.Dispose())
		assert.Equal(t, 1, inner.disposed)
	})

	t.Run("disposed", func(t *testing.T) {
		c, inner, _ := populated(t)

		require.NoError(t, c.Dispose())
		assert.Equal(t, 1, inner.disposed)
	})
}

func TestContainer_Unbind(t *testing.T) {
	c := New()

	Bind[Plugin](c).To(TypeOf[*pluginA](), TypeOf[*pluginB]())
	require.Len(t, c.Lookup(TypeOf[Plugin](), nil), 2)

	require.NoError(t, c.Unbind(TypeOf[Plugin]()))

	plugins, err := c.ResolveAll(TypeOf[Plugin]())
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

func TestContainer_Rebind(t *testing.T) {
	c := New()
	replacement := &consoleLogger{lines: []string{"replacement"}}

	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()
	_, err := Resolve[Logger](c)
	require.NoError(t, err)

	Rebind[Logger](c).FromInstance(replacement)

	logger, err := Resolve[Logger](c)
	require.NoError(t, err)
	assert.Same(t, replacement, logger)
}

func TestContainer_HasBinding(t *testing.T) {
	c := New()

	Bind[Logger](c).To(TypeOf[*consoleLogger]())
	Bind[Plugin](c).WithID("extra").To(TypeOf[*pluginA]())

	assert.True(t, c.HasBinding(TypeOf[Logger]()))
	assert.False(t, c.HasBinding(TypeOf[Plugin]()))
	assert.True(t, c.HasBindingID(TypeOf[Plugin](), "extra"))
	assert.False(t, c.HasBindingID(TypeOf[Plugin](), "other"))
}

func TestContainer_InvalidBindings(t *testing.T) {
	tests := []struct {
		name string
		bind func(c *Container)
	}{
		{"interface to self", func(c *Container) { Bind[Logger](c) }},
		{"concrete does not implement", func(c *Container) { Bind[Logger](c).To(TypeOf[*pluginA]()) }},
		{"instance does not implement", func(c *Container) { Bind[Logger](c).FromInstance(&pluginA{}) }},
		{"nil method", func(c *Container) { Bind[Logger](c).FromMethod(nil) }},
		{"nil condition", func(c *Container) { Bind[*pluginA](c).When(nil) }},
		{"uncomparable identifier", func(c *Container) { Bind[*pluginA](c).WithID([]string{"x"}) }},
		{"arguments on instance", func(c *Container) { Bind[*pluginA](c).FromInstance(&pluginA{}).WithArguments(1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			tt.bind(c)

			err := c.FlushBindings()
			assert.ErrorIs(t, err, ErrInvalidBinding)

			// Reported once.
			assert.NoError(t, c.FlushBindings())
		})
	}
}

func TestContainer_ResolveReportsBindingErrors(t *testing.T) {
	c := New()
	Bind[Logger](c)

	_, err := c.Resolve(TypeOf[Logger]())
	assert.ErrorIs(t, err, ErrInvalidBinding)
}

func TestContainer_ConstructorBinding(t *testing.T) {
	c := New()
	calls := 0

	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()
	Bind[*service](c).FromConstructor(func(l Logger) *service {
		calls++

		return &service{Logger: l, id: calls}
	})

	s, err := Resolve[*service](c)
	require.NoError(t, err)
	assert.Equal(t, 1, s.id)
	assert.NotNil(t, s.Logger)
	assert.Equal(t, 1, calls)
}

func TestContainer_Instantiate(t *testing.T) {
	c := New()

	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()
	require.NoError(t, c.RegisterConstructor(func(l Logger, name string) *namedService {
		return &namedService{logger: l, name: name}
	}, false))

	s, err := Instantiate[*namedService](c, "billing")
	require.NoError(t, err)
	assert.Equal(t, "billing", s.name)
	assert.NotNil(t, s.logger)

	assert.False(t, c.HasBinding(TypeOf[*namedService]()))

	_, err = c.Instantiate(TypeOf[*namedService](), "billing", 42)
	assert.ErrorIs(t, err, ErrInvalidBinding)

	_, err = c.Instantiate(TypeOf[*namedService]())
	assert.ErrorIs(t, err, ErrMissingBinding)
}

type namedService struct {
	logger Logger
	name   string
}

func TestContainer_ArgumentsOverrideContainer(t *testing.T) {
	c := New()
	own := &consoleLogger{}

	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()
	require.NoError(t, c.RegisterConstructor(func(l Logger, name string) *namedService {
		return &namedService{logger: l, name: name}
	}, false))

	Bind[*namedService](c).WithArguments(ArgOf[Logger](own), "orders")

	s, err := Resolve[*namedService](c)
	require.NoError(t, err)
	assert.Same(t, own, s.logger)
	assert.Equal(t, "orders", s.name)
}

func TestContainer_Inject(t *testing.T) {
	c := New()
	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()

	s := &service{}
	require.NoError(t, c.Inject(s))
	assert.NotNil(t, s.Logger)

	assert.ErrorIs(t, c.Inject(nil), ErrInvalidBinding)
}

func TestContainer_NonLazy(t *testing.T) {
	c := New()
	calls := 0

	Bind[*pluginA](c).FromMethod(func(*InjectContext) (any, error) {
		calls++

		return &pluginA{n: calls}, nil
	}).AsSingle().NonLazy()
	Bind[*pluginB](c).FromMethod(func(*InjectContext) (any, error) {
		t.Fatal("lazy binding instantiated")

		return nil, nil
	})

	require.NoError(t, c.ResolveNonLazy())
	assert.Equal(t, 1, calls)

	a, err := Resolve[*pluginA](c)
	require.NoError(t, err)
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, calls)
}

func TestContainer_ValidateOnResolveNonLazy(t *testing.T) {
	c := New(WithValidateOnResolveNonLazy(true))
	calls := 0

	require.NoError(t, c.RegisterConstructor(func(l Logger) *namedService {
		calls++

		return &namedService{logger: l}
	}, false))
	Bind[*namedService](c).AsSingle().NonLazy()

	err := c.ResolveNonLazy()
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrMissingBinding)
	assert.Zero(t, calls)
}

func TestContainer_Lookup(t *testing.T) {
	c := New()
	p := NewInstanceProvider(&pluginA{})

	require.NoError(t, c.RegisterProvider(TypeOf[Plugin](), p))
	require.NoError(t, c.RegisterProvider(TypeOf[Plugin](), NewInstanceProvider(&pluginB{}), WithIdentifier("b")))

	providers := c.Lookup(TypeOf[Plugin](), nil)
	require.Len(t, providers, 1)
	assert.Same(t, p, providers[0])

	assert.Len(t, c.Lookup(TypeOf[Plugin](), &InjectContext{Identifier: "b"}), 1)
}

func TestContainer_DependencyContracts(t *testing.T) {
	c := New()

	require.NoError(t, c.RegisterConstructor(func(l Logger, name string) *namedService {
		return &namedService{logger: l, name: name}
	}, false))

	deps, err := c.DependencyContracts(TypeOf[*namedService]())
	require.NoError(t, err)
	assert.Equal(t, []reflect.Type{TypeOf[Logger](), TypeOf[string]()}, deps)

	deps, err = c.DependencyContracts(TypeOf[*service]())
	require.NoError(t, err)
	assert.Equal(t, []reflect.Type{TypeOf[Logger]()}, deps)
}

func TestContainer_DisposeOrder(t *testing.T) {
	c := New()
	log := &disposeLog{}

	Bind[*disposeLog](c).FromInstance(log)
	Bind[*database](c).FromConstructor(func(l *disposeLog) *database {
		return &database{log: l}
	}).AsSingle()
	Bind[*repository](c).FromConstructor(func(db *database, l *disposeLog) *repository {
		return &repository{db: db, log: l}
	}).AsSingle()

	_, err := Resolve[*repository](c)
	require.NoError(t, err)

	require.NoError(t, c.Dispose())
	assert.Equal(t, []string{"repository", "database"}, log.names)

	_, err = c.Resolve(TypeOf[*repository]())
	assert.ErrorIs(t, err, ErrContainerDisposed)
	assert.ErrorIs(t, c.Dispose(), ErrContainerDisposed)
}

func TestContainer_DisposeChildren(t *testing.T) {
	c := New()
	child := c.CreateSubContainer()
	log := &disposeLog{}

	Bind[*database](child).FromInstance(&database{log: log})
	Bind[*repository](child).FromMethod(func(ctx *InjectContext) (any, error) {
		return &repository{log: log}, nil
	}).AsSingle()

	_, err := Resolve[*repository](child)
	require.NoError(t, err)

	require.NoError(t, c.Dispose())
	assert.Equal(t, []string{"repository"}, log.names)

	_, err = child.Resolve(TypeOf[*repository]())
	assert.ErrorIs(t, err, ErrContainerDisposed)
}
