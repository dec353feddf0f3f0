package graft

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type levelA struct{ b *levelB }

type levelB struct{ c *levelC }

type levelC struct{ d *levelD }

type levelD struct{ n int }

// settings is cheap to build and safe to construct while validating.
type settings struct {
	Name string
}

func (*settings) AllowDuringValidation() {}

type settingsUser struct {
	settings *settings
}

// registerLevels binds a three level chain whose last dependency is missing
// and returns a pointer to the number of constructor calls.
func registerLevels(t *testing.T, c *Container) *int {
	t.Helper()

	calls := new(int)

	require.NoError(t, c.RegisterConstructor(func(b *levelB) *levelA { *calls++; return &levelA{b: b} }, false))
	require.NoError(t, c.RegisterConstructor(func(cc *levelC) *levelB { *calls++; return &levelB{c: cc} }, false))
	require.NoError(t, c.RegisterConstructor(func(d *levelD) *levelC { *calls++; return &levelC{d: d} }, false))

	Bind[*levelA](c).AsSingle()
	Bind[*levelB](c).AsTransient()
	Bind[*levelC](c).AsCached()

	return calls
}

func TestValidate_MissingDependencyThreeLevelsDeep(t *testing.T) {
	c := New()
	calls := registerLevels(t, c)

	errs := c.ValidateResolve(TypeOf[*levelA]())
	require.Len(t, errs, 1)
	assert.Zero(t, *calls)

	err := errs[0]
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrMissingBinding)

	var ge *Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, TypeOf[*levelD](), ge.Contract)

	cause, ok := ge.Cause.(*Error)
	require.True(t, ok)
	assert.Equal(t, "*graft.levelA -> *graft.levelB -> *graft.levelC -> *graft.levelD", FormatPath(cause.Path))

	// Nothing was cached either.
	_, err = c.Resolve(TypeOf[*levelA]())
	assert.ErrorIs(t, err, ErrMissingBinding)
}

func TestValidate_WholeContainer(t *testing.T) {
	c := New()
	calls := registerLevels(t, c)

	Bind[*frontDesk](c)
	Bind[Plugin](c).To(TypeOf[*pluginA]())
	Bind[Plugin](c).To(TypeOf[*pluginB]())
	Bind[*pluginUser](c)

	err := c.Validate()
	require.Error(t, err)
	assert.Zero(t, *calls)

	errs := multierr.Errors(err)
	require.Len(t, errs, 3)

	var codes []string
	for _, e := range errs {
		var ge *Error
		require.True(t, errors.As(e, &ge))
		require.Equal(t, CodeValidation, ge.Code)
		codes = append(codes, ge.Cause.(*Error).Code)
	}

	assert.ElementsMatch(t, []string{CodeMissingBinding, CodeMissingBinding, CodeAmbiguousBinding}, codes)
}

type pluginUser struct {
	Plugin Plugin `inject:""`
}

func TestValidate_Cycles(t *testing.T) {
	c := New()
	registerCycle(t, c)

	Bind[*cycleA](c).AsSingle()
	Bind[*cycleB](c).AsSingle()

	errs := c.ValidateResolve(TypeOf[*cycleA]())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCircularDependency)
}

func TestValidate_FieldCycleWithSingletonsIsValid(t *testing.T) {
	c := New()

	Bind[*fieldA](c).AsSingle()
	Bind[*fieldB](c).AsSingle()

	assert.Empty(t, c.ValidateResolve(TypeOf[*fieldA]()))
	assert.NoError(t, c.Validate())
}

func TestValidate_ValidGraph(t *testing.T) {
	c := New()

	Bind[Logger](c).To(TypeOf[*consoleLogger]()).AsSingle()
	Bind[*service](c)

	assert.Empty(t, c.ValidateResolve(TypeOf[*service]()))
	assert.NoError(t, c.Validate())
}

func TestValidate_AllowDuringValidation(t *testing.T) {
	c := New()
	built := 0
	used := 0

	Bind[*settings](c).FromConstructor(func() *settings {
		built++

		return &settings{Name: "test"}
	})
	Bind[*settingsUser](c).FromConstructor(func(s *settings) *settingsUser {
		used++

		return &settingsUser{settings: s}
	})

	assert.Empty(t, c.ValidateResolve(TypeOf[*settingsUser]()))
	assert.Equal(t, 1, built)
	assert.Zero(t, used)
}

func TestValidate_MethodBindingsAreNotCalled(t *testing.T) {
	c := New()

	Bind[Logger](c).FromMethod(func(*InjectContext) (any, error) {
		t.Fatal("factory method called during validation")

		return nil, nil
	})
	Bind[*service](c)

	assert.Empty(t, c.ValidateResolve(TypeOf[*service]()))
}

func TestValidate_DeferredReferences(t *testing.T) {
	c := New()

	Bind[*lazyHolder](c)

	errs := c.ValidateResolve(TypeOf[*lazyHolder]())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMissingBinding)

	Bind[Logger](c).To(TypeOf[*consoleLogger]())
	assert.Empty(t, c.ValidateResolve(TypeOf[*lazyHolder]()))
}

func TestValidate_OptionalDependencies(t *testing.T) {
	c := New()
	Bind[*optionalHost](c)

	assert.Empty(t, c.ValidateResolve(TypeOf[*optionalHost]()))
}

func TestValidate_BindingErrors(t *testing.T) {
	c := New()
	Bind[Logger](c)

	errs := c.ValidateResolve(TypeOf[Logger]())
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], ErrInvalidBinding)
}
