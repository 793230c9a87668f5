package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/target"
	"github.com/vk/buildgridgo/internal/task"
)

// stubTask is a minimal Task for registry wiring tests.
type stubTask struct {
	name     string
	products []string
}

func (s *stubTask) Name() string                          { return s.name }
func (s *stubTask) ProductTypes() []string                { return s.products }
func (s *stubTask) AppliesTo(*target.Target) bool         { return true }
func (s *stubTask) Execute(context.Context, *task.Context) error { return nil }

func TestRegisterTask_PreservesOrder(t *testing.T) {
	r := New()
	r.RegisterTask("build", &stubTask{name: "resolve"})
	r.RegisterTask("build", &stubTask{name: "compile"})
	r.RegisterTask("test", &stubTask{name: "run-tests"})

	tasks := r.TasksForGoal("build")
	require.Len(t, tasks, 2)
	assert.Equal(t, "resolve", tasks[0].Name())
	assert.Equal(t, "compile", tasks[1].Name())

	assert.Equal(t, []string{"build", "test"}, r.GoalNames())
	assert.Nil(t, r.TasksForGoal("deploy"))
}

func TestRegisterTask_DuplicateNamePanics(t *testing.T) {
	r := New()
	r.RegisterTask("build", &stubTask{name: "compile"})
	assert.Panics(t, func() {
		r.RegisterTask("build", &stubTask{name: "compile"})
	})
}

func TestRegisterTargetType_DuplicateAliasPanics(t *testing.T) {
	r := New()
	r.RegisterTargetType(&TargetType{Alias: "library"})
	assert.Panics(t, func() {
		r.RegisterTargetType(&TargetType{Alias: "library"})
	})
}

func TestValidateRegistry_DuplicateProductType(t *testing.T) {
	r := New()
	r.RegisterTask("build", &stubTask{name: "digest-a", products: []string{"digest"}})
	r.RegisterTask("build", &stubTask{name: "digest-b", products: []string{"digest"}})

	err := r.ValidateRegistry(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both produce product type 'digest'")
}

func TestValidateRegistry_CleanRegistryPasses(t *testing.T) {
	r := New()
	r.RegisterTargetType(&TargetType{Alias: "library"})
	r.RegisterTask("build", &stubTask{name: "digest", products: []string{"digest"}})
	r.RegisterTask("build", &stubTask{name: "compile", products: []string{"classfiles"}})

	assert.NoError(t, r.ValidateRegistry(context.Background()))
}

func TestValidateTarget(t *testing.T) {
	r := New()
	r.RegisterTargetType(&TargetType{Alias: "library", RequiredFields: []string{"sources"}})
	r.RegisterTargetType(&TargetType{Alias: "binary"})

	a, err := addr.Parse("//src/core:lib")
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		tgt := target.New(a, "library").WithFields(map[string]cty.Value{
			"sources": cty.ListVal([]cty.Value{cty.StringVal("a.go")}),
		})
		assert.NoError(t, r.ValidateTarget(tgt))
	})

	t.Run("missing required field", func(t *testing.T) {
		tgt := target.New(a, "library")
		err := r.ValidateTarget(tgt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sources")
	})

	t.Run("unknown alias suggests close match", func(t *testing.T) {
		tgt := target.New(a, "librry")
		err := r.ValidateTarget(tgt)
		var unknown *UnknownTypeError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "librry", unknown.Alias)
		require.NotEmpty(t, unknown.DidYouMean)
		assert.Equal(t, "library", unknown.DidYouMean[0], "closest alias should rank first")
	})
}

func TestProducts_PutGet(t *testing.T) {
	a, err := addr.Parse("//src/core:lib")
	require.NoError(t, err)

	p := task.NewProducts()
	_, ok := p.Get("digest", a)
	assert.False(t, ok)

	p.Put("digest", a, "abc123")
	v, ok := p.Get("digest", a)
	require.True(t, ok)
	assert.Equal(t, "abc123", v)

	all := p.OfType("digest")
	assert.Len(t, all, 1)
}
