package gensrc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/cache"
	"github.com/vk/buildgridgo/internal/graph"
	"github.com/vk/buildgridgo/internal/invalidation"
	"github.com/vk/buildgridgo/internal/registry"
	"github.com/vk/buildgridgo/internal/scheduler"
	"github.com/vk/buildgridgo/internal/synthetic"
	"github.com/vk/buildgridgo/internal/target"
	"github.com/vk/buildgridgo/internal/task"
)

func mustAddr(t *testing.T, spec string) addr.Address {
	t.Helper()
	a, err := addr.Parse(spec)
	require.NoError(t, err)
	return a
}

func newContext(t *testing.T, g *graph.Graph, tracker *invalidation.Tracker, gt *Task) *task.Context {
	t.Helper()
	ctx := context.Background()

	targets := g.Targets(gt.AppliesTo)
	check, err := tracker.Check(ctx, gt.Name(), targets)
	require.NoError(t, err)

	return &task.Context{
		Graph:     g,
		Targets:   targets,
		Check:     check,
		Tracker:   tracker,
		Scheduler: scheduler.New(ctx, 4),
		Injector:  synthetic.NewInjector(g, tracker),
		Cache:     cache.Noop{},
		Products:  task.NewProducts(),
	}
}

func TestExecute_DerivesGeneratedLibrary(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	tracker := invalidation.NewTracker(g, t.TempDir())

	gen := mustAddr(t, "//src/api:proto")
	consumer := mustAddr(t, "//src/core:lib")
	require.NoError(t, g.InjectTarget(ctx, target.New(gen, "codegen").WithFields(map[string]cty.Value{
		"generator": cty.StringVal("protoc"),
	})))
	require.NoError(t, g.InjectTarget(ctx, target.New(consumer, "library").WithDependencies(gen)))

	gt := NewTask()
	ec := newContext(t, g, tracker, gt)
	require.Len(t, ec.Targets, 1, "only the codegen target applies")
	require.NoError(t, gt.Execute(ctx, ec))

	product, ok := ec.Products.Get(ProductType, gen)
	require.True(t, ok)
	childAddr := product.(addr.Address)
	assert.Equal(t, mustAddr(t, "//src/api:proto.gen"), childAddr)

	child, ok := g.GetTarget(childAddr)
	require.True(t, ok)
	assert.True(t, child.Synthetic)
	assert.Equal(t, "generated_library", child.TypeAlias)
	require.Contains(t, child.Fields, "sources")
	assert.Equal(t, cty.True, child.Fields["sources"].Equals(
		cty.ListVal([]cty.Value{cty.StringVal("protoc.gen.go")})))

	// The consumer now also depends on the generated child.
	deps, err := g.DependenciesOf(consumer)
	require.NoError(t, err)
	assert.Contains(t, deps, childAddr)
}

func TestExecute_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	tracker := invalidation.NewTracker(g, t.TempDir())

	gen := mustAddr(t, "//src/api:proto")
	require.NoError(t, g.InjectTarget(ctx, target.New(gen, "codegen").WithFields(map[string]cty.Value{
		"generator": cty.StringVal("protoc"),
	})))

	gt := NewTask()
	require.NoError(t, gt.Execute(ctx, newContext(t, g, tracker, gt)))
	before := g.Len()
	require.NoError(t, gt.Execute(ctx, newContext(t, g, tracker, gt)))
	assert.Equal(t, before, g.Len(), "re-derivation must reuse the existing child")
}

func TestExecute_RejectsBadGenerator(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	tracker := invalidation.NewTracker(g, t.TempDir())

	gen := mustAddr(t, "//src/api:proto")
	require.NoError(t, g.InjectTarget(ctx, target.New(gen, "codegen").WithFields(map[string]cty.Value{
		"generator": cty.NumberIntVal(7),
	})))

	gt := NewTask()
	err := gt.Execute(ctx, newContext(t, g, tracker, gt))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generator must be a string")
}

func TestModule_RegistersTypesAndTask(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)

	assert.Contains(t, r.TargetTypes, "codegen")
	assert.Contains(t, r.TargetTypes, "generated_library")
	tasks := r.TasksForGoal("build")
	require.Len(t, tasks, 1)
	assert.Equal(t, "gen-sources", tasks[0].Name())
}
