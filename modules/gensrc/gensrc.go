// Package gensrc provides the code generation task. For every codegen
// target it derives a synthetic generated library carrying the produced
// source names, so downstream tasks see generated code as ordinary
// source-bearing targets.
package gensrc

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/registry"
	"github.com/vk/buildgridgo/internal/synthetic"
	"github.com/vk/buildgridgo/internal/target"
	"github.com/vk/buildgridgo/internal/task"
)

// ProductType is the key generated target addresses are published under.
const ProductType = "generated_sources"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register contributes the codegen target types and the generation task
// for the build goal. It must be registered before tasks that consume
// generated sources so those tasks see the derived targets.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTargetType(&registry.TargetType{
		Alias:          "codegen",
		Description:    "A target whose sources are produced by a generator.",
		RequiredFields: []string{"generator"},
	})
	r.RegisterTargetType(&registry.TargetType{
		Alias:       "generated_library",
		Description: "A synthetic library derived from a codegen target.",
	})
	r.RegisterTask("build", NewTask())
}

// Task derives one synthetic generated library per codegen target.
type Task struct{}

// NewTask creates the generation task.
func NewTask() *Task {
	return &Task{}
}

func (t *Task) Name() string { return "gen-sources" }

func (t *Task) ProductTypes() []string { return []string{ProductType} }

// AppliesTo selects codegen targets.
func (t *Task) AppliesTo(tgt *target.Target) bool {
	return tgt.TypeAlias == "codegen"
}

func (t *Task) Execute(ctx context.Context, ec *task.Context) error {
	logger := ctxlog.FromContext(ctx)

	derived := 0
	for _, tgt := range ec.Targets {
		generator, err := generatorName(tgt)
		if err != nil {
			return err
		}

		spec := synthetic.TargetSpec{
			Name:      tgt.Address.TargetName + ".gen",
			TypeAlias: "generated_library",
			Fields: map[string]cty.Value{
				"sources": cty.ListVal([]cty.Value{
					cty.StringVal(generator + ".gen.go"),
				}),
			},
		}
		childAddr, err := ec.Injector.Inject(ctx, tgt.Address, spec, nil)
		if err != nil {
			return fmt.Errorf("gensrc: derive from %s: %w", tgt.Address.Spec(), err)
		}

		ec.Products.Put(ProductType, tgt.Address, childAddr)
		derived++
	}

	logger.Info("derived generated libraries", "count", derived)
	return nil
}

func generatorName(tgt *target.Target) (string, error) {
	val, ok := tgt.Fields["generator"]
	if !ok || val.IsNull() || val.Type() != cty.String {
		return "", fmt.Errorf("gensrc: target %s: generator must be a string", tgt.Address.Spec())
	}
	return val.AsString(), nil
}
