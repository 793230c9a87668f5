// Package digest provides the source digest task: a content digest per
// target, computed through the memoizing scheduler and persisted in the
// artifact cache so unchanged targets are never re-digested.
package digest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/fingerprint"
	"github.com/vk/buildgridgo/internal/invalidation"
	"github.com/vk/buildgridgo/internal/registry"
	"github.com/vk/buildgridgo/internal/scheduler"
	"github.com/vk/buildgridgo/internal/target"
	"github.com/vk/buildgridgo/internal/task"
)

// ProductType is the key digests are published under in the product store.
const ProductType = "digest"

// ruleName identifies the digest computation in the scheduler.
const ruleName = "digest.compute"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register contributes the source-bearing target types and the digest
// task for the build goal.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTargetType(&registry.TargetType{
		Alias:          "library",
		Description:    "A buildable library with declared sources.",
		RequiredFields: []string{"sources"},
	})
	r.RegisterTargetType(&registry.TargetType{
		Alias:          "binary",
		Description:    "A deployable binary with declared sources.",
		RequiredFields: []string{"sources"},
	})
	r.RegisterTask("build", NewTask())
}

// Task digests every source-bearing target that is invalid, publishes
// the digests as products, and marks the targets valid.
type Task struct {
	registerOnce sync.Once
}

// NewTask creates the digest task.
func NewTask() *Task {
	return &Task{}
}

func (t *Task) Name() string { return "digest" }

func (t *Task) ProductTypes() []string { return []string{ProductType} }

// AppliesTo selects targets that declare sources.
func (t *Task) AppliesTo(tgt *target.Target) bool {
	_, ok := tgt.Fields["sources"]
	return ok
}

// computeInput keys a digest computation on the target's version
// fingerprint and carries the declared source names into the rule body.
type computeInput struct {
	version fingerprint.Fingerprint
	sources []string
}

func (in computeInput) Fingerprint() fingerprint.Fingerprint {
	return in.version
}

func computeRule(_ context.Context, _ *scheduler.Call, input scheduler.Input) (any, error) {
	in, ok := input.(computeInput)
	if !ok {
		return nil, fmt.Errorf("digest: unexpected input type %T", input)
	}
	parts := []fingerprint.Fingerprint{in.version}
	sources := append([]string(nil), in.sources...)
	sort.Strings(sources)
	for _, src := range sources {
		parts = append(parts, fingerprint.OfString("source\x00"+src))
	}
	return fingerprint.Combine(parts...).Hex(), nil
}

func (t *Task) Execute(ctx context.Context, ec *task.Context) error {
	logger := ctxlog.FromContext(ctx)

	t.registerOnce.Do(func() {
		if err := ec.Scheduler.RegisterFunc(ruleName, computeRule); err != nil {
			logger.Warn("digest rule already registered", "error", err)
		}
	})

	var (
		misses []*invalidation.VersionedTarget
		reqs   []scheduler.Request
		hits   int
	)

	for _, vt := range ec.Check.All {
		data, ok, err := ec.Cache.Get(ctx, vt.Fingerprint)
		if err != nil {
			return err
		}
		if ok {
			hits++
			if err := t.publish(ctx, ec, vt, string(data)); err != nil {
				return err
			}
			continue
		}

		sources, err := sourceNames(vt.Target)
		if err != nil {
			return err
		}
		misses = append(misses, vt)
		reqs = append(reqs, scheduler.Request{
			Rule:  ruleName,
			Input: computeInput{version: vt.Fingerprint, sources: sources},
		})
	}

	outs, err := ec.Scheduler.MultiGet(ctx, reqs)
	if err != nil {
		return err
	}

	for i, vt := range misses {
		digest := outs[i].(string)
		if err := ec.Cache.Put(ctx, vt.Fingerprint, []byte(digest)); err != nil {
			logger.Warn("digest cache write failed",
				"target", vt.Target.Address.Spec(), "error", err)
		}
		if err := t.publish(ctx, ec, vt, digest); err != nil {
			return err
		}
	}

	logger.Info("digested targets",
		"targets", len(ec.Check.All), "cache_hits", hits, "computed", len(misses))
	return nil
}

// publish records the digest as a product, persists it into the target's
// result directory, and marks the version valid.
func (t *Task) publish(ctx context.Context, ec *task.Context, vt *invalidation.VersionedTarget, digest string) error {
	ec.Products.Put(ProductType, vt.Target.Address, digest)

	path := filepath.Join(vt.ResultsDir, "digest")
	if err := os.WriteFile(path, []byte(digest), 0o640); err != nil {
		return fmt.Errorf("digest: write %s: %w", path, err)
	}

	if !vt.Valid {
		ec.Tracker.MarkValid(vt)
	}
	return nil
}

func sourceNames(tgt *target.Target) ([]string, error) {
	val, ok := tgt.Fields["sources"]
	if !ok || val.IsNull() {
		return nil, nil
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("digest: target %s: sources must be a list", tgt.Address.Spec())
	}
	var names []string
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.Type() != cty.String || elem.IsNull() {
			return nil, fmt.Errorf("digest: target %s: sources must be strings", tgt.Address.Spec())
		}
		names = append(names, elem.AsString())
	}
	return names, nil
}
