// Package synthetic exposes the one sanctioned way for backend tasks to add
// generated targets to the build graph. Injection is a single atomic
// operation with three effects that must never be separated: the child is
// injected with its parent's dependency edges, the parent's dependents are
// redirected to also depend on the child, and the parent's transitive
// dependee closure is invalidated so cached fingerprints recompute with the
// child included.
package synthetic

import (
	"fmt"
	"sync"

	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/graph"
	"github.com/vk/buildgridgo/internal/invalidation"
	"github.com/vk/buildgridgo/internal/target"
)

// TargetSpec describes the generated target a backend wants injected.
type TargetSpec struct {
	// Path is the spec path for the child. Empty means "same as parent".
	Path string
	// Name is the child's target name.
	Name string
	// TypeAlias is the registered target type of the child.
	TypeAlias string
	// Fields are the child's opaque typed attributes.
	Fields map[string]cty.Value
}

// Injector serializes synthetic injection over one graph. Two sibling rules
// racing to inject the same generated target are ordered here; the loser
// observes a content-identical duplicate and reuses it.
type Injector struct {
	mu      sync.Mutex
	graph   *graph.Graph
	tracker *invalidation.Tracker
}

// NewInjector creates an injector over the session's graph and tracker.
func NewInjector(g *graph.Graph, tracker *invalidation.Tracker) *Injector {
	return &Injector{graph: g, tracker: tracker}
}

// Inject atomically adds a generated target derived from parent.
//
// Re-injecting an identical child (same derivation parent, same type and
// fields) is a no-op returning the existing address. A child address that is
// occupied by anything else fails with *graph.DuplicateAddressError.
func (in *Injector) Inject(ctx context.Context, parent addr.Address, spec TargetSpec, extraDeps []addr.Address) (addr.Address, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, ok := in.graph.GetTarget(parent); !ok {
		return addr.Address{}, fmt.Errorf("cannot inject synthetic target derived from %s: parent is not in the build graph", parent.Spec())
	}

	path := spec.Path
	if path == "" {
		path = parent.SpecPath
	}
	childAddr, err := addr.New(path, spec.Name)
	if err != nil {
		return addr.Address{}, err
	}

	child := target.New(childAddr, spec.TypeAlias).WithFields(spec.Fields)
	child.DerivedFrom = &parent

	if existing, ok := in.graph.GetTarget(childAddr); ok {
		if existing.DerivedFrom != nil && *existing.DerivedFrom == parent &&
			existing.TypeAlias == spec.TypeAlias && existing.FieldsEqual(child) {
			ctxlog.FromContext(ctx).Debug("Synthetic target already injected; reusing.",
				"address", childAddr.Spec(), "derived_from", parent.Spec())
			return childAddr, nil
		}
		return addr.Address{}, &graph.DuplicateAddressError{Address: childAddr}
	}

	// (a) The child inherits the parent's concrete dependency edges, plus
	// whatever the backend declared on top.
	parentDeps, err := in.graph.DependenciesOf(parent)
	if err != nil {
		return addr.Address{}, err
	}
	seen := make(map[addr.Address]bool)
	var deps []addr.Address
	for _, d := range append(parentDeps, extraDeps...) {
		if d == childAddr || seen[d] {
			continue
		}
		seen[d] = true
		deps = append(deps, d)
	}
	child.Dependencies = deps

	if err := in.graph.InjectTarget(ctx, child); err != nil {
		return addr.Address{}, err
	}

	// (b) Dependents of the parent expect the generated artifact, not the
	// raw source target: redirect them to also depend on the child.
	dependents, err := in.graph.DependentsOf(parent)
	if err != nil {
		return addr.Address{}, err
	}
	for _, dependent := range dependents {
		if dependent == childAddr {
			continue
		}
		if err := in.graph.InjectDependency(ctx, dependent, childAddr); err != nil {
			return addr.Address{}, err
		}
	}

	// (c) Everything above the parent must refingerprint with the child
	// included.
	in.tracker.InvalidateTransitively(ctx, []addr.Address{parent})

	ctxlog.FromContext(ctx).Debug("Synthetic target injected.",
		"address", childAddr.Spec(), "derived_from", parent.Spec(),
		"deps", len(deps), "rewired_dependents", len(dependents))
	return childAddr, nil
}
