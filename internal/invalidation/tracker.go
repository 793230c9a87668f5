// Package invalidation decides, for any target, whether its previously
// computed results remain valid, by fingerprinting each target's own content
// together with the recursively combined fingerprints of its dependencies.
package invalidation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/fingerprint"
	"github.com/vk/buildgridgo/internal/graph"
	"github.com/vk/buildgridgo/internal/target"
)

// Option adjusts tracker behavior.
type Option func(*Tracker)

// NoCache forces every checked target invalid regardless of fingerprints.
func NoCache() Option {
	return func(t *Tracker) { t.noCache = true }
}

// InvalidateDependents widens each check: any target depending transitively
// on an invalid target is also reported invalid.
func InvalidateDependents() Option {
	return func(t *Tracker) { t.invalidateDependents = true }
}

// Tracker computes and caches per-target invalidation fingerprints over a
// build graph.
type Tracker struct {
	graph   *graph.Graph
	workdir string

	noCache              bool
	invalidateDependents bool

	mu   sync.Mutex
	memo map[addr.Address]fingerprint.Fingerprint
	good map[addr.Address]fingerprint.Fingerprint
}

// NewTracker creates a tracker over g. Task results directories are laid out
// under workdir.
func NewTracker(g *graph.Graph, workdir string, opts ...Option) *Tracker {
	t := &Tracker{
		graph:   g,
		workdir: workdir,
		memo:    make(map[addr.Address]fingerprint.Fingerprint),
		good:    make(map[addr.Address]fingerprint.Fingerprint),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fingerprint returns the target's versioned identity: its content
// fingerprint combined with the fingerprints of all its dependencies. The
// result is a pure function of current graph state. Dependency fingerprints
// are sorted before combining, so non-deterministic graph construction order
// cannot produce spurious invalidation.
func (t *Tracker) Fingerprint(a addr.Address) (fingerprint.Fingerprint, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fingerprintLocked(a, nil)
}

func (t *Tracker) fingerprintLocked(a addr.Address, path []addr.Address) (fingerprint.Fingerprint, error) {
	if fp, ok := t.memo[a]; ok {
		return fp, nil
	}
	for i, p := range path {
		if p == a {
			cycle := append(append([]addr.Address{}, path[i:]...), a)
			return fingerprint.Zero, &graph.CycleError{Cycle: cycle}
		}
	}

	tgt, ok := t.graph.GetTarget(a)
	if !ok {
		return fingerprint.Zero, fmt.Errorf("cannot fingerprint %s: not in the build graph", a.Spec())
	}
	content, err := tgt.ContentFingerprint()
	if err != nil {
		return fingerprint.Zero, fmt.Errorf("fingerprinting %s: %w", a.Spec(), err)
	}

	deps, err := t.graph.DependenciesOf(a)
	if err != nil {
		return fingerprint.Zero, err
	}
	parts := make([]fingerprint.Fingerprint, 0, len(deps)+1)
	parts = append(parts, content)
	path = append(path, a)
	for _, dep := range deps {
		if !t.graph.ContainsAddress(dep) {
			return fingerprint.Zero, &graph.DanglingEdgeError{Dependent: a, Dependency: dep}
		}
		depFP, err := t.fingerprintLocked(dep, path)
		if err != nil {
			return fingerprint.Zero, err
		}
		parts = append(parts, depFP)
	}

	fp := fingerprint.Combine(parts...)
	t.memo[a] = fp
	return fp, nil
}

// InvalidateTransitively clears the cached fingerprints of every target that
// transitively depends on any of the changed addresses, forcing recomputation
// on the next request. Dependencies of a changed target are unaffected:
// nothing below a change can have been dirtied by it.
func (t *Tracker) InvalidateTransitively(ctx context.Context, changed []addr.Address) {
	var cleared []addr.Address
	_ = t.graph.WalkTransitiveDependeeGraph(changed, func(tgt *target.Target) error {
		cleared = append(cleared, tgt.Address)
		return nil
	}, nil)

	t.mu.Lock()
	for _, a := range cleared {
		delete(t.memo, a)
	}
	// Changed addresses may not be injected yet (e.g. a manifest edit for a
	// target loaded next session); clear them regardless.
	for _, a := range changed {
		delete(t.memo, a)
	}
	t.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Invalidated transitive dependee closure.",
		"changed", len(changed), "cleared", len(cleared))
}

// MarkValid records the versioned target's fingerprint as the last known-good
// computation, making it valid on subsequent checks until invalidated.
func (t *Tracker) MarkValid(vt *VersionedTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.good[vt.Target.Address] = vt.Fingerprint
}

// Check computes the validity of each target for the named task and creates
// the per-target results directories. "Valid" means: safe to skip
// recomputation entirely and reuse the prior results.
func (t *Tracker) Check(ctx context.Context, taskName string, targets []*target.Target) (*Check, error) {
	check := &Check{}
	invalidRoots := make([]addr.Address, 0)

	for _, tgt := range targets {
		fp, err := t.Fingerprint(tgt.Address)
		if err != nil {
			return nil, err
		}
		vt := &VersionedTarget{
			Target:      tgt,
			Fingerprint: fp,
			ResultsDir:  t.resultsDir(taskName, tgt.Address, fp),
		}
		t.mu.Lock()
		vt.Valid = !t.noCache && t.good[tgt.Address] == fp
		t.mu.Unlock()
		if err := os.MkdirAll(vt.ResultsDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating results dir for %s: %w", tgt.Address.Spec(), err)
		}
		check.All = append(check.All, vt)
		if !vt.Valid {
			invalidRoots = append(invalidRoots, tgt.Address)
		}
	}

	if t.invalidateDependents && len(invalidRoots) > 0 {
		dirty := make(map[addr.Address]bool)
		_ = t.graph.WalkTransitiveDependeeGraph(invalidRoots, func(tgt *target.Target) error {
			dirty[tgt.Address] = true
			return nil
		}, nil)
		for _, vt := range check.All {
			if vt.Valid && dirty[vt.Target.Address] {
				vt.Valid = false
			}
		}
	}

	for _, vt := range check.All {
		if !vt.Valid {
			check.Invalid = append(check.Invalid, vt)
		}
	}

	ctxlog.FromContext(ctx).Debug("Invalidation check complete.",
		"task", taskName, "targets", len(check.All), "invalid", len(check.Invalid))
	return check, nil
}

// resultsDir is stable for a stable fingerprint: workdir/task/address/fp12.
func (t *Tracker) resultsDir(taskName string, a addr.Address, fp fingerprint.Fingerprint) string {
	safe := strings.ReplaceAll(a.SpecPath, "/", ".")
	if safe == "" {
		safe = "_root_"
	}
	return filepath.Join(t.workdir, taskName, safe+"."+a.TargetName, fp.Short())
}
