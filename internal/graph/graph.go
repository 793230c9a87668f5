package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/target"
)

// addrSet is an insertion-ordered set of addresses. Iteration order matters
// for deterministic walks and sorts.
type addrSet struct {
	order   []addr.Address
	members map[addr.Address]bool
}

func newAddrSet() *addrSet {
	return &addrSet{members: make(map[addr.Address]bool)}
}

// add returns false if the address was already present.
func (s *addrSet) add(a addr.Address) bool {
	if s.members[a] {
		return false
	}
	s.members[a] = true
	s.order = append(s.order, a)
	return true
}

func (s *addrSet) contains(a addr.Address) bool {
	return s != nil && s.members[a]
}

func (s *addrSet) slice() []addr.Address {
	if s == nil {
		return nil
	}
	out := make([]addr.Address, len(s.order))
	copy(out, s.order)
	return out
}

// Graph is the entity store and dependency relation for one build session.
// Edges are stored bidirectionally for O(1) traversal in both directions.
type Graph struct {
	mu          sync.RWMutex
	targets     map[addr.Address]*target.Target
	order       []addr.Address
	deps        map[addr.Address]*addrSet
	dependents  map[addr.Address]*addrSet
	derivedFrom map[addr.Address]addr.Address
}

// New creates an empty graph.
func New() *Graph {
	g := &Graph{}
	g.resetLocked()
	return g
}

// Reset clears all targets and edges. This is the only way entities leave
// the graph; there is no partial deletion.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

func (g *Graph) resetLocked() {
	g.targets = make(map[addr.Address]*target.Target)
	g.order = nil
	g.deps = make(map[addr.Address]*addrSet)
	g.dependents = make(map[addr.Address]*addrSet)
	g.derivedFrom = make(map[addr.Address]addr.Address)
}

// ContainsAddress reports whether a target has been injected at the address.
func (g *Graph) ContainsAddress(a addr.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.targets[a]
	return ok
}

// GetTarget returns the target at the address, if injected.
func (g *Graph) GetTarget(a addr.Address) (*target.Target, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.targets[a]
	return t, ok
}

// Targets returns all injected targets in insertion order, filtered by the
// optional predicate.
func (g *Graph) Targets(predicate func(*target.Target) bool) []*target.Target {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*target.Target, 0, len(g.order))
	for _, a := range g.order {
		t := g.targets[a]
		if predicate == nil || predicate(t) {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of injected targets.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.targets)
}

// InjectTarget adds a fully realized target to the graph, wiring its declared
// dependency edges. Addresses are append-only identities: injecting at an
// occupied address fails with *DuplicateAddressError.
//
// If the target carries a DerivedFrom address, that parent must already be in
// the graph; the derivation is recorded as provenance (not a dependency edge)
// and the target is marked synthetic.
func (g *Graph) InjectTarget(ctx context.Context, t *target.Target) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.targets[t.Address]; ok {
		return &DuplicateAddressError{Address: t.Address}
	}

	if t.DerivedFrom != nil {
		if _, ok := g.targets[*t.DerivedFrom]; !ok {
			return fmt.Errorf("cannot inject synthetic target %s derived from %s: the parent is not in the build graph",
				t.Address.Spec(), t.DerivedFrom.Spec())
		}
		g.derivedFrom[t.Address] = *t.DerivedFrom
		t.Synthetic = true
	}

	g.targets[t.Address] = t
	g.order = append(g.order, t.Address)

	// Edges are wired before the lock drops: a reader must never observe
	// the target without its declared dependencies.
	for _, dep := range t.Dependencies {
		if err := g.injectDependencyLocked(ctx, t.Address, dep); err != nil {
			return err
		}
	}
	return nil
}

// InjectDependency records that dependent depends on dependency. The
// dependent must already be injected. The dependency side may be absent:
// graph construction order cannot always match dependency order, so the edge
// is recorded with a warning and the authoritative error is deferred to
// SortTargets.
func (g *Graph) InjectDependency(ctx context.Context, dependent, dependency addr.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.injectDependencyLocked(ctx, dependent, dependency)
}

func (g *Graph) injectDependencyLocked(ctx context.Context, dependent, dependency addr.Address) error {
	if _, ok := g.targets[dependent]; !ok {
		return fmt.Errorf("cannot inject dependency from %s on %s: %w",
			dependent.Spec(), dependency.Spec(), g.notFoundLocked(dependent))
	}

	logger := ctxlog.FromContext(ctx)
	if _, ok := g.targets[dependency]; !ok {
		logger.Warn("Injecting dependency on an address that is not yet in the build graph; "+
			"this is fatal if it remains unresolved when targets are sorted.",
			"dependent", dependent.Spec(), "dependency", dependency.Spec())
	}

	deps := g.deps[dependent]
	if deps == nil {
		deps = newAddrSet()
		g.deps[dependent] = deps
	}
	if !deps.add(dependency) {
		logger.Warn("Dependency edge already present.",
			"dependent", dependent.Spec(), "dependency", dependency.Spec())
		return nil
	}

	rev := g.dependents[dependency]
	if rev == nil {
		rev = newAddrSet()
		g.dependents[dependency] = rev
	}
	rev.add(dependent)
	return nil
}

// DependenciesOf returns the direct dependency addresses of the target, in
// edge insertion order.
func (g *Graph) DependenciesOf(a addr.Address) ([]addr.Address, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.targets[a]; !ok {
		return nil, g.notFoundLocked(a)
	}
	return g.deps[a].slice(), nil
}

// DependentsOf returns the addresses of targets that directly depend on the
// target.
func (g *Graph) DependentsOf(a addr.Address) ([]addr.Address, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.targets[a]; !ok {
		return nil, g.notFoundLocked(a)
	}
	return g.dependents[a].slice(), nil
}

// GetDerivedFrom returns the target the given address was derived from, or
// the target itself when it is not a derivative.
func (g *Graph) GetDerivedFrom(a addr.Address) (*target.Target, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	parent, ok := g.derivedFrom[a]
	if !ok {
		parent = a
	}
	t, ok := g.targets[parent]
	return t, ok
}

// GetConcreteDerivedFrom follows the derivation chain to its fixed point: the
// ancestor that was not derived from anything. Chains are acyclic by
// construction, since a derivation parent must exist before its derivative is
// injected.
func (g *Graph) GetConcreteDerivedFrom(a addr.Address) (*target.Target, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	current := a
	for {
		next, ok := g.derivedFrom[current]
		if !ok || next == current {
			break
		}
		current = next
	}
	t, ok := g.targets[current]
	return t, ok
}
