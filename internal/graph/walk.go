package graph

import (
	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/target"
)

// WalkTransitiveDependencyGraph calls visit on every target in the transitive
// dependency closure of roots, in depth-first preorder. A target failing the
// predicate is not visited and its subgraph is not entered: the predicate
// trims, it does not merely filter.
//
// visit runs under the graph's read lock and must not mutate the graph.
// Returning an error aborts the walk.
func (g *Graph) WalkTransitiveDependencyGraph(roots []addr.Address, visit func(*target.Target) error, predicate func(*target.Target) bool) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.walkLocked(roots, visit, predicate, g.deps)
}

// WalkTransitiveDependeeGraph is identical to WalkTransitiveDependencyGraph
// with the direction of every edge reversed: it walks the targets that
// transitively depend on roots.
func (g *Graph) WalkTransitiveDependeeGraph(roots []addr.Address, visit func(*target.Target) error, predicate func(*target.Target) bool) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.walkLocked(roots, visit, predicate, g.dependents)
}

func (g *Graph) walkLocked(roots []addr.Address, visit func(*target.Target) error, predicate func(*target.Target) bool, edges map[addr.Address]*addrSet) error {
	walked := make(map[addr.Address]bool)
	var walk func(a addr.Address) error
	walk = func(a addr.Address) error {
		if walked[a] {
			return nil
		}
		walked[a] = true
		t, ok := g.targets[a]
		if !ok {
			// Dangling edge; the sort pass owns reporting it.
			return nil
		}
		if predicate != nil && !predicate(t) {
			return nil
		}
		if err := visit(t); err != nil {
			return err
		}
		for _, next := range edges[a].slice() {
			if err := walk(next); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := walk(root); err != nil {
			return err
		}
	}
	return nil
}

// TransitiveSubgraphOf returns the transitive dependency closure of roots as
// a list in walk order.
func (g *Graph) TransitiveSubgraphOf(roots []addr.Address, predicate func(*target.Target) bool) ([]*target.Target, error) {
	var closure []*target.Target
	err := g.WalkTransitiveDependencyGraph(roots, func(t *target.Target) error {
		closure = append(closure, t)
		return nil
	}, predicate)
	return closure, err
}

// TransitiveDependentsOf returns every target that transitively depends on
// any of roots, including the roots themselves.
func (g *Graph) TransitiveDependentsOf(roots []addr.Address, predicate func(*target.Target) bool) ([]*target.Target, error) {
	var closure []*target.Target
	err := g.WalkTransitiveDependeeGraph(roots, func(t *target.Target) error {
		closure = append(closure, t)
		return nil
	}, predicate)
	return closure, err
}
