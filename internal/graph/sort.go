package graph

import (
	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/target"
)

// SortedTargets returns every target in the graph ordered from most dependent
// to least: for every edge (A depends on B), B appears after A.
func (g *Graph) SortedTargets() ([]*target.Target, error) {
	return g.SortTargets(g.Targets(nil))
}

// SortTargets topologically sorts the transitive closure of the given
// targets, most-dependent-first.
//
// The sort runs in two passes. The first DFS inverts the adjacency relation
// and raises *CycleError the instant it revisits an address already on the
// current DFS path; an address merely visited on an earlier, completed path
// is not a cycle, and conflating the two is the classic way to get this
// wrong. The same pass surfaces *DanglingEdgeError for edges whose
// dependency side was never injected. The second DFS over the inverted
// relation emits the final order.
func (g *Graph) SortTargets(targets []*target.Target) ([]*target.Target, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inverted := make(map[addr.Address][]addr.Address)
	visited := make(map[addr.Address]bool)
	var visitOrder []addr.Address
	onPath := make(map[addr.Address]bool)
	var path []addr.Address

	var invert func(a addr.Address) error
	invert = func(a addr.Address) error {
		if onPath[a] {
			head := 0
			for i, p := range path {
				if p == a {
					head = i
					break
				}
			}
			cycle := make([]addr.Address, 0, len(path)-head+1)
			cycle = append(cycle, path[head:]...)
			cycle = append(cycle, a)
			return &CycleError{Cycle: cycle}
		}
		if visited[a] {
			return nil
		}
		visited[a] = true
		visitOrder = append(visitOrder, a)
		onPath[a] = true
		path = append(path, a)

		for _, dep := range g.deps[a].slice() {
			if _, ok := g.targets[dep]; !ok {
				return &DanglingEdgeError{Dependent: a, Dependency: dep}
			}
			inverted[dep] = append(inverted[dep], a)
			if err := invert(dep); err != nil {
				return err
			}
		}

		onPath[a] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, t := range targets {
		if err := invert(t.Address); err != nil {
			return nil, err
		}
	}

	var ordered []*target.Target
	emitted := make(map[addr.Address]bool)
	var emit func(a addr.Address)
	emit = func(a addr.Address) {
		if emitted[a] {
			return
		}
		emitted[a] = true
		for _, dependent := range inverted[a] {
			emit(dependent)
		}
		if t, ok := g.targets[a]; ok {
			ordered = append(ordered, t)
		}
	}
	for _, a := range visitOrder {
		emit(a)
	}
	return ordered, nil
}
