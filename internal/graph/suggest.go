package graph

import (
	"sort"

	"github.com/agext/levenshtein"

	"github.com/vk/buildgridgo/internal/addr"
)

// maxSuggestions bounds the "did you mean" list on lookup failures.
const maxSuggestions = 5

// notFoundLocked builds a NotFoundError for a, with suggestions drawn from
// sibling addresses at the same spec path ranked by edit distance of the
// target name. Callers must hold at least a read lock.
func (g *Graph) notFoundLocked(a addr.Address) *NotFoundError {
	type scored struct {
		address  addr.Address
		distance int
	}
	var siblings []scored
	for _, existing := range g.order {
		if existing.SpecPath != a.SpecPath {
			continue
		}
		d := levenshtein.Distance(a.TargetName, existing.TargetName, nil)
		siblings = append(siblings, scored{address: existing, distance: d})
	}
	sort.Slice(siblings, func(i, j int) bool {
		if siblings[i].distance != siblings[j].distance {
			return siblings[i].distance < siblings[j].distance
		}
		return siblings[i].address.Less(siblings[j].address)
	})

	suggestions := make([]addr.Address, 0, maxSuggestions)
	for _, s := range siblings {
		if len(suggestions) == maxSuggestions {
			break
		}
		suggestions = append(suggestions, s.address)
	}
	return &NotFoundError{Address: a, DidYouMean: suggestions}
}
