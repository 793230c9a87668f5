package graph

import (
	"fmt"
	"strings"

	"github.com/vk/buildgridgo/internal/addr"
)

// NotFoundError reports a lookup of an address that is not in the graph. It
// carries "did you mean" suggestions computed from sibling addresses at the
// same spec path.
type NotFoundError struct {
	Address    addr.Address
	DidYouMean []addr.Address
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("address %s is not in the build graph", e.Address.Spec())
	if len(e.DidYouMean) > 0 {
		specs := make([]string, len(e.DidYouMean))
		for i, a := range e.DidYouMean {
			specs[i] = a.Spec()
		}
		msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(specs, ", "))
	}
	return msg
}

// DuplicateAddressError reports an injection that would create a second
// entity at an existing address.
type DuplicateAddressError struct {
	Address addr.Address
}

func (e *DuplicateAddressError) Error() string {
	return fmt.Sprintf("a target already exists in the build graph at address %s", e.Address.Spec())
}

// CycleError reports a circular dependency. Cycle is an ordered list of
// addresses whose consecutive pairs are real edges of the graph; the first
// and last entries are the same address, closing the loop.
type CycleError struct {
	Cycle []addr.Address
}

func (e *CycleError) Error() string {
	specs := make([]string, len(e.Cycle))
	for i, a := range e.Cycle {
		specs[i] = a.Spec()
	}
	return "cycle detected:\n\t" + strings.Join(specs, " ->\n\t")
}

// DanglingEdgeError reports a dependency edge whose dependency side never
// resolved to an injected target by the time a topological sort ran. The
// edge was tolerated (with a warning) at injection time; here it is fatal.
type DanglingEdgeError struct {
	Dependent  addr.Address
	Dependency addr.Address
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("%s depends on %s, which was never injected into the build graph",
		e.Dependent.Spec(), e.Dependency.Spec())
}
