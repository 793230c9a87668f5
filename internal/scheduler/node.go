package scheduler

import (
	"sync/atomic"

	"github.com/vk/buildgridgo/internal/fingerprint"
)

// State is the lifecycle position of one memoized rule invocation.
type State int32

const (
	// Pending: requested, waiting for a worker slot.
	Pending State = iota
	// Running: the rule body is executing (or suspended at a Get).
	Running
	// Done: completed successfully; output cached.
	Done
	// Failed: the rule body returned an error; the failure is cached.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// nodeKey identifies one memoized invocation: the rule plus the fingerprint
// of its input.
type nodeKey struct {
	rule string
	fp   fingerprint.Fingerprint
}

func (k nodeKey) String() string {
	return k.rule + "(" + k.fp.Short() + ")"
}

// node is one entry of the memoization table.
type node struct {
	key   nodeKey
	state atomic.Int32

	// done is closed after output/err are set and the state is terminal.
	done   chan struct{}
	output any
	err    error
}

func newNode(key nodeKey) *node {
	n := &node{key: key, done: make(chan struct{})}
	n.state.Store(int32(Pending))
	return n
}

func (n *node) currentState() State {
	return State(n.state.Load())
}
