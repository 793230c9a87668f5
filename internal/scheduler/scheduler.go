package scheduler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/fingerprint"
)

// DefaultWorkers bounds concurrently running rule bodies when the caller
// does not say otherwise.
const DefaultWorkers = 10

// Input is a rule's typed input. Implementations must make Fingerprint a
// pure function of the input's content: it is the memoization key.
type Input interface {
	Fingerprint() fingerprint.Fingerprint
}

// StringInput is a plain string rule input.
type StringInput string

func (s StringInput) Fingerprint() fingerprint.Fingerprint {
	return fingerprint.OfString(string(s))
}

// BytesInput is a raw bytes rule input.
type BytesInput []byte

func (b BytesInput) Fingerprint() fingerprint.Fingerprint {
	return fingerprint.OfBytes(b)
}

// FingerprintInput keys a request on an already-computed fingerprint, e.g. a
// target's invalidation fingerprint.
type FingerprintInput fingerprint.Fingerprint

func (f FingerprintInput) Fingerprint() fingerprint.Fingerprint {
	return fingerprint.Fingerprint(f)
}

// RunFunc is a rule body. It must be pure with respect to its input: the
// scheduler caches whatever it returns, error included.
type RunFunc func(ctx context.Context, call *Call, input Input) (any, error)

// Rule is a named computation schedulable by request.
type Rule struct {
	Name string
	Run  RunFunc
}

// Request names one desired rule invocation.
type Request struct {
	Rule  string
	Input Input
}

// Scheduler owns the memoization table and the worker pool for one session.
type Scheduler struct {
	baseCtx context.Context
	sem     *semaphore.Weighted

	mu    sync.Mutex
	rules map[string]*Rule
	nodes map[nodeKey]*node

	waitMu sync.Mutex
	waits  map[nodeKey][]nodeKey
}

// New creates a scheduler whose rule bodies run on ctx (the session
// lifetime, not any individual request's) with at most workers bodies
// running at once.
func New(ctx context.Context, workers int) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Scheduler{
		baseCtx: ctx,
		sem:     semaphore.NewWeighted(int64(workers)),
		rules:   make(map[string]*Rule),
		nodes:   make(map[nodeKey]*node),
		waits:   make(map[nodeKey][]nodeKey),
	}
}

// Register adds a rule. Rule names are unique per scheduler.
func (s *Scheduler) Register(r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.Name]; ok {
		return fmt.Errorf("rule %q is already registered", r.Name)
	}
	s.rules[r.Name] = r
	return nil
}

// RegisterFunc is shorthand for Register(&Rule{Name: name, Run: fn}).
func (s *Scheduler) RegisterFunc(name string, fn RunFunc) error {
	return s.Register(&Rule{Name: name, Run: fn})
}

// Get requests one rule invocation from outside any rule body and blocks
// until it resolves. The first request for a (rule, input) pair starts the
// execution; every later request attaches to it.
func (s *Scheduler) Get(ctx context.Context, ruleName string, input Input) (any, error) {
	n, err := s.request(Request{Rule: ruleName, Input: input})
	if err != nil {
		return nil, err
	}
	select {
	case <-n.done:
		return n.output, n.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MultiGet requests many invocations from outside any rule body, scheduling
// them all concurrently. It fails fast on the first failure; in-flight
// siblings are not aborted; they run to completion and cache their results
// for later requests.
func (s *Scheduler) MultiGet(ctx context.Context, reqs []Request) ([]any, error) {
	nodes := make([]*node, len(reqs))
	for i, req := range reqs {
		n, err := s.request(req)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return waitAll(ctx, nodes)
}

// NodeState reports the lifecycle state of a (rule, input) pair, if it has
// ever been requested.
func (s *Scheduler) NodeState(ruleName string, input Input) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeKey{rule: ruleName, fp: input.Fingerprint()}]
	if !ok {
		return Pending, false
	}
	return n.currentState(), true
}

// request is the memoizing get-or-start operation.
func (s *Scheduler) request(req Request) (*node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[req.Rule]
	if !ok {
		return nil, &UnknownRuleError{Rule: req.Rule}
	}
	key := nodeKey{rule: req.Rule, fp: req.Input.Fingerprint()}
	if n, ok := s.nodes[key]; ok {
		return n, nil
	}
	n := newNode(key)
	s.nodes[key] = n
	go s.run(n, rule, req.Input)
	return n, nil
}

// run executes one rule body under a worker slot and publishes its result.
func (s *Scheduler) run(n *node, rule *Rule, input Input) {
	if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
		s.finish(n, nil, err)
		return
	}
	n.state.Store(int32(Running))
	ctxlog.FromContext(s.baseCtx).Debug("Rule started.", "node", n.key.String())

	call := &Call{s: s, key: n.key}
	out, err := func() (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("rule body panicked: %v", r)
			}
		}()
		return rule.Run(s.baseCtx, call, input)
	}()

	s.sem.Release(1)
	s.finish(n, out, err)
}

// finish moves the node to its terminal state exactly once and wakes all
// attached waiters.
func (s *Scheduler) finish(n *node, out any, err error) {
	logger := ctxlog.FromContext(s.baseCtx)
	if err != nil {
		n.err = &RuleError{Rule: n.key.rule, Fingerprint: n.key.fp, Err: err}
		n.state.Store(int32(Failed))
		logger.Debug("Rule failed.", "node", n.key.String(), "error", err)
	} else {
		n.output = out
		n.state.Store(int32(Done))
		logger.Debug("Rule done.", "node", n.key.String())
	}
	s.clearWaits(n.key)
	close(n.done)
}

// waitAll blocks until every node resolves or one fails, whichever is first.
// On failure the unfinished siblings keep running; only the caller is
// unblocked early.
func waitAll(ctx context.Context, nodes []*node) ([]any, error) {
	ready := make(chan int, len(nodes))
	for i, n := range nodes {
		go func(i int, n *node) {
			<-n.done
			ready <- i
		}(i, n)
	}

	results := make([]any, len(nodes))
	for remaining := len(nodes); remaining > 0; remaining-- {
		select {
		case i := <-ready:
			n := nodes[i]
			if n.err != nil {
				return nil, n.err
			}
			results[i] = n.output
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}
