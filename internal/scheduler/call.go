package scheduler

import "context"

// Call is handed to a running rule body and is its only way to request other
// rules' outputs. Get and MultiGet are the body's suspension points: while
// blocked, the body's worker slot is released back to the pool and
// reacquired on wake.
type Call struct {
	s   *Scheduler
	key nodeKey
}

// Get requests a single sub-invocation and suspends until it resolves. A
// request that would make this invocation wait for itself, directly or
// transitively, fails with *CycleError instead of deadlocking.
func (c *Call) Get(ruleName string, input Input) (any, error) {
	n, err := c.s.request(Request{Rule: ruleName, Input: input})
	if err != nil {
		return nil, err
	}
	if err := c.s.addWait(c.key, n.key); err != nil {
		return nil, err
	}
	defer c.s.removeWait(c.key, n.key)

	c.s.sem.Release(1)
	<-n.done
	// run releases the slot when the body returns, so it must be held again
	// before this returns, cancellation included.
	if err := c.s.sem.Acquire(context.Background(), 1); err != nil {
		return nil, err
	}
	if err := c.s.baseCtx.Err(); err != nil {
		return nil, err
	}
	return n.output, n.err
}

// MultiGet requests N sub-invocations, schedules them all concurrently, and
// suspends until all resolve or any one fails. Failure is fail-fast for the
// caller only: in-flight siblings run to completion and cache their results.
func (c *Call) MultiGet(reqs []Request) ([]any, error) {
	nodes := make([]*node, len(reqs))
	for i, req := range reqs {
		n, err := c.s.request(req)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}

	added := make([]nodeKey, 0, len(nodes))
	for _, n := range nodes {
		if err := c.s.addWait(c.key, n.key); err != nil {
			for _, k := range added {
				c.s.removeWait(c.key, k)
			}
			return nil, err
		}
		added = append(added, n.key)
	}
	defer func() {
		for _, k := range added {
			c.s.removeWait(c.key, k)
		}
	}()

	c.s.sem.Release(1)
	results, werr := waitAll(c.s.baseCtx, nodes)
	// Same slot balance as Get: reacquire before surfacing any error.
	if err := c.s.sem.Acquire(context.Background(), 1); err != nil {
		return nil, err
	}
	return results, werr
}

// addWait records that `from` is about to block on `to`, refusing the edge
// if it would close a wait-for cycle among in-flight invocations.
func (s *Scheduler) addWait(from, to nodeKey) error {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()

	if path := s.findWaitPath(to, from, make(map[nodeKey]bool)); path != nil {
		cycle := make([]string, 0, len(path)+1)
		cycle = append(cycle, from.String())
		for _, k := range path {
			cycle = append(cycle, k.String())
		}
		return &CycleError{Path: cycle}
	}
	s.waits[from] = append(s.waits[from], to)
	return nil
}

// findWaitPath returns the wait-for path from start to goal inclusive, or
// nil when goal is unreachable.
func (s *Scheduler) findWaitPath(start, goal nodeKey, visited map[nodeKey]bool) []nodeKey {
	if start == goal {
		return []nodeKey{start}
	}
	if visited[start] {
		return nil
	}
	visited[start] = true
	for _, next := range s.waits[start] {
		if path := s.findWaitPath(next, goal, visited); path != nil {
			return append([]nodeKey{start}, path...)
		}
	}
	return nil
}

func (s *Scheduler) removeWait(from, to nodeKey) {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	edges := s.waits[from]
	for i, k := range edges {
		if k == to {
			s.waits[from] = append(edges[:i], edges[i+1:]...)
			break
		}
	}
}

func (s *Scheduler) clearWaits(key nodeKey) {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	delete(s.waits, key)
}
