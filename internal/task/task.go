package task

import (
	"context"
	"sync"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/cache"
	"github.com/vk/buildgridgo/internal/graph"
	"github.com/vk/buildgridgo/internal/invalidation"
	"github.com/vk/buildgridgo/internal/scheduler"
	"github.com/vk/buildgridgo/internal/synthetic"
	"github.com/vk/buildgridgo/internal/target"
)

// Task is a single step of a goal. Implementations declare which targets
// they act on and which product types they publish; the engine supplies
// the targets, pre-filtered and in dependency order, through the Context.
type Task interface {
	// Name identifies the task in logs and result directories. Unique
	// within its goal.
	Name() string

	// ProductTypes names the products this task publishes to the
	// context, e.g. "digest". Empty for side-effect-only tasks.
	ProductTypes() []string

	// AppliesTo reports whether the task acts on the given target.
	AppliesTo(t *target.Target) bool

	// Execute runs the task over ec.Targets. A returned error aborts the
	// goal.
	Execute(ctx context.Context, ec *Context) error
}

// Context carries everything a task may touch during execution. One
// Context is built per task invocation; the Products store is shared
// across the tasks of a goal so later tasks can consume earlier output.
type Context struct {
	// Graph is the full dependency graph. Tasks may read it freely and
	// may grow it through the Injector.
	Graph *graph.Graph

	// Targets are the applicable targets in dependency order,
	// dependencies before their dependents.
	Targets []*target.Target

	// Check is the invalidation verdict for Targets. Tasks that honor
	// incrementality work from Check.Invalid and call MarkValid on the
	// tracker as units complete.
	Check *invalidation.Check

	// Tracker validates and invalidates target versions.
	Tracker *invalidation.Tracker

	// Scheduler memoizes rule executions across the session.
	Scheduler *scheduler.Scheduler

	// Injector derives synthetic targets from concrete ones.
	Injector *synthetic.Injector

	// Cache stores artifacts across sessions. Never nil; a disabled
	// cache is cache.Noop.
	Cache cache.Cache

	// Products is the shared inter-task product store for this goal.
	Products *Products
}

// Products is a concurrent store of per-target task output, keyed by
// product type then address. Tasks publish under the types they declare
// and read whatever earlier tasks in the goal produced.
type Products struct {
	mu     sync.RWMutex
	byType map[string]map[addr.Address]any
}

// NewProducts creates an empty product store.
func NewProducts() *Products {
	return &Products{byType: make(map[string]map[addr.Address]any)}
}

// Put publishes a product value for a target.
func (p *Products) Put(productType string, a addr.Address, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.byType[productType]
	if !ok {
		m = make(map[addr.Address]any)
		p.byType[productType] = m
	}
	m[a] = value
}

// Get returns the product of the given type for a target.
func (p *Products) Get(productType string, a addr.Address) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.byType[productType][a]
	return v, ok
}

// OfType returns a copy of every product of the given type.
func (p *Products) OfType(productType string) map[addr.Address]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[addr.Address]any, len(p.byType[productType]))
	for a, v := range p.byType[productType] {
		out[a] = v
	}
	return out
}
