// Package session wires the per-run engine state into a single owned
// object. Nothing in the engine lives in package-level state: every
// graph, tracker, scheduler, and cache belongs to exactly one Session,
// and concurrent sessions do not observe each other.
package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/vk/buildgridgo/internal/cache"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/graph"
	"github.com/vk/buildgridgo/internal/invalidation"
	"github.com/vk/buildgridgo/internal/scheduler"
	"github.com/vk/buildgridgo/internal/synthetic"
)

// Options configures a new session.
type Options struct {
	// Workdir is the root directory for per-version result directories.
	Workdir string

	// Workers bounds concurrent rule executions. Zero means
	// scheduler.DefaultWorkers.
	Workers int

	// Cache stores artifacts across sessions. Nil means cache.Noop.
	Cache cache.Cache

	// NoCache forces every invalidation check to report all targets
	// invalid.
	NoCache bool

	// InvalidateDependents widens invalidation to transitive dependents.
	InvalidateDependents bool
}

// Session owns the mutable engine state for one run sequence. Safe for
// concurrent use by the tasks it executes.
type Session struct {
	id        string
	graph     *graph.Graph
	tracker   *invalidation.Tracker
	scheduler *scheduler.Scheduler
	injector  *synthetic.Injector
	cache     cache.Cache
	workdir   string
}

// Factory creates sessions. Implementations may back them with local or
// remote execution state.
type Factory interface {
	NewSession(ctx context.Context, opts Options) (*Session, error)
}

// LocalFactory creates fully in-process sessions.
type LocalFactory struct{}

// NewSession builds and wires a local session.
func (LocalFactory) NewSession(ctx context.Context, opts Options) (*Session, error) {
	id := uuid.NewString()

	var trackerOpts []invalidation.Option
	if opts.NoCache {
		trackerOpts = append(trackerOpts, invalidation.NoCache())
	}
	if opts.InvalidateDependents {
		trackerOpts = append(trackerOpts, invalidation.InvalidateDependents())
	}

	g := graph.New()
	tracker := invalidation.NewTracker(g, opts.Workdir, trackerOpts...)

	workers := opts.Workers
	if workers <= 0 {
		workers = scheduler.DefaultWorkers
	}

	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}

	s := &Session{
		id:        id,
		graph:     g,
		tracker:   tracker,
		scheduler: scheduler.New(ctx, workers),
		injector:  synthetic.NewInjector(g, tracker),
		cache:     c,
		workdir:   opts.Workdir,
	}
	ctxlog.FromContext(ctx).Debug("session created", "session_id", id, "workers", workers)
	return s, nil
}

// ID returns the unique run identifier.
func (s *Session) ID() string { return s.id }

// Graph returns the session's dependency graph.
func (s *Session) Graph() *graph.Graph { return s.graph }

// Tracker returns the session's invalidation tracker.
func (s *Session) Tracker() *invalidation.Tracker { return s.tracker }

// Scheduler returns the session's memoizing rule scheduler.
func (s *Session) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Injector returns the session's synthetic target injector.
func (s *Session) Injector() *synthetic.Injector { return s.injector }

// Cache returns the session's artifact cache. Never nil.
func (s *Session) Cache() cache.Cache { return s.cache }

// Workdir returns the root of the session's result directories.
func (s *Session) Workdir() string { return s.workdir }

// Close releases session resources, including the artifact cache.
func (s *Session) Close(ctx context.Context) error {
	ctxlog.FromContext(ctx).Debug("session closing", "session_id", s.id)
	return s.cache.Close()
}
