package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/target"
	"github.com/vk/buildgridgo/internal/task"
	"github.com/vk/buildgridgo/internal/watch"
)

// Run executes the configured goals over the loaded graph. In watch mode
// it then blocks, re-executing the goals whenever file changes
// invalidate targets, until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if err := a.executeGoals(ctx); err != nil {
		return err
	}

	if !a.config.Watch {
		a.logger.Debug("App.Run method finished.")
		return nil
	}

	w, err := watch.New(a.config.BuildPath, a.session.Graph(), a.session.Tracker(),
		watch.OnInvalidated(func(ctx context.Context, changed []addr.Address) {
			if err := a.executeGoals(ctx); err != nil {
				a.logger.Error("goal re-execution failed", "error", err)
			}
		}))
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Stop()
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (a *App) executeGoals(ctx context.Context) error {
	for _, goal := range a.config.goals() {
		if err := a.runGoal(ctx, goal); err != nil {
			return fmt.Errorf("goal %s: %w", goal, err)
		}
	}
	return nil
}

// runGoal executes a goal's task pipeline in registration order. Target
// selection is recomputed before each task so that targets injected by
// earlier tasks are visible to later ones.
func (a *App) runGoal(ctx context.Context, goal string) error {
	logger := ctxlog.FromContext(ctx)

	tasks := a.registry.TasksForGoal(goal)
	if tasks == nil {
		return fmt.Errorf("unknown goal; registered goals: %s",
			strings.Join(a.registry.GoalNames(), ", "))
	}

	logger.Info("🚀 Executing goal.", "goal", goal, "tasks", len(tasks))
	products := task.NewProducts()

	for _, tsk := range tasks {
		targets, err := a.selectTargets(tsk.AppliesTo)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			logger.Debug("no applicable targets, skipping task", "task", tsk.Name())
			continue
		}

		check, err := a.session.Tracker().Check(ctx, tsk.Name(), targets)
		if err != nil {
			return fmt.Errorf("task %s: invalidation check: %w", tsk.Name(), err)
		}
		logger.Debug("task starting",
			"task", tsk.Name(), "targets", len(targets), "invalid", len(check.Invalid))

		ec := &task.Context{
			Graph:     a.session.Graph(),
			Targets:   targets,
			Check:     check,
			Tracker:   a.session.Tracker(),
			Scheduler: a.session.Scheduler(),
			Injector:  a.session.Injector(),
			Cache:     a.session.Cache(),
			Products:  products,
		}
		if err := tsk.Execute(ctx, ec); err != nil {
			return fmt.Errorf("task %s: %w", tsk.Name(), err)
		}
	}

	logger.Info("🏁 Goal finished.", "goal", goal)
	return nil
}

// selectTargets returns the applicable targets in dependency order,
// dependencies before dependents, restricted to the configured spec
// closure when one is set.
func (a *App) selectTargets(applies func(*target.Target) bool) ([]*target.Target, error) {
	scoped, err := a.scopeTargets()
	if err != nil {
		return nil, err
	}

	// A scoped run sorts only the spec closure, so targets outside it
	// cannot fail the sort.
	var sorted []*target.Target
	if scoped != nil {
		sorted, err = a.session.Graph().SortTargets(scoped)
	} else {
		sorted, err = a.session.Graph().SortedTargets()
	}
	if err != nil {
		return nil, err
	}

	var out []*target.Target
	// The sort yields the most dependent targets first; tasks want
	// dependencies first.
	for i := len(sorted) - 1; i >= 0; i-- {
		t := sorted[i]
		if applies(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// scopeTargets resolves the configured target specs to their transitive
// dependency closure, or nil when no specs restrict the run.
func (a *App) scopeTargets() ([]*target.Target, error) {
	if len(a.config.TargetSpecs) == 0 {
		return nil, nil
	}

	roots := make([]addr.Address, 0, len(a.config.TargetSpecs))
	for _, spec := range a.config.TargetSpecs {
		root, err := addr.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("target spec %q: %w", spec, err)
		}
		roots = append(roots, root)
	}
	return a.session.Graph().TransitiveSubgraphOf(roots, nil)
}
