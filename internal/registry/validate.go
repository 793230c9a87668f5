package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/target"
)

// UnknownTypeError reports a declaration whose type alias has no
// registered descriptor.
type UnknownTypeError struct {
	Alias      string
	DidYouMean []string
}

func (e *UnknownTypeError) Error() string {
	msg := fmt.Sprintf("unknown target type %q", e.Alias)
	if len(e.DidYouMean) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.DidYouMean, ", "))
	}
	return msg
}

// ValidateRegistry performs a consistency check over the registered
// types and goal pipelines: duplicate product types within a goal and
// goals with no tasks are reported as errors.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, goal := range r.GoalNames() {
		tasks := r.goals[goal]
		if len(tasks) == 0 {
			errs = append(errs, fmt.Sprintf("goal '%s' has no tasks", goal))
			continue
		}

		producers := make(map[string]string)
		for _, t := range tasks {
			for _, pt := range t.ProductTypes() {
				if prev, ok := producers[pt]; ok {
					errs = append(errs, fmt.Sprintf("goal '%s': tasks '%s' and '%s' both produce product type '%s'", goal, prev, t.Name(), pt))
					continue
				}
				producers[pt] = t.Name()
			}
		}
	}

	if len(r.TargetTypes) == 0 {
		logger.Warn("No target types registered; every declaration will be rejected.")
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateTarget checks a declared target against its registered type:
// the alias must be known and every required field present. Unknown
// aliases carry close-match suggestions.
func (r *Registry) ValidateTarget(t *target.Target) error {
	tt, ok := r.TargetTypes[t.TypeAlias]
	if !ok {
		return &UnknownTypeError{
			Alias:      t.TypeAlias,
			DidYouMean: r.closeAliases(t.TypeAlias),
		}
	}

	var missing []string
	for _, field := range tt.RequiredFields {
		if _, ok := t.Fields[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("target %s: type %q requires fields: %s",
			t.Address.Spec(), tt.Alias, strings.Join(missing, ", "))
	}
	return nil
}

const maxAliasSuggestions = 3

func (r *Registry) closeAliases(alias string) []string {
	type scored struct {
		alias string
		dist  int
	}
	var candidates []scored
	for known := range r.TargetTypes {
		dist := levenshtein.Distance(alias, known, nil)
		if dist <= len(alias)/2+1 {
			candidates = append(candidates, scored{alias: known, dist: dist})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].alias < candidates[j].alias
	})
	if len(candidates) > maxAliasSuggestions {
		candidates = candidates[:maxAliasSuggestions]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.alias
	}
	return out
}
