package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/buildgridgo/internal/task"
)

// Module is the interface a feature module implements to contribute
// target types and goal tasks to an application instance.
type Module interface {
	Register(r *Registry)
}

// TargetType describes a declarable target type alias.
type TargetType struct {
	// Alias is the name manifests use in their "type" attribute.
	Alias string

	// Description is shown in help output.
	Description string

	// RequiredFields are field names every declaration of this type must
	// carry.
	RequiredFields []string
}

// Registry holds all registered target types and goal pipelines for a
// single application instance.
type Registry struct {
	TargetTypes map[string]*TargetType
	goals       map[string][]task.Task
}

// New creates and initializes an empty Registry.
func New() *Registry {
	return &Registry{
		TargetTypes: make(map[string]*TargetType),
		goals:       make(map[string][]task.Task),
	}
}

// RegisterTargetType registers a target type descriptor under its alias.
func (r *Registry) RegisterTargetType(tt *TargetType) {
	if tt.Alias == "" {
		panic("target type with empty alias")
	}
	if _, exists := r.TargetTypes[tt.Alias]; exists {
		panic(fmt.Sprintf("target type with alias '%s' already registered", tt.Alias))
	}
	slog.Debug("Registering target type.", "alias", tt.Alias)
	r.TargetTypes[tt.Alias] = tt
}

// RegisterTask appends a task to a goal's pipeline. Pipeline order is
// registration order.
func (r *Registry) RegisterTask(goal string, t task.Task) {
	if goal == "" {
		panic("task registered under empty goal")
	}
	for _, existing := range r.goals[goal] {
		if existing.Name() == t.Name() {
			panic(fmt.Sprintf("task '%s' already registered in goal '%s'", t.Name(), goal))
		}
	}
	slog.Debug("Registering goal task.", "goal", goal, "task", t.Name())
	r.goals[goal] = append(r.goals[goal], t)
}

// TasksForGoal returns the goal's tasks in registration order, or nil
// for an unknown goal.
func (r *Registry) TasksForGoal(goal string) []task.Task {
	return r.goals[goal]
}

// GoalNames returns the registered goal names, sorted.
func (r *Registry) GoalNames() []string {
	names := make([]string, 0, len(r.goals))
	for name := range r.goals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
