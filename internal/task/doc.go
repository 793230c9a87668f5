// Package task defines the unit of goal execution: a named step that
// selects the targets it applies to and runs against a prepared
// execution context. Tasks are registered per goal and executed in
// registration order over the invalidated portion of the graph.
package task
