// Package registry holds the explicit per-application registries: target
// type descriptors keyed by alias, and goal task pipelines in execution
// order. Nothing registers through package-level state; modules receive
// a Registry instance and register into it.
package registry
