// Package graph owns the build graph for one session: the entity store of
// targets keyed by address, and the dependency relation over them.
//
// The graph is append-only within a session. Targets enter via InjectTarget
// (or the synthetic injector built on top of it) and leave only via Reset.
// Mutation is single-writer during the construction phase; reads are safe
// from many goroutines.
//
// Cycle and dangling-edge detection is deferred to SortTargets: injection
// order across a large tree cannot always match dependency order, so
// InjectDependency tolerates (and warns about) edges to not-yet-present
// addresses, and the authoritative error surfaces from the sort pass.
package graph
