// Package app encapsulates the application's dependencies, configuration,
// and lifecycle: logger construction, module registration, manifest
// loading, session wiring, and goal execution.
package app
