/*
Package addr provides the structured, type-safe representation for target
identifiers within the build graph, based on the canonical format
`spec_path:target_name`.

A spec is written as `[//]path[:name]`. A leading `//` forces absolute
interpretation against the build root; a spec beginning with `:` resolves
against the directory it was written in. A missing `:name` defaults the
target name to the basename of the path.

This package enforces the identifier schema and centralizes all formatting
and parsing logic, improving maintainability and robustness.
*/
package addr
