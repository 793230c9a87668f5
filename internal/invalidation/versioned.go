package invalidation

import (
	"github.com/vk/buildgridgo/internal/fingerprint"
	"github.com/vk/buildgridgo/internal/target"
)

// VersionedTarget pairs a target with its current invalidation fingerprint
// and the validity verdict for one task's check.
type VersionedTarget struct {
	Target      *target.Target
	Fingerprint fingerprint.Fingerprint

	// Valid reports whether the fingerprint is unchanged since the last
	// computation marked good: the task may skip this target and reuse the
	// contents of ResultsDir.
	Valid bool

	// ResultsDir is the task- and fingerprint-scoped directory for this
	// target's outputs.
	ResultsDir string
}

// Check is the result of one invalidation query: every requested target, and
// the subset whose cached results are stale.
type Check struct {
	All     []*VersionedTarget
	Invalid []*VersionedTarget
}
