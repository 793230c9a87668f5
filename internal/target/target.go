// Package target defines the entity stored at each address of the build
// graph: a buildable unit with declared dependencies and opaque typed fields.
package target

import (
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/fingerprint"
)

// Target is a node in the dependency graph. Instances are owned exclusively
// by the graph once injected; callers must not mutate a target after handing
// it over.
type Target struct {
	// Address is the target's identity.
	Address addr.Address

	// TypeAlias names the registered target type this entity was declared as,
	// e.g. "java_library". Opaque to the core.
	TypeAlias string

	// Dependencies are the declared dependency addresses, in declaration
	// order. The graph's edge maps, not this slice, are authoritative after
	// injection.
	Dependencies []addr.Address

	// Fields holds arbitrary typed attributes (sources, platform, ...). The
	// core never interprets them beyond fingerprinting.
	Fields map[string]cty.Value

	// Synthetic marks targets injected by generated/derived logic rather
	// than declared in a manifest.
	Synthetic bool

	// DerivedFrom is a weak back-reference to the target this one was
	// derived from, if any. It is provenance, not ownership: the referenced
	// parent lives independently in the graph.
	DerivedFrom *addr.Address
}

// New returns a target with the given identity and type alias.
func New(a addr.Address, typeAlias string) *Target {
	return &Target{Address: a, TypeAlias: typeAlias}
}

// WithFields sets the target's opaque fields and returns it, for call chaining
// during construction.
func (t *Target) WithFields(fields map[string]cty.Value) *Target {
	t.Fields = fields
	return t
}

// WithDependencies sets the declared dependency addresses.
func (t *Target) WithDependencies(deps ...addr.Address) *Target {
	t.Dependencies = deps
	return t
}

// FieldsEqual reports whether two targets carry equal opaque fields, used to
// decide whether a re-derived synthetic target is content-identical.
func (t *Target) FieldsEqual(other *Target) bool {
	if len(t.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range t.Fields {
		ov, ok := other.Fields[k]
		if !ok || ov.Equals(v) != cty.True {
			return false
		}
	}
	return true
}

// ContentFingerprint hashes the target's own declared identity: address, type
// alias, and fields (sorted by key). Dependency fingerprints are combined
// separately by the invalidation tracker.
func (t *Target) ContentFingerprint() (fingerprint.Fingerprint, error) {
	parts := []fingerprint.Fingerprint{
		fingerprint.OfString("address\x00" + t.Address.Spec()),
		fingerprint.OfString("type\x00" + t.TypeAlias),
	}

	keys := make([]string, 0, len(t.Fields))
	for k := range t.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vfp, err := fingerprint.OfCtyValue(t.Fields[k])
		if err != nil {
			return fingerprint.Zero, err
		}
		parts = append(parts, fingerprint.Combine(fingerprint.OfString("field\x00"+k), vfp))
	}

	return fingerprint.Combine(parts...), nil
}
