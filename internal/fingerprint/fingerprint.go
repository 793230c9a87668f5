package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Fingerprint is a SHA-256 content digest used as a cache-validity key.
type Fingerprint [sha256.Size]byte

// Zero is the empty fingerprint, never produced by hashing.
var Zero Fingerprint

// Hex returns the full lowercase hex rendering of the fingerprint.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// Short returns a 12-character prefix of the hex rendering, suitable for
// directory names and log lines.
func (f Fingerprint) Short() string {
	return f.Hex()[:12]
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return f.Short()
}

// IsZero reports whether the fingerprint is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Zero
}

// Compare orders fingerprints lexicographically by digest bytes.
func (f Fingerprint) Compare(other Fingerprint) int {
	return bytes.Compare(f[:], other[:])
}

// ParseHex decodes a full hex rendering back into a Fingerprint.
func ParseHex(s string) (Fingerprint, error) {
	var f Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	if len(raw) != sha256.Size {
		return Zero, fmt.Errorf("invalid fingerprint %q: want %d bytes, got %d", s, sha256.Size, len(raw))
	}
	copy(f[:], raw)
	return f, nil
}

// OfBytes fingerprints a byte slice.
func OfBytes(b []byte) Fingerprint {
	return sha256.Sum256(b)
}

// OfString fingerprints a string.
func OfString(s string) Fingerprint {
	return sha256.Sum256([]byte(s))
}

// Combine folds any number of fingerprints into one. The inputs are sorted
// before hashing so the result is independent of argument order; callers may
// therefore feed dependency fingerprints in whatever order graph construction
// produced them.
func Combine(fps ...Fingerprint) Fingerprint {
	sorted := make([]Fingerprint, len(fps))
	copy(sorted, fps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})

	h := sha256.New()
	for _, fp := range sorted {
		h.Write(fp[:])
	}
	var out Fingerprint
	h.Sum(out[:0])
	return out
}

// OfCtyValue fingerprints a cty value together with its type, using the
// canonical JSON encoding. Object attributes serialize in sorted order, so
// the digest is deterministic for equal values.
func OfCtyValue(v cty.Value) (Fingerprint, error) {
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return Zero, fmt.Errorf("fingerprinting value: %w", err)
	}
	typeRaw, err := ctyjson.MarshalType(v.Type())
	if err != nil {
		return Zero, fmt.Errorf("fingerprinting value type: %w", err)
	}

	h := sha256.New()
	h.Write(typeRaw)
	h.Write([]byte{0})
	h.Write(raw)
	var out Fingerprint
	h.Sum(out[:0])
	return out, nil
}
