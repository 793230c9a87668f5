package cache

import (
	"context"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/fingerprint"
)

// Cache is a content-addressed artifact store. Keys are fingerprints,
// values are opaque byte blobs. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get returns the artifact for fp. The bool reports whether the key
	// was present; a miss is not an error.
	Get(ctx context.Context, fp fingerprint.Fingerprint) ([]byte, bool, error)

	// Put stores data under fp. Storing the same key twice is allowed
	// and must leave equivalent content behind.
	Put(ctx context.Context, fp fingerprint.Fingerprint, data []byte) error

	// Close releases underlying resources. The cache is unusable after.
	Close() error
}

// Noop is a Cache that stores nothing and never hits.
type Noop struct{}

func (Noop) Get(context.Context, fingerprint.Fingerprint) ([]byte, bool, error) {
	return nil, false, nil
}

func (Noop) Put(context.Context, fingerprint.Fingerprint, []byte) error { return nil }

func (Noop) Close() error { return nil }

// Tiered reads through a fast local tier before consulting a remote
// tier, backfilling the local tier on remote hits. Writes go to both
// tiers; a remote write failure is logged and swallowed so that a flaky
// remote cannot fail a build.
type Tiered struct {
	local  Cache
	remote Cache
}

// NewTiered combines a local and a remote cache. Either may be nil, in
// which case only the other tier is used.
func NewTiered(local, remote Cache) *Tiered {
	return &Tiered{local: local, remote: remote}
}

func (t *Tiered) Get(ctx context.Context, fp fingerprint.Fingerprint) ([]byte, bool, error) {
	if t.local != nil {
		data, ok, err := t.local.Get(ctx, fp)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return data, true, nil
		}
	}
	if t.remote == nil {
		return nil, false, nil
	}
	data, ok, err := t.remote.Get(ctx, fp)
	if err != nil || !ok {
		return nil, false, err
	}
	if t.local != nil {
		if err := t.local.Put(ctx, fp, data); err != nil {
			ctxlog.FromContext(ctx).Warn("local cache backfill failed",
				"fingerprint", fp.Short(), "error", err)
		}
	}
	return data, true, nil
}

func (t *Tiered) Put(ctx context.Context, fp fingerprint.Fingerprint, data []byte) error {
	if t.local != nil {
		if err := t.local.Put(ctx, fp, data); err != nil {
			return err
		}
	}
	if t.remote != nil {
		if err := t.remote.Put(ctx, fp, data); err != nil {
			ctxlog.FromContext(ctx).Warn("remote cache write failed",
				"fingerprint", fp.Short(), "error", err)
		}
	}
	return nil
}

func (t *Tiered) Close() error {
	var firstErr error
	if t.local != nil {
		firstErr = t.local.Close()
	}
	if t.remote != nil {
		if err := t.remote.Close(); firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
