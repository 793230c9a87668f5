// Package cache stores task result artifacts keyed by fingerprint.
//
// Artifacts are immutable: a fingerprint fully determines the bytes it
// maps to, so stores never overwrite distinct content and hits can be
// trusted without re-validation. Three implementations are provided: a
// badger-backed local store, an HTTP remote client, and a tiered store
// that reads through the local tier before falling back to the remote.
package cache
