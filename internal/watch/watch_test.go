package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/graph"
	"github.com/vk/buildgridgo/internal/invalidation"
	"github.com/vk/buildgridgo/internal/target"
)

func mustAddr(t *testing.T, spec string) addr.Address {
	t.Helper()
	a, err := addr.Parse(spec)
	require.NoError(t, err)
	return a
}

func buildFixture(t *testing.T) (*graph.Graph, *invalidation.Tracker) {
	t.Helper()
	ctx := context.Background()
	g := graph.New()

	lib := mustAddr(t, "//src/core:lib")
	util := mustAddr(t, "//src/base:util")
	require.NoError(t, g.InjectTarget(ctx, target.New(util, "library")))
	require.NoError(t, g.InjectTarget(ctx, target.New(lib, "library").WithDependencies(util)))

	return g, invalidation.NewTracker(g, t.TempDir())
}

func TestSpecPathOf(t *testing.T) {
	g, tracker := buildFixture(t)
	w, err := New("/repo", g, tracker)
	require.NoError(t, err)
	defer w.Stop()

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/repo/src/core/lib.go", "src/core", true},
		{"/repo/BUILD.hcl", "", true},
		{"/elsewhere/file.go", "", false},
	}
	for _, tc := range tests {
		got, ok := w.specPathOf(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		if ok {
			assert.Equal(t, tc.want, got, tc.path)
		}
	}
}

func TestAffectedAddresses(t *testing.T) {
	g, tracker := buildFixture(t)
	w, err := New("/repo", g, tracker)
	require.NoError(t, err)
	defer w.Stop()

	changed := w.affectedAddresses([]string{
		"/repo/src/base/util.go",
		"/repo/src/base/util_extra.go",
		"/repo/unrelated/x.go",
	})
	assert.Equal(t, []addr.Address{mustAddr(t, "//src/base:util")}, changed)
}

func TestWatcher_InvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "base"), 0o750))

	g := graph.New()
	util := mustAddr(t, "//src/base:util")
	lib := mustAddr(t, "//src/core:lib")
	require.NoError(t, g.InjectTarget(ctx, target.New(util, "library")))
	require.NoError(t, g.InjectTarget(ctx, target.New(lib, "library").WithDependencies(util)))
	tracker := invalidation.NewTracker(g, t.TempDir())

	// Prime the fingerprint memo so invalidation is observable.
	_, err := tracker.Fingerprint(lib)
	require.NoError(t, err)

	notified := make(chan []addr.Address, 1)
	w, err := New(root, g, tracker,
		Debounce(30*time.Millisecond),
		OnInvalidated(func(_ context.Context, changed []addr.Address) {
			notified <- changed
		}))
	require.NoError(t, err)
	defer w.Stop()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "base", "util.go"), []byte("package base"), 0o600))

	select {
	case changed := <-notified:
		assert.Equal(t, []addr.Address{util}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcher_BatchesBursts(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "base"), 0o750))

	g := graph.New()
	util := mustAddr(t, "//src/base:util")
	require.NoError(t, g.InjectTarget(ctx, target.New(util, "library")))
	tracker := invalidation.NewTracker(g, t.TempDir())

	notified := make(chan []addr.Address, 16)
	w, err := New(root, g, tracker,
		Debounce(100*time.Millisecond),
		OnInvalidated(func(_ context.Context, changed []addr.Address) {
			notified <- changed
		}))
	require.NoError(t, err)
	defer w.Stop()
	require.NoError(t, w.Start(ctx))

	// A burst of writes inside the debounce window yields one batch.
	for i := 0; i < 5; i++ {
		name := filepath.Join(root, "src", "base", "f"+string(rune('a'+i))+".go")
		require.NoError(t, os.WriteFile(name, []byte("package base"), 0o600))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the burst")
	}

	select {
	case extra := <-notified:
		t.Fatalf("expected a single batch, got a second: %v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}
