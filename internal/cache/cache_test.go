package cache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/fingerprint"
)

func TestLocal_PutGetRoundTrip(t *testing.T) {
	local, err := OpenInMemory()
	require.NoError(t, err)
	defer local.Close()

	ctx := context.Background()
	fp := fingerprint.OfString("artifact-a")

	_, ok, err := local.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok, "expected a miss before any Put")

	require.NoError(t, local.Put(ctx, fp, []byte("payload")))

	data, ok, err := local.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)
}

func TestLocal_KeysAreIndependent(t *testing.T) {
	local, err := OpenInMemory()
	require.NoError(t, err)
	defer local.Close()

	ctx := context.Background()
	require.NoError(t, local.Put(ctx, fingerprint.OfString("a"), []byte("one")))
	require.NoError(t, local.Put(ctx, fingerprint.OfString("b"), []byte("two")))

	data, ok, err := local.Get(ctx, fingerprint.OfString("b"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("two"), data)
}

func TestLocal_CancelledContext(t *testing.T) {
	local, err := OpenInMemory()
	require.NoError(t, err)
	defer local.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = local.Get(ctx, fingerprint.OfString("a"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, local.Put(ctx, fingerprint.OfString("a"), nil), context.Canceled)
}

// memCache is a map-backed Cache for exercising the tiered store
// without a second badger instance.
type memCache struct {
	mu   sync.Mutex
	data map[fingerprint.Fingerprint][]byte
	gets int
	puts int
}

func newMemCache() *memCache {
	return &memCache{data: map[fingerprint.Fingerprint][]byte{}}
}

func (m *memCache) Get(_ context.Context, fp fingerprint.Fingerprint) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.data[fp]
	return data, ok, nil
}

func (m *memCache) Put(_ context.Context, fp fingerprint.Fingerprint, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.data[fp] = data
	return nil
}

func (m *memCache) Close() error { return nil }

func TestTiered_RemoteHitBackfillsLocal(t *testing.T) {
	local := newMemCache()
	remote := newMemCache()
	tiered := NewTiered(local, remote)

	ctx := context.Background()
	fp := fingerprint.OfString("shared")
	require.NoError(t, remote.Put(ctx, fp, []byte("blob")))
	remote.puts = 0

	data, ok, err := tiered.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("blob"), data)
	assert.Equal(t, 1, local.puts, "remote hit should backfill the local tier")

	// Second read is served locally.
	_, ok, err = tiered.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, remote.gets, "backfilled key should not reach the remote again")
}

func TestTiered_PutWritesBothTiers(t *testing.T) {
	local := newMemCache()
	remote := newMemCache()
	tiered := NewTiered(local, remote)

	ctx := context.Background()
	fp := fingerprint.OfString("write-through")
	require.NoError(t, tiered.Put(ctx, fp, []byte("blob")))

	_, ok, _ := local.Get(ctx, fp)
	assert.True(t, ok)
	_, ok, _ = remote.Get(ctx, fp)
	assert.True(t, ok)
}

func TestTiered_NilTiers(t *testing.T) {
	local := newMemCache()
	onlyLocal := NewTiered(local, nil)

	ctx := context.Background()
	fp := fingerprint.OfString("local-only")
	require.NoError(t, onlyLocal.Put(ctx, fp, []byte("blob")))

	data, ok, err := onlyLocal.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("blob"), data)

	_, ok, err = NewTiered(nil, nil).Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoop_NeverHits(t *testing.T) {
	ctx := context.Background()
	fp := fingerprint.OfString("anything")

	var c Cache = Noop{}
	require.NoError(t, c.Put(ctx, fp, []byte("blob")))
	_, ok, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemote_AgainstHTTPServer(t *testing.T) {
	var mu sync.Mutex
	store := map[string][]byte{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			data, ok := store[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(data)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			store[r.URL.Path] = body
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	remote, err := NewRemote(RemoteConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	defer remote.Close()

	ctx := context.Background()
	fp := fingerprint.OfString("remote-artifact")

	_, ok, err := remote.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok, "expected 404 to be treated as a miss")

	require.NoError(t, remote.Put(ctx, fp, []byte("remote blob")))

	data, ok, err := remote.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("remote blob"), data)
}

func TestNewRemote_RequiresBaseURL(t *testing.T) {
	_, err := NewRemote(RemoteConfig{})
	assert.Error(t, err)
}
