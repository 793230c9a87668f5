package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/cache"
	"github.com/vk/buildgridgo/internal/fingerprint"
)

type closeTrackingCache struct {
	cache.Noop
	closed bool
}

func (c *closeTrackingCache) Close() error {
	c.closed = true
	return nil
}

func TestLocalFactory_WiresComponents(t *testing.T) {
	ctx := context.Background()
	s, err := LocalFactory{}.NewSession(ctx, Options{Workdir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close(ctx)

	assert.NotEmpty(t, s.ID())
	assert.NotNil(t, s.Graph())
	assert.NotNil(t, s.Tracker())
	assert.NotNil(t, s.Scheduler())
	assert.NotNil(t, s.Injector())
	require.NotNil(t, s.Cache())

	// Nil cache defaults to a functioning no-op.
	_, ok, err := s.Cache().Get(ctx, fingerprint.OfString("anything"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessions_AreIndependent(t *testing.T) {
	ctx := context.Background()
	a, err := LocalFactory{}.NewSession(ctx, Options{Workdir: t.TempDir()})
	require.NoError(t, err)
	defer a.Close(ctx)
	b, err := LocalFactory{}.NewSession(ctx, Options{Workdir: t.TempDir()})
	require.NoError(t, err)
	defer b.Close(ctx)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotSame(t, a.Graph(), b.Graph())
	assert.NotSame(t, a.Scheduler(), b.Scheduler())
}

func TestClose_ReleasesCache(t *testing.T) {
	ctx := context.Background()
	c := &closeTrackingCache{}
	s, err := LocalFactory{}.NewSession(ctx, Options{Workdir: t.TempDir(), Cache: c})
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	assert.True(t, c.closed)
}
