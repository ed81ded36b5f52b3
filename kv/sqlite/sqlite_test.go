package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/buildcache/kv"
	"github.com/hupe1980/buildcache/kv/kvtest"
)

func TestConformance(t *testing.T) {
	kvtest.Run(t, func(*testing.T) kv.Backend { return New() })
}

func TestConformance_Sync(t *testing.T) {
	kvtest.Run(t, func(*testing.T) kv.Backend {
		return New(func(o *Options) { o.DurabilityMode = kv.DurabilitySync })
	})
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	location := filepath.Join(t.TempDir(), "cache")
	s, err := New().Open(context.Background(), location)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(filepath.Join(location, FileName))
	assert.NoError(t, err)
}

func TestOpen_LocationIsFile(t *testing.T) {
	location := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(location, []byte("x"), 0o600))

	_, err := New().Open(context.Background(), location)
	assert.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s, err := New().Open(ctx, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, kv.ErrClosed)
}
