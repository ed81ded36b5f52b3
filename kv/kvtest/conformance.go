// Package kvtest provides test helpers for kv backends: a conformance suite
// every backend must pass and a fault-injecting backend wrapper.
//
// This package is intended for use in tests only.
package kvtest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/buildcache/kv"
)

// Run runs the conformance suite against backends produced by newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) kv.Backend) {
	t.Helper()

	open := func(t *testing.T) (kv.Backend, kv.Store, string) {
		t.Helper()
		b := newBackend(t)
		location := filepath.Join(t.TempDir(), "store")
		s, err := b.Open(context.Background(), location)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return b, s, location
	}

	t.Run("PutGet", func(t *testing.T) {
		ctx := context.Background()
		_, s, _ := open(t)

		require.NoError(t, s.Put(ctx, []byte("k"), []byte("v1")))
		v, err := s.Get(ctx, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), v)

		require.NoError(t, s.Put(ctx, []byte("k"), []byte("v2")))
		v, err = s.Get(ctx, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), v)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, s, _ := open(t)
		_, err := s.Get(context.Background(), []byte("missing"))
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		ctx := context.Background()
		_, s, _ := open(t)

		require.NoError(t, s.Put(ctx, []byte("k"), []byte("value")))
		v, err := s.Get(ctx, []byte("k"))
		require.NoError(t, err)
		v[0] = 'X'

		v, err = s.Get(ctx, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), v)
	})

	t.Run("WriteBatch", func(t *testing.T) {
		ctx := context.Background()
		_, s, _ := open(t)

		require.NoError(t, s.Put(ctx, []byte("gone"), []byte("x")))

		var b kv.Batch
		b.Put([]byte("a"), []byte("1"))
		b.Put([]byte("b"), []byte("2"))
		b.Put([]byte("a"), []byte("3"))
		b.Delete([]byte("gone"))
		require.NoError(t, s.Write(ctx, &b))

		got := collect(t, s, nil)
		assert.Equal(t, map[string]string{"a": "3", "b": "2"}, toMap(got))
	})

	t.Run("WriteEmptyBatch", func(t *testing.T) {
		_, s, _ := open(t)
		require.NoError(t, s.Write(context.Background(), &kv.Batch{}))
	})

	t.Run("IterateAscending", func(t *testing.T) {
		ctx := context.Background()
		_, s, _ := open(t)

		for _, k := range []string{`["plugin","b","1"]`, `["file","b.js"]`, `["file","a.js"]`, `["plugin","a","2"]`, "\xff\xff"} {
			require.NoError(t, s.Put(ctx, []byte(k), []byte("v")))
		}

		assert.Equal(t, []string{
			`["file","a.js"]`,
			`["file","b.js"]`,
			`["plugin","a","2"]`,
			`["plugin","b","1"]`,
			"\xff\xff",
		}, keys(collect(t, s, nil)))

		assert.Equal(t, []string{`["file","a.js"]`, `["file","b.js"]`}, keys(collect(t, s, []byte(`["file",`))))
		assert.Equal(t, []string{"\xff\xff"}, keys(collect(t, s, []byte{0xff})))
		assert.Empty(t, collect(t, s, []byte("nothing")))
	})

	t.Run("IterateStopsOnCallbackError", func(t *testing.T) {
		ctx := context.Background()
		_, s, _ := open(t)

		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, s.Put(ctx, []byte(k), []byte("v")))
		}

		stop := errors.New("stop")
		var seen int
		err := s.Iterate(ctx, nil, func(_, _ []byte) error {
			seen++
			if seen == 2 {
				return stop
			}
			return nil
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 2, seen)
	})

	t.Run("ReopenPersists", func(t *testing.T) {
		ctx := context.Background()
		b, s, location := open(t)

		require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))
		require.NoError(t, s.Close())

		s2, err := b.Open(ctx, location)
		require.NoError(t, err)
		defer s2.Close()

		v, err := s2.Get(ctx, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), v)
	})

	t.Run("OpenCreatesNestedLocation", func(t *testing.T) {
		b := newBackend(t)
		location := filepath.Join(t.TempDir(), "a", "b", "c")
		s, err := b.Open(context.Background(), location)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		_, err = os.Stat(location)
		assert.NoError(t, err)
	})

	t.Run("DestroyRemovesLocation", func(t *testing.T) {
		ctx := context.Background()
		b, s, location := open(t)

		require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))
		require.NoError(t, s.Close())
		require.NoError(t, b.Destroy(ctx, location))

		_, err := os.Stat(location)
		assert.True(t, os.IsNotExist(err))

		// destroying again is fine
		require.NoError(t, b.Destroy(ctx, location))

		s2, err := b.Open(ctx, location)
		require.NoError(t, err)
		defer s2.Close()
		assert.Empty(t, collect(t, s2, nil))
	})
}

// Entry is a key/value pair collected from a store.
type Entry struct {
	Key   []byte
	Value []byte
}

func collect(t *testing.T, s kv.Store, prefix []byte) []Entry {
	t.Helper()
	var out []Entry
	err := s.Iterate(context.Background(), prefix, func(k, v []byte) error {
		out = append(out, Entry{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
		return nil
	})
	require.NoError(t, err)
	return out
}

func keys(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, string(e.Key))
	}
	return out
}

func toMap(entries []Entry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[string(e.Key)] = string(e.Value)
	}
	return out
}
