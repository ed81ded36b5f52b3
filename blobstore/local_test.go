package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store BlobStore) {
	ctx := context.Background()

	t.Run("Lifecycle", func(t *testing.T) {
		data := []byte("hello world, this is a test blob for buildcache")

		w, err := store.Create(ctx, "snapshots/001.snap")
		require.NoError(t, err)
		n, err := w.Write(data)
		require.NoError(t, err)
		require.Equal(t, len(data), n)
		require.NoError(t, w.Close())

		r, err := store.Open(ctx, "snapshots/001.snap")
		require.NoError(t, err)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.Equal(t, data, got)

		require.NoError(t, store.Delete(ctx, "snapshots/001.snap"))
		_, err = store.Open(ctx, "snapshots/001.snap")
		assert.ErrorIs(t, err, ErrNotFound)

		// deleting again is fine
		require.NoError(t, store.Delete(ctx, "snapshots/001.snap"))
	})

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := store.Open(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("InvisibleUntilClose", func(t *testing.T) {
		w, err := store.Create(ctx, "pending")
		require.NoError(t, err)
		_, err = w.Write([]byte("partial"))
		require.NoError(t, err)

		_, err = store.Open(ctx, "pending")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, Abort(w))
		_, err = store.Open(ctx, "pending")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, Put(ctx, store, "LATEST", []byte("one")))
		require.NoError(t, Put(ctx, store, "LATEST", []byte("two")))

		got, err := Get(ctx, store, "LATEST")
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("ListSortedByPrefix", func(t *testing.T) {
		for _, name := range []string{"list/c", "list/a", "list/b", "other/x"} {
			require.NoError(t, Put(ctx, store, name, []byte(name)))
		}

		names, err := store.List(ctx, "list/")
		require.NoError(t, err)
		assert.Equal(t, []string{"list/a", "list/b", "list/c"}, names)

		names, err = store.List(ctx, "nothing/")
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore_WritesUnderRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)

	require.NoError(t, Put(ctx, store, "a/b.snap", []byte("x")))

	data, err := os.ReadFile(filepath.Join(root, "a", "b.snap"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(root, "a"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "does-not-exist"))

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_ListSkipsPendingWrites(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	w, err := store.Create(ctx, "pending")
	require.NoError(t, err)
	defer func() { _ = Abort(w) }()

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	for _, name := range []string{"", "../x", "/etc/passwd", "a/../../x"} {
		_, err := store.Create(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidName, name)

		_, err = store.Open(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestLocalStore_WriteAfterClose(t *testing.T) {
	w, err := NewLocalStore(t.TempDir()).Create(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.ErrorIs(t, w.Close(), os.ErrClosed)
}
