package buildcache_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/buildcache"
	"github.com/hupe1980/buildcache/codec"
	"github.com/hupe1980/buildcache/kv/kvtest"
	"github.com/hupe1980/buildcache/kv/leveldb"
	"github.com/hupe1980/buildcache/kv/sqlite"
	"github.com/hupe1980/buildcache/snapshot"
)

func seed(t *testing.T, c *buildcache.Cache[entry]) map[string]entry {
	t.Helper()
	ctx := context.Background()

	files := map[string]entry{
		"a.js": {ID: "a.js", Hash: "1"},
		"b.js": {ID: "b.js", Hash: "2", Deps: []string{"a.js"}},
		"c.js": {ID: "c.js", Hash: "3"},
	}
	require.NoError(t, c.Update(ctx, files))
	require.NoError(t, c.PutPlugin(ctx, "babel", "config", map[string]any{"presets": []any{"env"}}))
	require.NoError(t, c.PutPlugin(ctx, "lint", "seen", []string{"a.js"}))
	return files
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openCache[entry](t, t.TempDir())
	want := seed(t, src)

	var buf bytes.Buffer
	exported, err := src.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(5), exported.Entries)
	assert.Equal(t, codec.Default.Name(), exported.Codec)

	// import into the other backend, in small batches
	dst := openCache[entry](t, t.TempDir(),
		buildcache.WithBackend(sqlite.New()),
		buildcache.WithImportBatchSize(2))
	imported, err := dst.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, exported.ID, imported.ID)
	assert.Equal(t, exported.Entries, imported.Entries)

	got, err := dst.Read(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Read() after import mismatch (-want +got):\n%s", diff)
	}

	var seen []string
	found, err := dst.GetPlugin(ctx, "lint", "seen", &seen)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a.js"}, seen)
}

func TestImportTranscodesCodec(t *testing.T) {
	ctx := context.Background()
	src := openCache[entry](t, t.TempDir(),
		buildcache.WithCodec(codec.NewCompressed(codec.GoJSON{}, codec.AlgorithmLZ4)))
	want := seed(t, src)

	var buf bytes.Buffer
	stats, err := src.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, "go-json+lz4", stats.Codec)

	dst := openCache[entry](t, t.TempDir())
	_, err = dst.Import(ctx, &buf)
	require.NoError(t, err)

	got, err := dst.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestImportRejectsCorruptSnapshot(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	w, err := snapshot.NewWriter(&buf, codec.Default.Name())
	require.NoError(t, err)
	require.NoError(t, w.Add([]byte(`["file","a.js"]`), []byte(`{"id":"a.js"}`)))
	_, err = w.Close()
	require.NoError(t, err)

	data := buf.Bytes()
	truncated := data[:len(data)/2]

	dst := openCache[entry](t, t.TempDir())
	_, err = dst.Import(ctx, bytes.NewReader(truncated))
	require.ErrorIs(t, err, buildcache.ErrWrite)
}

// craftSnapshot builds a snapshot stream by hand, closing it with trailer.
func craftSnapshot(t *testing.T, codecName string, entries []snapshot.Entry, trailer string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)

	enc := gojson.NewEncoder(zw)
	require.NoError(t, enc.Encode(snapshot.Header{
		Format:  snapshot.Format,
		Version: snapshot.Version,
		ID:      uuid.New(),
		Codec:   codecName,
	}))
	for _, e := range entries {
		require.NoError(t, enc.Encode(map[string][]byte{"k": e.Key, "v": e.Value}))
	}
	_, err = io.WriteString(zw, trailer+"\n")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestImportCorruptSnapshotWritesNothing(t *testing.T) {
	ctx := context.Background()

	var entries []snapshot.Entry
	for _, id := range []string{"a.js", "b.js", "c.js", "d.js", "e.js", "f.js"} {
		entries = append(entries, snapshot.Entry{
			Key:   []byte(`["file","` + id + `"]`),
			Value: []byte(`{"id":"` + id + `"}`),
		})
	}
	data := craftSnapshot(t, codec.Default.Name(), entries, `{"count":6,"xxhash":"0"}`)

	readers := map[string]func() io.Reader{
		"seekable": func() io.Reader { return bytes.NewReader(data) },
		"stream":   func() io.Reader { return bytes.NewBuffer(bytes.Clone(data)) },
	}
	for name, newReader := range readers {
		t.Run(name, func(t *testing.T) {
			dst := openCache[entry](t, t.TempDir(), buildcache.WithImportBatchSize(2))

			_, err := dst.Import(ctx, newReader())
			require.ErrorIs(t, err, buildcache.ErrWrite)
			require.ErrorIs(t, err, snapshot.ErrCorrupt)

			got, err := dst.Read(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestImportCorruptValueWritesNothing(t *testing.T) {
	ctx := context.Background()

	// LZ4 header claiming far more bytes than the block can hold
	corrupt := binary.AppendUvarint([]byte{byte(codec.AlgorithmLZ4)}, 1<<62)
	corrupt = append(corrupt, 0, 1)

	lz4 := codec.NewCompressed(codec.GoJSON{}, codec.AlgorithmLZ4)
	var buf bytes.Buffer
	w, err := snapshot.NewWriter(&buf, lz4.Name())
	require.NoError(t, err)
	require.NoError(t, w.Add([]byte(`["file","a.js"]`), codec.MustMarshal(lz4, entry{ID: "a.js"})))
	require.NoError(t, w.Add([]byte(`["file","b.js"]`), corrupt))
	_, err = w.Close()
	require.NoError(t, err)

	dst := openCache[entry](t, t.TempDir(), buildcache.WithImportBatchSize(1))
	_, err = dst.Import(ctx, &buf)
	require.ErrorIs(t, err, buildcache.ErrWrite)
	require.ErrorIs(t, err, codec.ErrCorruptValue)

	got, err := dst.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestImportWriteFailure(t *testing.T) {
	ctx := context.Background()
	src := openCache[entry](t, t.TempDir())
	seed(t, src)

	var buf bytes.Buffer
	_, err := src.Export(ctx, &buf)
	require.NoError(t, err)

	backend := kvtest.NewFaultyBackend(leveldb.New())
	dst := openCache[entry](t, t.TempDir(), buildcache.WithBackend(backend))
	backend.SetFault(kvtest.Fault{FailWrite: true})

	_, err = dst.Import(ctx, &buf)
	require.ErrorIs(t, err, buildcache.ErrWrite)
	require.ErrorIs(t, err, kvtest.ErrInjected)
}

func TestExportIterateFailure(t *testing.T) {
	ctx := context.Background()
	backend := kvtest.NewFaultyBackend(leveldb.New())
	c := openCache[entry](t, t.TempDir(), buildcache.WithBackend(backend))
	seed(t, c)

	backend.SetFault(kvtest.Fault{FailIterate: true, IterateAfter: 1})
	stats, err := c.Export(ctx, &bytes.Buffer{})
	require.ErrorIs(t, err, buildcache.ErrRead)
	assert.Equal(t, int64(1), stats.Entries)
}

func TestExportBeforeInitialize(t *testing.T) {
	c := buildcache.New[entry](t.TempDir())

	_, err := c.Export(context.Background(), &bytes.Buffer{})
	require.ErrorIs(t, err, buildcache.ErrNotInitialized)

	_, err = c.Import(context.Background(), &bytes.Buffer{})
	require.ErrorIs(t, err, buildcache.ErrNotInitialized)
}
