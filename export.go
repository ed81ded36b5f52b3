package buildcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/buildcache/codec"
	"github.com/hupe1980/buildcache/kv"
	"github.com/hupe1980/buildcache/snapshot"
)

// Export writes every entry of both namespaces to w as a snapshot.
func (c *Cache[F]) Export(ctx context.Context, w io.Writer) (snapshot.Stats, error) {
	stats, err := c.export(ctx, w)
	c.logger.LogTransfer(ctx, "export", stats.Entries, err)
	return stats, err
}

func (c *Cache[F]) export(ctx context.Context, w io.Writer) (snapshot.Stats, error) {
	store, release, err := c.acquire(ctx)
	if err != nil {
		return snapshot.Stats{}, err
	}
	defer release()

	sw, err := snapshot.NewWriter(w, c.opts.codec.Name())
	if err != nil {
		return snapshot.Stats{}, translateError(ErrRead, "export", err)
	}

	err = store.Iterate(ctx, nil, sw.Add)
	if err != nil {
		_, _ = sw.Close()
		return snapshot.Stats{ID: sw.Header().ID, Codec: sw.Header().Codec, Entries: sw.Count()}, translateError(ErrRead, "export", err)
	}

	stats, err := sw.Close()
	if err != nil {
		return snapshot.Stats{ID: sw.Header().ID, Codec: sw.Header().Codec, Entries: sw.Count()}, translateError(ErrRead, "export", err)
	}
	return stats, nil
}

// Import writes every entry of the snapshot in r into the cache,
// overwriting existing keys.
//
// The whole snapshot is read and checked against its trailer before the
// first write, so a corrupt snapshot leaves the cache untouched. Readers
// that cannot seek are spooled to a temporary file for the second pass.
// Entries are then committed in atomic batches of the configured import
// batch size; a store failure midway leaves the earlier batches written.
//
// Values written with a different codec are transcoded to the cache codec.
func (c *Cache[F]) Import(ctx context.Context, r io.Reader) (snapshot.Stats, error) {
	stats, err := c.importSnapshot(ctx, r)
	c.logger.LogTransfer(ctx, "import", stats.Entries, err)
	return stats, err
}

func (c *Cache[F]) importSnapshot(ctx context.Context, r io.Reader) (snapshot.Stats, error) {
	store, release, err := c.acquire(ctx)
	if err != nil {
		return snapshot.Stats{}, err
	}
	defer release()

	src, cleanup, err := rewindable(r)
	if err != nil {
		return snapshot.Stats{}, translateError(ErrWrite, "import", err)
	}
	defer cleanup()

	start, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return snapshot.Stats{}, translateError(ErrWrite, "import", err)
	}

	stats, err := c.scanSnapshot(src, func([]byte, []byte) error { return nil })
	if err != nil {
		return stats, translateError(ErrWrite, "import", err)
	}

	if _, err := src.Seek(start, io.SeekStart); err != nil {
		return snapshot.Stats{}, translateError(ErrWrite, "import", err)
	}

	var batch kv.Batch
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := store.Write(ctx, &batch); err != nil {
			return err
		}
		batch = kv.Batch{}
		return nil
	}

	stats, err = c.scanSnapshot(src, func(key, value []byte) error {
		batch.Put(key, value)
		if batch.Len() >= c.opts.importBatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return stats, translateError(ErrWrite, "import", err)
	}
	return stats, nil
}

// scanSnapshot reads the snapshot in r to its verified end, passing every
// entry transcoded to the cache codec to fn.
func (c *Cache[F]) scanSnapshot(r io.Reader, fn func(key, value []byte) error) (snapshot.Stats, error) {
	sr, err := snapshot.NewReader(r)
	if err != nil {
		return snapshot.Stats{}, err
	}
	defer sr.Close()

	transcode, err := c.transcoder(sr.Header().Codec)
	if err != nil {
		return sr.Stats(), err
	}

	for {
		e, err := sr.Next()
		if errors.Is(err, io.EOF) {
			return sr.Stats(), nil
		}
		if err != nil {
			return sr.Stats(), err
		}

		value, err := transcode(e.Value)
		if err != nil {
			return sr.Stats(), err
		}
		if err := fn(e.Key, value); err != nil {
			return sr.Stats(), err
		}
	}
}

// rewindable returns r as an io.ReadSeeker, copying it to a temporary file
// when it cannot seek. cleanup removes the copy.
func rewindable(r io.Reader) (io.ReadSeeker, func(), error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, func() {}, nil
	}

	f, err := os.CreateTemp("", "buildcache-import-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}

	if _, err := io.Copy(f, r); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("spool snapshot: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, err
	}
	return f, cleanup, nil
}

func (c *Cache[F]) transcoder(name string) (func([]byte) ([]byte, error), error) {
	if name == c.opts.codec.Name() {
		return func(b []byte) ([]byte, error) { return b, nil }, nil
	}

	src, ok := codec.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown snapshot codec %q", name)
	}
	return func(b []byte) ([]byte, error) {
		var v any
		if err := src.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return c.opts.codec.Marshal(v)
	}, nil
}
