package buildcache

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/buildcache/key"
	"github.com/hupe1980/buildcache/kv"
)

// Cache is a persistent build cache for file records of type F and
// plugin-private values.
//
// A Cache is safe for concurrent use. Data operations share the store
// handle; Initialize, Close and Clean are exclusive.
type Cache[F Record] struct {
	location string
	opts     options
	logger   *Logger

	mu    sync.RWMutex
	store kv.Store
}

// New returns a Cache for the store at location. It performs no I/O;
// call Initialize before any other operation.
func New[F Record](location string, optFns ...Option) *Cache[F] {
	opts := applyOptions(optFns)

	c := &Cache[F]{
		location: location,
		opts:     opts,
		logger:   opts.logger.WithLocation(location),
	}
	c.logger.Debug("new cache instance", "backend", opts.backend.Name(), "codec", opts.codec.Name())
	return c
}

// Location returns the directory the store lives in.
func (c *Cache[F]) Location() string { return c.location }

// Initialize opens the store, creating it if absent.
// Calling it on an open cache is a no-op.
func (c *Cache[F]) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		return nil
	}

	store, err := c.opts.backend.Open(ctx, c.location)
	c.logger.LogInitialize(ctx, c.opts.backend.Name(), err)
	if err != nil {
		return translateError(ErrStoreOpen, "initialize", err)
	}
	c.store = store
	return nil
}

// acquire read-locks the store handle. The caller must invoke release.
func (c *Cache[F]) acquire(ctx context.Context) (store kv.Store, release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	c.mu.RLock()
	if c.store == nil {
		c.mu.RUnlock()
		return nil, nil, ErrNotInitialized
	}
	return c.store, c.mu.RUnlock, nil
}

// Read returns every file record, keyed by its id.
// Any iteration or decode failure fails the whole call; no partial mapping
// is returned.
func (c *Cache[F]) Read(ctx context.Context) (map[string]F, error) {
	start := time.Now()
	c.logger.DebugContext(ctx, "reading mapping")

	files, err := c.read(ctx)

	c.opts.metricsCollector.RecordRead(len(files), time.Since(start), err)
	c.logger.LogRead(ctx, len(files), err)

	if err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Cache[F]) read(ctx context.Context) (map[string]F, error) {
	store, release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	files := make(map[string]F)
	err = store.Iterate(ctx, key.Prefix(key.File), func(k, v []byte) error {
		dk, err := key.Decode(k)
		if err != nil {
			return err
		}

		var rec F
		if err := c.opts.codec.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("decode %s: %w", dk, err)
		}

		id := rec.RecordID()
		if id == "" {
			id = dk.ID
		}
		files[id] = rec
		c.logger.DebugContext(ctx, "file read", "id", id)
		return nil
	})
	if err != nil {
		return files, translateError(ErrRead, "read", err)
	}
	return files, nil
}

// Update writes every record under its own id in one atomic batch.
// Map keys are ignored. An empty map is a no-op.
func (c *Cache[F]) Update(ctx context.Context, files map[string]F) error {
	start := time.Now()
	c.logger.DebugContext(ctx, "updating files", "count", len(files))

	err := c.update(ctx, files)

	c.opts.metricsCollector.RecordUpdate(len(files), time.Since(start), err)
	c.logger.LogUpdate(ctx, len(files), err)
	return err
}

func (c *Cache[F]) update(ctx context.Context, files map[string]F) error {
	store, release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if len(files) == 0 {
		return nil
	}

	var batch kv.Batch
	for _, name := range slices.Sorted(maps.Keys(files)) {
		rec := files[name]

		id := rec.RecordID()
		if id == "" {
			return fmt.Errorf("%w: record %q has no id", ErrInvalidRecord, name)
		}

		value, err := c.opts.codec.Marshal(rec)
		if err != nil {
			return translateError(ErrWrite, "encode "+id, err)
		}
		batch.Put(key.ForFile(id).MustEncode(), value)
	}

	return translateError(ErrWrite, "update", store.Write(ctx, &batch))
}

// GetFile returns the record stored under id, or ErrNotFound.
func (c *Cache[F]) GetFile(ctx context.Context, id string) (F, error) {
	start := time.Now()
	c.logger.DebugContext(ctx, "get file", "id", id)

	rec, err := c.getFile(ctx, id)

	c.opts.metricsCollector.RecordFileGet(err == nil, time.Since(start), err)
	return rec, err
}

func (c *Cache[F]) getFile(ctx context.Context, id string) (F, error) {
	var rec F

	store, release, err := c.acquire(ctx)
	if err != nil {
		return rec, err
	}
	defer release()

	value, err := store.Get(ctx, key.ForFile(id).MustEncode())
	if err != nil {
		if isNotFound(err) {
			return rec, fmt.Errorf("%w: file %q", ErrNotFound, id)
		}
		return rec, translateError(ErrRead, "get file", err)
	}

	if err := c.opts.codec.Unmarshal(value, &rec); err != nil {
		return rec, translateError(ErrRead, "decode file "+id, err)
	}
	return rec, nil
}

// PutFile stores rec under id, overwriting any previous record.
func (c *Cache[F]) PutFile(ctx context.Context, id string, rec F) error {
	start := time.Now()
	c.logger.DebugContext(ctx, "set file", "id", id)

	err := c.putFile(ctx, id, rec)

	c.opts.metricsCollector.RecordFilePut(time.Since(start), err)
	return err
}

func (c *Cache[F]) putFile(ctx context.Context, id string, rec F) error {
	store, release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}

	value, err := c.opts.codec.Marshal(rec)
	if err != nil {
		return translateError(ErrWrite, "encode file "+id, err)
	}
	return translateError(ErrWrite, "set file", store.Put(ctx, key.ForFile(id).MustEncode(), value))
}

// GetPlugin decodes the value stored under (name, k) into dst.
// It reports false with a nil error when nothing was ever stored there.
// A nil dst only checks for presence.
func (c *Cache[F]) GetPlugin(ctx context.Context, name, k string, dst any) (bool, error) {
	start := time.Now()
	c.logger.WithPlugin(name).DebugContext(ctx, "get plugin data", "key", k)

	found, err := c.getPlugin(ctx, name, k, dst)

	c.opts.metricsCollector.RecordPluginGet(found, time.Since(start), err)
	return found, err
}

func (c *Cache[F]) getPlugin(ctx context.Context, name, k string, dst any) (bool, error) {
	store, release, err := c.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	value, err := store.Get(ctx, key.ForPlugin(name, k).MustEncode())
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, translateError(ErrRead, "get plugin data", err)
	}

	if dst != nil {
		if err := c.opts.codec.Unmarshal(value, dst); err != nil {
			return false, translateError(ErrRead, "decode plugin data", err)
		}
	}
	return true, nil
}

// PutPlugin stores value under (name, k), overwriting any previous value.
func (c *Cache[F]) PutPlugin(ctx context.Context, name, k string, value any) error {
	start := time.Now()
	c.logger.WithPlugin(name).DebugContext(ctx, "set plugin data", "key", k)

	err := c.putPlugin(ctx, name, k, value)

	c.opts.metricsCollector.RecordPluginPut(time.Since(start), err)
	return err
}

func (c *Cache[F]) putPlugin(ctx context.Context, name, k string, value any) error {
	store, release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	data, err := c.opts.codec.Marshal(value)
	if err != nil {
		return translateError(ErrWrite, "encode plugin data", err)
	}
	return translateError(ErrWrite, "set plugin data", store.Put(ctx, key.ForPlugin(name, k).MustEncode(), data))
}
