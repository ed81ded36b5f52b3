// Package leveldb provides the default kv.Backend, backed by
// github.com/syndtr/goleveldb.
//
// A location is a LevelDB directory. Caches written by other LevelDB
// bindings with JSON key and value encodings open unchanged.
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/hupe1980/buildcache/kv"
)

// Options contains configuration for LevelDB stores.
type Options struct {
	// DurabilityMode controls fsync behavior of Put and Write.
	// Default: kv.DurabilityAsync
	DurabilityMode kv.DurabilityMode

	// DisableCompression turns off snappy block compression.
	DisableCompression bool

	// BlockCacheMB is the block cache size in megabytes.
	// 0 uses the goleveldb default (8MB).
	BlockCacheMB int

	// RepairOnCorruption rebuilds the manifest from table files when the
	// store fails to open because of corruption, instead of failing.
	RepairOnCorruption bool
}

// DefaultOptions returns default LevelDB options.
var DefaultOptions = Options{
	DurabilityMode: kv.DurabilityAsync,
}

// Backend opens LevelDB stores.
type Backend struct {
	opts Options
}

// New creates a LevelDB backend.
//
// Example:
//
//	b := leveldb.New(func(o *leveldb.Options) {
//	    o.DurabilityMode = kv.DurabilitySync
//	})
func New(optFns ...func(*Options)) *Backend {
	opts := DefaultOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	return &Backend{opts: opts}
}

// Name returns "leveldb".
func (b *Backend) Name() string { return "leveldb" }

// Open opens or creates the LevelDB directory at location.
func (b *Backend) Open(_ context.Context, location string) (kv.Store, error) {
	o := &opt.Options{}
	if b.opts.DisableCompression {
		o.Compression = opt.NoCompression
	}
	if b.opts.BlockCacheMB > 0 {
		o.BlockCacheCapacity = b.opts.BlockCacheMB * opt.MiB
	}

	db, err := leveldb.OpenFile(location, o)
	if err != nil && lerrors.IsCorrupted(err) && b.opts.RepairOnCorruption {
		db, err = leveldb.RecoverFile(location, o)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", location, err)
	}

	return &Store{
		db: db,
		wo: &opt.WriteOptions{Sync: b.opts.DurabilityMode == kv.DurabilitySync},
	}, nil
}

// Destroy removes the LevelDB directory.
func (b *Backend) Destroy(_ context.Context, location string) error {
	return os.RemoveAll(location)
}

// Store is an open LevelDB handle.
type Store struct {
	db *leveldb.DB
	wo *opt.WriteOptions
}

// Get returns the value stored under key.
func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

// Put stores value under key.
func (s *Store) Put(_ context.Context, key, value []byte) error {
	return translate(s.db.Put(key, value, s.wo))
}

// Write applies b as a single LevelDB batch.
func (s *Store) Write(_ context.Context, b *kv.Batch) error {
	batch := new(leveldb.Batch)
	for _, op := range b.Ops() {
		switch op.Kind {
		case kv.OpPut:
			batch.Put(op.Key, op.Value)
		case kv.OpDelete:
			batch.Delete(op.Key)
		default:
			return fmt.Errorf("leveldb: unknown batch op %d", op.Kind)
		}
	}
	return translate(s.db.Write(batch, s.wo))
}

// Iterate visits keys with the given prefix in ascending order.
func (s *Store) Iterate(_ context.Context, prefix []byte, fn func(key, value []byte) error) error {
	var rng *util.Range
	if len(prefix) > 0 {
		rng = util.BytesPrefix(prefix)
	}

	it := s.db.NewIterator(rng, nil)
	defer it.Release()

	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return translate(it.Error())
}

// Close closes the database.
func (s *Store) Close() error {
	return translate(s.db.Close())
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leveldb.ErrNotFound):
		return kv.ErrNotFound
	case errors.Is(err, leveldb.ErrClosed):
		return fmt.Errorf("%w: %w", kv.ErrClosed, err)
	default:
		return err
	}
}
