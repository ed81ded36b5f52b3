// Package kv defines the embedded ordered key-value store buildcache runs on.
//
// A [Backend] opens a [Store] at a filesystem location and can destroy
// everything persisted there. Stores order keys bytewise, write batches
// atomically and iterate in ascending key order.
//
// # Built-in Implementations
//
//   - leveldb.Backend: LevelDB via github.com/syndtr/goleveldb (default)
//   - sqlite.Backend: a single WITHOUT ROWID table via modernc.org/sqlite
//
// New backends should pass the kvtest conformance suite.
package kv

import (
	"bytes"
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("kv: not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is an open handle to an ordered key-value store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns a copy of the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key, value []byte) error

	// Write applies every operation of b atomically.
	Write(ctx context.Context, b *Batch) error

	// Iterate calls fn for each key starting with prefix, in ascending order.
	// An empty prefix visits every key. key and value are only valid during
	// the call. A non-nil error from fn stops iteration and is returned.
	Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error

	// Close releases the handle. Data stays on disk.
	Close() error
}

// Backend opens and destroys stores.
type Backend interface {
	// Name returns the stable backend name ("leveldb", "sqlite").
	Name() string

	// Open opens the store at location, creating it if absent.
	Open(ctx context.Context, location string) (Store, error)

	// Destroy deletes all data persisted at location.
	// Destroying a location that does not exist is not an error.
	Destroy(ctx context.Context, location string) error
}

// OpKind is the kind of a batch operation.
type OpKind uint8

const (
	// OpPut stores a value.
	OpPut OpKind = iota
	// OpDelete removes a key.
	OpDelete
)

// Op is a single batch operation.
type Op struct {
	Kind  OpKind
	Key   []byte
	Value []byte
}

// Batch collects operations applied atomically by Store.Write.
// The zero value is an empty batch ready to use.
type Batch struct {
	ops []Op
}

// Put appends a put operation.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, Op{Kind: OpPut, Key: key, Value: value})
}

// Delete appends a delete operation.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, Op{Kind: OpDelete, Key: key})
}

// Len returns the number of operations.
func (b *Batch) Len() int { return len(b.ops) }

// Ops returns the operations in insertion order.
func (b *Batch) Ops() []Op { return b.ops }

// Reset empties the batch, keeping its capacity.
func (b *Batch) Reset() { b.ops = b.ops[:0] }

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists (empty or all-0xff prefix).
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// DurabilityMode defines the fsync behavior of store writes.
type DurabilityMode int

const (
	// DurabilityAsync leaves flushing to the OS.
	// A crash may lose the most recent writes but never corrupts the store.
	DurabilityAsync DurabilityMode = iota

	// DurabilitySync fsyncs before every Put or Write returns.
	DurabilitySync
)

// String returns "async" or "sync".
func (m DurabilityMode) String() string {
	if m == DurabilitySync {
		return "sync"
	}
	return "async"
}
