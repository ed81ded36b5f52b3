package buildcache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/buildcache/kv"
)

var (
	// ErrStoreOpen is returned when the store cannot be opened or created
	// at the cache location (permissions, corruption, disk full).
	ErrStoreOpen = errors.New("cannot open store")

	// ErrRead is returned when reading from the store fails.
	ErrRead = errors.New("read failed")

	// ErrWrite is returned when writing to the store fails.
	ErrWrite = errors.New("write failed")

	// ErrNotFound is returned by GetFile when no record exists for the id.
	ErrNotFound = errors.New("not found")

	// ErrCleanup is returned when Clean cannot close or delete the store.
	ErrCleanup = errors.New("cleanup failed")

	// ErrNotInitialized is returned by operations on a cache whose store is
	// not open: before Initialize, or after Close or Clean.
	ErrNotInitialized = errors.New("cache not initialized")

	// ErrInvalidRecord is returned when a file record has an empty id.
	ErrInvalidRecord = errors.New("invalid record")
)

// translateError joins a public sentinel with the underlying cause so both
// match errors.Is. Not-found from the store is only promoted to ErrNotFound
// where the caller asks for it.
func translateError(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}
