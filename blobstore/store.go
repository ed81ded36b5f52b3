package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrInvalidName is returned for blob names that escape the store root.
var ErrInvalidName = errors.New("invalid blob name")

// BlobStore holds named, immutable blobs such as cache snapshots.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Create starts writing a blob. The blob becomes visible under name
	// only after Close returns nil, replacing any previous blob.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Aborter is implemented by writers returned from Create that can discard
// an unfinished blob. After Abort the blob is not created.
type Aborter interface {
	Abort() error
}

// Abort discards w if it supports it, and closes it otherwise.
func Abort(w io.WriteCloser) error {
	if a, ok := w.(Aborter); ok {
		return a.Abort()
	}
	return w.Close()
}

// Put writes data as blob name.
func Put(ctx context.Context, s BlobStore, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = Abort(w)
		return err
	}
	return w.Close()
}

// Get reads the whole blob name.
func Get(ctx context.Context, s BlobStore, name string) ([]byte, error) {
	r, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}
