// Package blobstore provides storage abstraction for buildcache snapshots.
//
// BlobStore is the interface for reading and writing whole blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, atomic temp-file + rename writes
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 with multipart streaming uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (io.ReadCloser, error)    // Open for reading
//	    Create(ctx, name) (io.WriteCloser, error) // Visible after Close
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Writers that can discard an unfinished upload implement Aborter.
package blobstore
