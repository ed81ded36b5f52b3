// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "buildcache/"
//	    o.Region = "us-east-1"
//	})
//
//	err = remote.Push(ctx, cache, store, "")
//
// # Features
//
//   - Multipart streaming uploads for large snapshots
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//   - Custom endpoints for S3-compatible services
package s3
