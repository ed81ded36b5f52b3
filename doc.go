// Package buildcache provides a persistent cache for build tools.
//
// A Cache maps file identifiers to caller-defined file records and keeps a
// second namespace of plugin-private values, both on top of an embedded
// ordered key-value store (LevelDB by default, SQLite optionally).
//
// # Quick Start
//
//	ctx := context.Background()
//	c := buildcache.New[buildcache.File]("./.cache")
//	if err := c.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	files, _ := c.Read(ctx)                // every cached file record
//	_ = c.Update(ctx, map[string]buildcache.File{
//	    "a.js": {"id": "a.js", "hash": "abc"},
//	})
//
//	var seen []string
//	found, _ := c.GetPlugin(ctx, "lint", "seen", &seen)
//
// # Record Types
//
// Cache is generic over the record type. Any JSON-serializable type with a
// RecordID method works:
//
//	type Entry struct {
//	    ID   string `json:"id"`
//	    Hash string `json:"hash"`
//	}
//
//	func (e Entry) RecordID() string { return e.ID }
//
//	c := buildcache.New[Entry](dir)
//
// # On-Disk Layout
//
// Keys are JSON arrays, ["file",id] and ["plugin",name,key], serialized
// exactly as JavaScript's JSON.stringify does. Values are JSON documents
// unless a compressing codec is configured with WithCodec.
//
// # Lifecycle
//
// New performs no I/O. Initialize opens (or creates) the store and is
// idempotent. Close releases the handle; Clean additionally deletes all data.
// Both may be followed by another Initialize. Every other operation fails
// with ErrNotInitialized while the store is not open.
//
// # Snapshots
//
// Export and Import stream the whole store through the snapshot format;
// the remote package pushes and pulls snapshots to blob stores.
package buildcache
