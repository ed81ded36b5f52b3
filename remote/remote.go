// Package remote pushes and pulls cache snapshots to and from blob stores.
//
// Snapshots are stored as blobs under SnapshotPrefix. After every push the
// blob named Latest holds the name of the newest snapshot, so Pull without
// a name restores the most recent push.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/buildcache/blobstore"
	"github.com/hupe1980/buildcache/resource"
	"github.com/hupe1980/buildcache/snapshot"
)

const (
	// SnapshotPrefix is the blob name prefix of every snapshot.
	SnapshotPrefix = "snapshots/"

	// Latest is the pointer blob naming the newest snapshot.
	Latest = "LATEST"

	// Ext is the file extension of generated snapshot names.
	Ext = ".snap"

	pruneConcurrency = 4
)

// ErrNoSnapshot is returned by Pull when no snapshot was ever pushed.
var ErrNoSnapshot = errors.New("no snapshot")

// ErrInvalidName is returned for snapshot names that are not a single path element.
var ErrInvalidName = errors.New("invalid snapshot name")

// Exporter writes a snapshot of its whole store.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) (snapshot.Stats, error)
}

// Importer loads a snapshot into its store.
type Importer interface {
	Import(ctx context.Context, r io.Reader) (snapshot.Stats, error)
}

// Result describes a transferred snapshot.
type Result struct {
	Name  string
	Stats snapshot.Stats
}

// Option configures Push and Pull.
type Option func(*options)

type options struct {
	controller *resource.Controller
}

// WithController throttles the transfer with rc. A nil rc imposes no limits.
func WithController(rc *resource.Controller) Option {
	return func(o *options) { o.controller = rc }
}

func applyOptions(optFns []Option) options {
	var o options
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// NewName returns a snapshot name that sorts after every name generated
// before it.
func NewName(now time.Time) string {
	return now.UTC().Format("20060102T150405.000000000Z") + "-" + uuid.NewString()[:8] + Ext
}

func blobName(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return SnapshotPrefix + name, nil
}

// Push exports src into a new snapshot blob and points Latest at it.
// An empty name generates one with NewName.
func Push(ctx context.Context, src Exporter, store blobstore.BlobStore, name string, optFns ...Option) (Result, error) {
	opts := applyOptions(optFns)
	if name == "" {
		name = NewName(time.Now())
	}
	blob, err := blobName(name)
	if err != nil {
		return Result{}, err
	}

	if err := opts.controller.AcquireTransfer(ctx); err != nil {
		return Result{}, err
	}
	defer opts.controller.ReleaseTransfer()

	w, err := store.Create(ctx, blob)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", blob, err)
	}

	stats, err := src.Export(ctx, resource.NewRateLimitedWriter(ctx, w, opts.controller))
	if err != nil {
		_ = blobstore.Abort(w)
		return Result{}, err
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", blob, err)
	}

	if err := blobstore.Put(ctx, store, Latest, []byte(name+"\n")); err != nil {
		return Result{}, fmt.Errorf("update %s: %w", Latest, err)
	}
	return Result{Name: name, Stats: stats}, nil
}

// LatestName returns the name Latest points to.
func LatestName(ctx context.Context, store blobstore.BlobStore) (string, error) {
	data, err := blobstore.Get(ctx, store, Latest)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return "", ErrNoSnapshot
		}
		return "", err
	}
	name := string(bytes.TrimSpace(data))
	if _, err := blobName(name); err != nil {
		return "", fmt.Errorf("%s: %w", Latest, err)
	}
	return name, nil
}

// Pull imports the named snapshot into dst, or the latest one when name is
// empty.
func Pull(ctx context.Context, dst Importer, store blobstore.BlobStore, name string, optFns ...Option) (Result, error) {
	opts := applyOptions(optFns)
	if name == "" {
		var err error
		if name, err = LatestName(ctx, store); err != nil {
			return Result{}, err
		}
	}
	blob, err := blobName(name)
	if err != nil {
		return Result{}, err
	}

	if err := opts.controller.AcquireTransfer(ctx); err != nil {
		return Result{}, err
	}
	defer opts.controller.ReleaseTransfer()

	r, err := store.Open(ctx, blob)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrNoSnapshot, name)
		}
		return Result{}, err
	}
	defer func() { _ = r.Close() }()

	stats, err := dst.Import(ctx, resource.NewRateLimitedReader(ctx, r, opts.controller))
	return Result{Name: name, Stats: stats}, err
}

// List returns the names of all stored snapshots in ascending order.
func List(ctx context.Context, store blobstore.BlobStore) ([]string, error) {
	blobs, err := store.List(ctx, SnapshotPrefix)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(blobs))
	for _, b := range blobs {
		name := strings.TrimPrefix(b, SnapshotPrefix)
		if path.Base(name) == name {
			names = append(names, name)
		}
	}
	return names, nil
}

// Prune deletes all but the keep last snapshots in name order. The snapshot
// Latest points to is always kept.
func Prune(ctx context.Context, store blobstore.BlobStore, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must be >= 0, got %d", keep)
	}

	names, err := List(ctx, store)
	if err != nil {
		return nil, err
	}

	latest, err := LatestName(ctx, store)
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return nil, err
	}

	if len(names) <= keep {
		return nil, nil
	}

	var victims []string
	for _, name := range names[:len(names)-keep] {
		if name != latest {
			victims = append(victims, name)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pruneConcurrency)
	for _, name := range victims {
		g.Go(func() error {
			if err := store.Delete(gctx, SnapshotPrefix+name); err != nil {
				return fmt.Errorf("delete %s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return victims, nil
}
