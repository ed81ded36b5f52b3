// Package sqlite provides a kv.Backend on a single SQLite table using the
// pure-Go modernc.org/sqlite driver.
//
// A location is a directory holding cache.db (plus its WAL files). Keys are
// stored as BLOBs, which SQLite compares with memcmp, so iteration order is
// the same bytewise order LevelDB uses.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hupe1980/buildcache/kv"
)

// FileName is the database file created inside a location.
const FileName = "cache.db"

const dirPerm = 0o750

const schema = `CREATE TABLE IF NOT EXISTS kv (
	k BLOB PRIMARY KEY,
	v BLOB
) WITHOUT ROWID`

// Options contains configuration for SQLite stores.
type Options struct {
	// DurabilityMode maps to PRAGMA synchronous: NORMAL for async, FULL for sync.
	DurabilityMode kv.DurabilityMode

	// BusyTimeout is how long a connection waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration
}

// DefaultOptions returns default SQLite options.
var DefaultOptions = Options{
	DurabilityMode: kv.DurabilityAsync,
	BusyTimeout:    5 * time.Second,
}

// Backend opens SQLite stores.
type Backend struct {
	opts Options
}

// New creates a SQLite backend.
func New(optFns ...func(*Options)) *Backend {
	opts := DefaultOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	return &Backend{opts: opts}
}

// Name returns "sqlite".
func (b *Backend) Name() string { return "sqlite" }

func (b *Backend) dsn(location string) string {
	synchronous := "NORMAL"
	if b.opts.DurabilityMode == kv.DurabilitySync {
		synchronous = "FULL"
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(%s)",
		filepath.Join(location, FileName), b.opts.BusyTimeout.Milliseconds(), synchronous)
}

// Open opens or creates location/cache.db.
func (b *Backend) Open(ctx context.Context, location string) (kv.Store, error) {
	if err := os.MkdirAll(location, dirPerm); err != nil {
		return nil, fmt.Errorf("create sqlite location: %w", err)
	}

	db, err := sql.Open("sqlite", b.dsn(location))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", location, err)
	}
	// One connection serializes writers and keeps WAL checkpoints local.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema %s: %w", location, err)
	}

	return &Store{db: db}, nil
}

// Destroy removes the location directory.
func (b *Backend) Destroy(_ context.Context, location string) error {
	return os.RemoveAll(location)
}

// Store is an open SQLite handle.
type Store struct {
	db *sql.DB
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

const upsert = `INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v`

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	_, err := s.db.ExecContext(ctx, upsert, key, value)
	return translate(err)
}

// Write applies b in one transaction.
func (s *Store) Write(ctx context.Context, b *kv.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range b.Ops() {
		switch op.Kind {
		case kv.OpPut:
			_, err = tx.ExecContext(ctx, upsert, op.Key, op.Value)
		case kv.OpDelete:
			_, err = tx.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, op.Key)
		default:
			err = fmt.Errorf("sqlite: unknown batch op %d", op.Kind)
		}
		if err != nil {
			return translate(err)
		}
	}
	return translate(tx.Commit())
}

// Iterate visits keys with the given prefix in ascending order.
func (s *Store) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	var (
		rows *sql.Rows
		err  error
	)
	switch end := kv.PrefixEnd(prefix); {
	case len(prefix) == 0:
		rows, err = s.db.QueryContext(ctx, `SELECT k, v FROM kv ORDER BY k`)
	case end == nil:
		rows, err = s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? ORDER BY k`, prefix)
	default:
		rows, err = s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k`, prefix, end)
	}
	if err != nil {
		return translate(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return translate(err)
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return translate(rows.Err())
}

// Close closes the database.
func (s *Store) Close() error {
	return translate(s.db.Close())
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return kv.ErrNotFound
	case errors.Is(err, sql.ErrConnDone), err.Error() == "sql: database is closed":
		return fmt.Errorf("%w: %w", kv.ErrClosed, err)
	default:
		return err
	}
}
