// Package config loads and validates the buildcache CLI configuration.
//
// Files ending in .toml are decoded with go-toml, .yaml and .yml files with
// yaml.v3. Unknown keys are rejected in both formats.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/buildcache/blobstore"
	"github.com/hupe1980/buildcache/blobstore/minio"
	"github.com/hupe1980/buildcache/blobstore/s3"
	"github.com/hupe1980/buildcache/codec"
	"github.com/hupe1980/buildcache/kv"
	"github.com/hupe1980/buildcache/kv/leveldb"
	"github.com/hupe1980/buildcache/kv/sqlite"
	"github.com/hupe1980/buildcache/resource"
)

// DefaultPath is the config file the CLI looks for when -config is not given.
const DefaultPath = "buildcache.toml"

// ErrUnsupportedFormat is returned for config files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Backend names.
const (
	BackendLevelDB = "leveldb"
	BackendSQLite  = "sqlite"
)

// Remote kinds.
const (
	RemoteLocal = "local"
	RemoteS3    = "s3"
	RemoteMinio = "minio"
)

// LevelDBConfig tunes the leveldb backend.
type LevelDBConfig struct {
	BlockCacheMB       int  `toml:"block_cache_mb" yaml:"block_cache_mb"`
	DisableCompression bool `toml:"disable_compression" yaml:"disable_compression"`
	RepairOnCorruption bool `toml:"repair_on_corruption" yaml:"repair_on_corruption"`
}

// SQLiteConfig tunes the sqlite backend.
type SQLiteConfig struct {
	BusyTimeout string `toml:"busy_timeout" yaml:"busy_timeout"`
}

// RemoteConfig selects where push and pull keep snapshots.
type RemoteConfig struct {
	Kind string `toml:"kind" yaml:"kind"`

	// Path is the directory of the local remote.
	Path string `toml:"path" yaml:"path"`

	Bucket    string `toml:"bucket" yaml:"bucket"`
	Prefix    string `toml:"prefix" yaml:"prefix"`
	Region    string `toml:"region" yaml:"region"`
	Endpoint  string `toml:"endpoint" yaml:"endpoint"`
	AccessKey string `toml:"access_key" yaml:"access_key"`
	SecretKey string `toml:"secret_key" yaml:"secret_key"`
	Secure    bool   `toml:"secure" yaml:"secure"`

	// Keep is how many snapshots prune leaves in place by default.
	Keep int `toml:"keep" yaml:"keep"`

	// MaxBytesPerSec throttles push and pull. 0 means unlimited.
	MaxBytesPerSec int64 `toml:"max_bytes_per_sec" yaml:"max_bytes_per_sec"`
}

// Config mirrors the buildcache config file.
type Config struct {
	Location string        `toml:"location" yaml:"location"`
	Backend  string        `toml:"backend" yaml:"backend"`
	Codec    string        `toml:"codec" yaml:"codec"`
	Sync     bool          `toml:"sync" yaml:"sync"`
	LevelDB  LevelDBConfig `toml:"leveldb" yaml:"leveldb"`
	SQLite   SQLiteConfig  `toml:"sqlite" yaml:"sqlite"`
	Remote   RemoteConfig  `toml:"remote" yaml:"remote"`
}

// Default returns the configuration used without a config file.
func Default() Config {
	return Config{
		Location: ".buildcache",
		Backend:  BackendLevelDB,
		Codec:    codec.Default.Name(),
		LevelDB:  LevelDBConfig{BlockCacheMB: leveldb.DefaultOptions.BlockCacheMB},
		SQLite:   SQLiteConfig{BusyTimeout: sqlite.DefaultOptions.BusyTimeout.String()},
		Remote: RemoteConfig{
			Kind: RemoteLocal,
			Path: ".buildcache-remote",
			Keep: 5,
		},
	}
}

// Load reads the config file at path on top of Default. Relative local
// paths in the file are resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	dir := filepath.Dir(path)
	cfg.Location = resolve(dir, cfg.Location)
	cfg.Remote.Path = resolve(dir, cfg.Remote.Path)
	cfg.Remote.AccessKey = os.ExpandEnv(cfg.Remote.AccessKey)
	cfg.Remote.SecretKey = os.ExpandEnv(cfg.Remote.SecretKey)
	return cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.Location == "" {
		errs = append(errs, errors.New("location must not be empty"))
	}
	switch c.Backend {
	case BackendLevelDB, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("backend %q: want %s or %s", c.Backend, BackendLevelDB, BackendSQLite))
	}
	if _, ok := codec.ByName(c.Codec); !ok {
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Codec))
	}
	if c.LevelDB.BlockCacheMB < 0 {
		errs = append(errs, errors.New("leveldb.block_cache_mb must be >= 0"))
	}
	if c.SQLite.BusyTimeout != "" {
		if _, err := time.ParseDuration(c.SQLite.BusyTimeout); err != nil {
			errs = append(errs, fmt.Errorf("sqlite.busy_timeout: %w", err))
		}
	}

	switch c.Remote.Kind {
	case RemoteLocal:
		if c.Remote.Path == "" {
			errs = append(errs, errors.New("remote.path is required for the local remote"))
		}
	case RemoteS3, RemoteMinio:
		if c.Remote.Bucket == "" {
			errs = append(errs, fmt.Errorf("remote.bucket is required for the %s remote", c.Remote.Kind))
		}
		if c.Remote.Kind == RemoteMinio && c.Remote.Endpoint == "" {
			errs = append(errs, errors.New("remote.endpoint is required for the minio remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote.kind %q: want %s, %s or %s", c.Remote.Kind, RemoteLocal, RemoteS3, RemoteMinio))
	}
	if c.Remote.Keep < 0 {
		errs = append(errs, errors.New("remote.keep must be >= 0"))
	}
	if c.Remote.MaxBytesPerSec < 0 {
		errs = append(errs, errors.New("remote.max_bytes_per_sec must be >= 0"))
	}

	return errors.Join(errs...)
}

func (c Config) durability() kv.DurabilityMode {
	if c.Sync {
		return kv.DurabilitySync
	}
	return kv.DurabilityAsync
}

// OpenBackend returns the configured storage backend.
func (c Config) OpenBackend() (kv.Backend, error) {
	switch c.Backend {
	case BackendLevelDB:
		return leveldb.New(func(o *leveldb.Options) {
			o.DurabilityMode = c.durability()
			o.BlockCacheMB = c.LevelDB.BlockCacheMB
			o.DisableCompression = c.LevelDB.DisableCompression
			o.RepairOnCorruption = c.LevelDB.RepairOnCorruption
		}), nil
	case BackendSQLite:
		var timeout time.Duration
		if c.SQLite.BusyTimeout != "" {
			d, err := time.ParseDuration(c.SQLite.BusyTimeout)
			if err != nil {
				return nil, fmt.Errorf("sqlite.busy_timeout: %w", err)
			}
			timeout = d
		}
		return sqlite.New(func(o *sqlite.Options) {
			o.DurabilityMode = c.durability()
			if timeout > 0 {
				o.BusyTimeout = timeout
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// OpenCodec returns the configured value codec.
func (c Config) OpenCodec() (codec.Codec, error) {
	cd, ok := codec.ByName(c.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", c.Codec)
	}
	return cd, nil
}

// OpenRemote returns the blob store holding pushed snapshots.
func (c Config) OpenRemote(ctx context.Context) (blobstore.BlobStore, error) {
	r := c.Remote
	switch r.Kind {
	case RemoteLocal:
		return blobstore.NewLocalStore(r.Path), nil
	case RemoteS3:
		return s3.New(ctx, r.Bucket, func(o *s3.Options) {
			o.Prefix = r.Prefix
			o.Region = r.Region
			o.Endpoint = r.Endpoint
		})
	case RemoteMinio:
		return minio.Dial(minio.Options{
			Endpoint:  r.Endpoint,
			AccessKey: r.AccessKey,
			SecretKey: r.SecretKey,
			Region:    r.Region,
			Secure:    r.Secure,
		}, r.Bucket, r.Prefix)
	default:
		return nil, fmt.Errorf("unknown remote kind %q", r.Kind)
	}
}

// TransferController returns the throttle for push and pull, or nil when
// transfers are unlimited.
func (c Config) TransferController() *resource.Controller {
	if c.Remote.MaxBytesPerSec == 0 {
		return nil
	}
	return resource.NewController(resource.Config{BytesPerSec: c.Remote.MaxBytesPerSec})
}
