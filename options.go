package buildcache

import (
	"log/slog"

	"github.com/hupe1980/buildcache/codec"
	"github.com/hupe1980/buildcache/kv"
	"github.com/hupe1980/buildcache/kv/leveldb"
)

// DefaultImportBatchSize is the number of entries Import writes per batch.
const DefaultImportBatchSize = 1024

type options struct {
	backend          kv.Backend
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	importBatchSize  int
}

// Option configures a Cache.
type Option func(*options)

// WithBackend configures the storage backend.
//
// If nil is passed, a default leveldb.Backend is used.
//
// Example:
//
//	c := buildcache.New[buildcache.File]("./.cache",
//	    buildcache.WithBackend(sqlite.New()))
func WithBackend(b kv.Backend) Option {
	return func(o *options) {
		if b == nil {
			b = leveldb.New()
		}
		o.backend = b
	}
}

// WithCodec configures the codec used for record values.
//
// If nil is passed, codec.Default is used. Only the JSON codecs keep the
// on-disk values readable by other LevelDB consumers.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &buildcache.BasicMetricsCollector{}
//	c := buildcache.New[buildcache.File](dir, buildcache.WithMetricsCollector(metrics))
//	// ... use c ...
//	stats := metrics.GetStats()
//	fmt.Printf("File hits: %d/%d\n", stats.FileGetHits, stats.FileGetCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := buildcache.NewJSONLogger(slog.LevelDebug)
//	c := buildcache.New[buildcache.File](dir, buildcache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithImportBatchSize sets how many entries Import commits per atomic batch.
// Values <= 0 restore DefaultImportBatchSize.
func WithImportBatchSize(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = DefaultImportBatchSize
		}
		o.importBatchSize = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		backend:          leveldb.New(),
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		importBatchSize:  DefaultImportBatchSize,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
