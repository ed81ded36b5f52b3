package buildcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    readCounter  prometheus.Counter
//	    hitCounter   prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordFileGet(hit bool, duration time.Duration, err error) {
//	    if hit {
//	        p.hitCounter.Inc()
//	    }
//	}
type MetricsCollector interface {
	// RecordRead is called after each Read with the number of records returned.
	RecordRead(files int, duration time.Duration, err error)

	// RecordUpdate is called after each Update with the batch size.
	RecordUpdate(files int, duration time.Duration, err error)

	// RecordFileGet is called after each GetFile.
	// hit is false when the record was missing or the lookup failed.
	RecordFileGet(hit bool, duration time.Duration, err error)

	// RecordFilePut is called after each PutFile.
	RecordFilePut(duration time.Duration, err error)

	// RecordPluginGet is called after each GetPlugin.
	RecordPluginGet(hit bool, duration time.Duration, err error)

	// RecordPluginPut is called after each PutPlugin.
	RecordPluginPut(duration time.Duration, err error)

	// RecordClean is called after each Clean.
	RecordClean(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRead(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordUpdate(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordFileGet(bool, time.Duration, error)   {}
func (NoopMetricsCollector) RecordFilePut(time.Duration, error)         {}
func (NoopMetricsCollector) RecordPluginGet(bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordPluginPut(time.Duration, error)       {}
func (NoopMetricsCollector) RecordClean(time.Duration, error)           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ReadCount       atomic.Int64
	ReadErrors      atomic.Int64
	ReadFiles       atomic.Int64
	ReadTotalNanos  atomic.Int64
	UpdateCount     atomic.Int64
	UpdateErrors    atomic.Int64
	UpdateFiles     atomic.Int64
	FileGetCount    atomic.Int64
	FileGetHits     atomic.Int64
	FileGetErrors   atomic.Int64
	FilePutCount    atomic.Int64
	FilePutErrors   atomic.Int64
	PluginGetCount  atomic.Int64
	PluginGetHits   atomic.Int64
	PluginGetErrors atomic.Int64
	PluginPutCount  atomic.Int64
	PluginPutErrors atomic.Int64
	CleanCount      atomic.Int64
	CleanErrors     atomic.Int64
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(files int, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
		return
	}
	b.ReadFiles.Add(int64(files))
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(files int, duration time.Duration, err error) {
	b.UpdateCount.Add(1)
	if err != nil {
		b.UpdateErrors.Add(1)
		return
	}
	b.UpdateFiles.Add(int64(files))
}

// RecordFileGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFileGet(hit bool, duration time.Duration, err error) {
	b.FileGetCount.Add(1)
	if hit {
		b.FileGetHits.Add(1)
	}
	if err != nil {
		b.FileGetErrors.Add(1)
	}
}

// RecordFilePut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFilePut(duration time.Duration, err error) {
	b.FilePutCount.Add(1)
	if err != nil {
		b.FilePutErrors.Add(1)
	}
}

// RecordPluginGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPluginGet(hit bool, duration time.Duration, err error) {
	b.PluginGetCount.Add(1)
	if hit {
		b.PluginGetHits.Add(1)
	}
	if err != nil {
		b.PluginGetErrors.Add(1)
	}
}

// RecordPluginPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPluginPut(duration time.Duration, err error) {
	b.PluginPutCount.Add(1)
	if err != nil {
		b.PluginPutErrors.Add(1)
	}
}

// RecordClean implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClean(duration time.Duration, err error) {
	b.CleanCount.Add(1)
	if err != nil {
		b.CleanErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ReadCount:       b.ReadCount.Load(),
		ReadErrors:      b.ReadErrors.Load(),
		ReadFiles:       b.ReadFiles.Load(),
		ReadAvgNanos:    b.getAvgReadNanos(),
		UpdateCount:     b.UpdateCount.Load(),
		UpdateErrors:    b.UpdateErrors.Load(),
		UpdateFiles:     b.UpdateFiles.Load(),
		FileGetCount:    b.FileGetCount.Load(),
		FileGetHits:     b.FileGetHits.Load(),
		FileGetErrors:   b.FileGetErrors.Load(),
		FilePutCount:    b.FilePutCount.Load(),
		FilePutErrors:   b.FilePutErrors.Load(),
		PluginGetCount:  b.PluginGetCount.Load(),
		PluginGetHits:   b.PluginGetHits.Load(),
		PluginGetErrors: b.PluginGetErrors.Load(),
		PluginPutCount:  b.PluginPutCount.Load(),
		PluginPutErrors: b.PluginPutErrors.Load(),
		CleanCount:      b.CleanCount.Load(),
		CleanErrors:     b.CleanErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgReadNanos() int64 {
	count := b.ReadCount.Load()
	if count == 0 {
		return 0
	}
	return b.ReadTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ReadCount       int64
	ReadErrors      int64
	ReadFiles       int64
	ReadAvgNanos    int64
	UpdateCount     int64
	UpdateErrors    int64
	UpdateFiles     int64
	FileGetCount    int64
	FileGetHits     int64
	FileGetErrors   int64
	FilePutCount    int64
	FilePutErrors   int64
	PluginGetCount  int64
	PluginGetHits   int64
	PluginGetErrors int64
	PluginPutCount  int64
	PluginPutErrors int64
	CleanCount      int64
	CleanErrors     int64
}
