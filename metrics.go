package recgo

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/recgo/engine"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus;
// metrics.PrometheusCollector is a ready-made implementation.
//
// The engine events (fit, insert, search, rebuild) are forwarded to the
// embedded engine.MetricsObserver.
type MetricsCollector interface {
	engine.MetricsObserver

	// RecordSave is called when a snapshot write finished.
	// bytes is the encoded snapshot size.
	RecordSave(async bool, bytes int64, duration time.Duration, err error)

	// RecordLoad is called after each load.
	RecordLoad(duration time.Duration, err error)

	// RecordProcess is called after each pipeline call.
	// resolved is the number of known artists in the request.
	RecordProcess(kind string, resolved int, duration time.Duration, err error)
}

// Pipeline kinds passed to RecordProcess.
const (
	ProcessKindArtists  = "artists"
	ProcessKindPlaylist = "playlist"
)

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct {
	engine.NoopMetricsObserver
}

func (NoopMetricsCollector) RecordSave(bool, int64, time.Duration, error)    {}
func (NoopMetricsCollector) RecordLoad(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordProcess(string, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FitCount         atomic.Int64
	FitErrors        atomic.Int64
	InsertCount      atomic.Int64
	InsertItems      atomic.Int64
	InsertErrors     atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	RebuildCount     atomic.Int64
	SaveCount        atomic.Int64
	SaveAsyncCount   atomic.Int64
	SaveErrors       atomic.Int64
	SaveBytes        atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	ProcessCount     atomic.Int64
	ProcessErrors    atomic.Int64
	ProcessResolved  atomic.Int64
}

var _ MetricsCollector = (*BasicMetricsCollector)(nil)

// OnFit implements engine.MetricsObserver.
func (b *BasicMetricsCollector) OnFit(_ time.Duration, _, _ int, err error) {
	b.FitCount.Add(1)
	if err != nil {
		b.FitErrors.Add(1)
	}
}

// OnInsert implements engine.MetricsObserver.
func (b *BasicMetricsCollector) OnInsert(_ string, count int, _ time.Duration, err error) {
	b.InsertCount.Add(1)
	if err != nil {
		b.InsertErrors.Add(1)
		return
	}
	b.InsertItems.Add(int64(count))
}

// OnSearch implements engine.MetricsObserver.
func (b *BasicMetricsCollector) OnSearch(_ string, _ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// OnRebuild implements engine.MetricsObserver.
func (b *BasicMetricsCollector) OnRebuild(string, int, time.Duration) {
	b.RebuildCount.Add(1)
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(async bool, bytes int64, _ time.Duration, err error) {
	if async {
		b.SaveAsyncCount.Add(1)
	} else {
		b.SaveCount.Add(1)
	}
	if err != nil {
		b.SaveErrors.Add(1)
		return
	}
	b.SaveBytes.Add(bytes)
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(_ time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordProcess implements MetricsCollector.
func (b *BasicMetricsCollector) RecordProcess(_ string, resolved int, _ time.Duration, err error) {
	b.ProcessCount.Add(1)
	b.ProcessResolved.Add(int64(resolved))
	if err != nil {
		b.ProcessErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FitCount:        b.FitCount.Load(),
		FitErrors:       b.FitErrors.Load(),
		InsertCount:     b.InsertCount.Load(),
		InsertItems:     b.InsertItems.Load(),
		InsertErrors:    b.InsertErrors.Load(),
		SearchCount:     b.SearchCount.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		SearchAvgNanos:  b.getAvgSearchNanos(),
		RebuildCount:    b.RebuildCount.Load(),
		SaveCount:       b.SaveCount.Load(),
		SaveAsyncCount:  b.SaveAsyncCount.Load(),
		SaveErrors:      b.SaveErrors.Load(),
		SaveBytes:       b.SaveBytes.Load(),
		LoadCount:       b.LoadCount.Load(),
		LoadErrors:      b.LoadErrors.Load(),
		ProcessCount:    b.ProcessCount.Load(),
		ProcessErrors:   b.ProcessErrors.Load(),
		ProcessResolved: b.ProcessResolved.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	FitCount        int64
	FitErrors       int64
	InsertCount     int64
	InsertItems     int64
	InsertErrors    int64
	SearchCount     int64
	SearchErrors    int64
	SearchAvgNanos  int64
	RebuildCount    int64
	SaveCount       int64
	SaveAsyncCount  int64
	SaveErrors      int64
	SaveBytes       int64
	LoadCount       int64
	LoadErrors      int64
	ProcessCount    int64
	ProcessErrors   int64
	ProcessResolved int64
}
