// Package metrics provides performance instrumentation for arbor.
//
// This package enables visibility into performance characteristics:
// - Timing metrics for hot paths (directory listing, row rebuild, render)
// - Cache hit/miss tracking for the rendered-row cache
//
// Metrics are collected in-memory with atomic operations for thread-safety,
// since listings record from tea.Cmd goroutines.
// Collection is enabled by default but can be disabled via ARBOR_METRICS=0.
//
// Usage:
//
//	func rebuild() {
//	    defer metrics.Timer(metrics.TreeRebuild)()
//	    // ... operation code
//	}
package metrics

import (
	"os"
	"sync/atomic"
	"time"
)

// enabled controls whether metrics are collected.
// Defaults to true unless ARBOR_METRICS=0 is set.
var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("ARBOR_METRICS") != "0")
}

// Enabled returns whether metrics collection is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled allows programmatic control of metrics collection.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// TimingMetric tracks timing statistics for a named operation.
// All methods are thread-safe using atomic operations.
type TimingMetric struct {
	name    string
	count   atomic.Int64
	totalNs atomic.Int64
	maxNs   atomic.Int64
	minNs   atomic.Int64 // 0 means not set
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record records a single timing measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !Enabled() {
		return
	}
	ns := max(d.Nanoseconds(), 1)

	m.count.Add(1)
	m.totalNs.Add(ns)

	// Update max atomically using compare-and-swap
	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}

	// Update min atomically using compare-and-swap
	for {
		old := m.minNs.Load()
		if old != 0 && ns >= old {
			break
		}
		if m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Name returns the metric name.
func (m *TimingMetric) Name() string {
	return m.name
}

// Count returns the number of recorded measurements.
func (m *TimingMetric) Count() int64 {
	return m.count.Load()
}

// Stats returns all timing statistics at once.
func (m *TimingMetric) Stats() TimingStats {
	count := m.count.Load()
	totalNs := m.totalNs.Load()

	var avgNs int64
	if count > 0 {
		avgNs = totalNs / count
	}

	return TimingStats{
		Name:    m.name,
		Count:   count,
		TotalMs: float64(totalNs) / 1e6,
		AvgMs:   float64(avgNs) / 1e6,
		MaxMs:   float64(m.maxNs.Load()) / 1e6,
		MinMs:   float64(m.minNs.Load()) / 1e6,
	}
}

// Reset clears all recorded measurements.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.totalNs.Store(0)
	m.maxNs.Store(0)
	m.minNs.Store(0)
}

// TimingStats holds a snapshot of timing statistics.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Timer returns a function that records elapsed time when called.
// Use with defer for automatic timing:
//
//	func myFunc() {
//	    defer metrics.Timer(metrics.SomeMetric)()
//	    // ... function body
//	}
func Timer(m *TimingMetric) func() {
	if !Enabled() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

// TimerWithCallback returns a function that records elapsed time
// and also calls the provided callback with the duration.
// The callback runs even when collection is disabled.
func TimerWithCallback(m *TimingMetric, cb func(time.Duration)) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		if m != nil {
			m.Record(d)
		}
		if cb != nil {
			cb(d)
		}
	}
}

// CacheMetric counts hits and misses of a cache.
type CacheMetric struct {
	name   string
	hits   atomic.Int64
	misses atomic.Int64
}

func newCacheMetric(name string) *CacheMetric {
	return &CacheMetric{name: name}
}

// Hit records a cache hit.
func (c *CacheMetric) Hit() {
	if Enabled() {
		c.hits.Add(1)
	}
}

// Miss records a cache miss.
func (c *CacheMetric) Miss() {
	if Enabled() {
		c.misses.Add(1)
	}
}

// Stats returns a snapshot of the counters.
func (c *CacheMetric) Stats() CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{Name: c.name, Hits: hits, Misses: misses, HitRate: rate}
}

// Reset clears the counters.
func (c *CacheMetric) Reset() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// CacheStats holds a snapshot of cache counters.
type CacheStats struct {
	Name    string  `json:"name"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Global metrics for the tree widgets.
var (
	DirListing  = newTimingMetric("dir_listing")
	TreeRebuild = newTimingMetric("tree_rebuild")
	UIRender    = newTimingMetric("ui_render")

	RowCache = newCacheMetric("row_cache")
)

// AllTimingMetrics returns all registered timing metrics.
func AllTimingMetrics() []*TimingMetric {
	return []*TimingMetric{
		DirListing,
		TreeRebuild,
		UIRender,
	}
}

// AllCacheMetrics returns all registered cache metrics.
func AllCacheMetrics() []*CacheMetric {
	return []*CacheMetric{RowCache}
}

// ResetAll resets all metrics.
func ResetAll() {
	for _, m := range AllTimingMetrics() {
		m.Reset()
	}
	for _, m := range AllCacheMetrics() {
		m.Reset()
	}
}

// Report is a snapshot of every metric with data.
type Report struct {
	Timings []TimingStats `json:"timings"`
	Caches  []CacheStats  `json:"caches"`
}

// Snapshot returns stats for every metric that recorded something.
func Snapshot() Report {
	var r Report
	for _, m := range AllTimingMetrics() {
		if m.Count() > 0 {
			r.Timings = append(r.Timings, m.Stats())
		}
	}
	for _, c := range AllCacheMetrics() {
		if s := c.Stats(); s.Hits+s.Misses > 0 {
			r.Caches = append(r.Caches, s)
		}
	}
	return r
}
