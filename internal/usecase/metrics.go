package usecase

import (
	"sync/atomic"
	"time"
)

// Metrics tracks gateway call counters and latency. All methods are safe for
// concurrent use. Latency is observed on successful calls only, so the
// average reflects completed work.
type Metrics struct {
	totalCalls  atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	errors      atomic.Int64
	totalNanos  atomic.Int64
}

// MetricsSnapshot is a point-in-time view of the counters.
type MetricsSnapshot struct {
	TotalCalls          int64         `json:"totalCalls"`
	CacheHits           int64         `json:"cacheHits"`
	CacheMisses         int64         `json:"cacheMisses"`
	Errors              int64         `json:"errors"`
	TotalResponseTime   time.Duration `json:"-"`
	AverageResponseTime time.Duration `json:"-"`
}

// NewMetrics creates a zeroed collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordCall counts one generation attempt, cached or not.
func (m *Metrics) RecordCall() { m.totalCalls.Add(1) }

// RecordCacheHit counts a response served from cache.
func (m *Metrics) RecordCacheHit() { m.cacheHits.Add(1) }

// RecordCacheMiss counts a cacheable request that was not in cache.
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Add(1) }

// RecordError counts a failed generation attempt.
func (m *Metrics) RecordError() { m.errors.Add(1) }

// ObserveLatency adds one successful call's duration to the running total.
func (m *Metrics) ObserveLatency(d time.Duration) { m.totalNanos.Add(int64(d)) }

// Snapshot returns the current counters. The average divides total latency
// by successful calls (total minus errors); with no successes it is zero.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		TotalCalls:        m.totalCalls.Load(),
		CacheHits:         m.cacheHits.Load(),
		CacheMisses:       m.cacheMisses.Load(),
		Errors:            m.errors.Load(),
		TotalResponseTime: time.Duration(m.totalNanos.Load()),
	}

	if succeeded := s.TotalCalls - s.Errors; succeeded > 0 {
		s.AverageResponseTime = s.TotalResponseTime / time.Duration(succeeded)
	}
	return s
}
