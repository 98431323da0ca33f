package internal

import (
	"sync/atomic"
)

// Stats holds request counters reported periodically by the main loop.
// All methods are safe for concurrent use.
type Stats struct {
	requests       int64
	storeErrors    int64
	paramFallbacks int64
	notFound       int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Requests       int64 `json:"requests"`
	StoreErrors    int64 `json:"store_errors"`
	ParamFallbacks int64 `json:"param_fallbacks"`
	NotFound       int64 `json:"not_found"`
}

// NewStats inicializa los contadores
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) AddRequest()       { atomic.AddInt64(&s.requests, 1) }
func (s *Stats) AddStoreError()    { atomic.AddInt64(&s.storeErrors, 1) }
func (s *Stats) AddParamFallback() { atomic.AddInt64(&s.paramFallbacks, 1) }
func (s *Stats) AddNotFound()      { atomic.AddInt64(&s.notFound, 1) }

// Snapshot reads the counters without resetting them.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Requests:       atomic.LoadInt64(&s.requests),
		StoreErrors:    atomic.LoadInt64(&s.storeErrors),
		ParamFallbacks: atomic.LoadInt64(&s.paramFallbacks),
		NotFound:       atomic.LoadInt64(&s.notFound),
	}
}

// Reset reads and zeroes the counters so they do not grow without bound.
func (s *Stats) Reset() StatsSnapshot {
	return StatsSnapshot{
		Requests:       atomic.SwapInt64(&s.requests, 0),
		StoreErrors:    atomic.SwapInt64(&s.storeErrors, 0),
		ParamFallbacks: atomic.SwapInt64(&s.paramFallbacks, 0),
		NotFound:       atomic.SwapInt64(&s.notFound, 0),
	}
}
