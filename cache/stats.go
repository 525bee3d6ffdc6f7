package cache

import (
	"sync/atomic"
	"time"
)

// Statistics is a point-in-time snapshot of a cache instance's counters.
type Statistics struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Sets         int64 `json:"sets"`
	Deletes      int64 `json:"deletes"`
	Errors       int64 `json:"errors"`
	L1Hits       int64 `json:"l1_hits"`
	L2Hits       int64 `json:"l2_hits"`

	// DegradedWrites counts writes that reached only L1 because Redis was
	// unavailable. Silent write degradation is observable here, not through
	// errors.
	DegradedWrites int64 `json:"degraded_writes"`

	// CurrentSize is the live entry count of the active tier (Redis DBSIZE
	// when connected, else L1 length). Zero when size detection fails.
	CurrentSize int64 `json:"current_size"`

	// AvgGetLatency is the mean lookup latency over all recorded gets.
	AvgGetLatency time.Duration `json:"avg_get_latency"`

	HitRate float64 `json:"hit_rate"`
}

// statsRecorder accumulates counters with atomics so concurrent callers
// never contend on a lock for bookkeeping.
type statsRecorder struct {
	hits           atomic.Int64
	misses         atomic.Int64
	sets           atomic.Int64
	deletes        atomic.Int64
	errors         atomic.Int64
	l1Hits         atomic.Int64
	l2Hits         atomic.Int64
	degradedWrites atomic.Int64
	getLatencyNs   atomic.Int64
	getCount       atomic.Int64
}

func (s *statsRecorder) recordHit(tier int, latency time.Duration) {
	s.hits.Add(1)
	if tier == 1 {
		s.l1Hits.Add(1)
	} else {
		s.l2Hits.Add(1)
	}
	s.recordGetLatency(latency)
}

func (s *statsRecorder) recordMiss(latency time.Duration) {
	s.misses.Add(1)
	s.recordGetLatency(latency)
}

func (s *statsRecorder) recordGetLatency(latency time.Duration) {
	s.getLatencyNs.Add(int64(latency))
	s.getCount.Add(1)
}

func (s *statsRecorder) recordSet()           { s.sets.Add(1) }
func (s *statsRecorder) recordDelete()        { s.deletes.Add(1) }
func (s *statsRecorder) recordError()         { s.errors.Add(1) }
func (s *statsRecorder) recordDegradedWrite() { s.degradedWrites.Add(1) }

// snapshot copies the counters into a Statistics value.
func (s *statsRecorder) snapshot(currentSize int64) Statistics {
	hits := s.hits.Load()
	misses := s.misses.Load()

	var avg time.Duration
	if n := s.getCount.Load(); n > 0 {
		avg = time.Duration(s.getLatencyNs.Load() / n)
	}

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Statistics{
		Hits:           hits,
		Misses:         misses,
		Sets:           s.sets.Load(),
		Deletes:        s.deletes.Load(),
		Errors:         s.errors.Load(),
		L1Hits:         s.l1Hits.Load(),
		L2Hits:         s.l2Hits.Load(),
		DegradedWrites: s.degradedWrites.Load(),
		CurrentSize:    currentSize,
		AvgGetLatency:  avg,
		HitRate:        hitRate,
	}
}
