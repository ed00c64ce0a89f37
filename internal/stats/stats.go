// Package stats aggregates per-probe latency and outcome counters for a run.
package stats

import (
	"sync/atomic"
	"time"
)

// Probes can take as long as the sender timeout; anything beyond is clamped.
const maxLatency = 5 * time.Minute

// Stats holds live counters for one run. Safe for concurrent use.
type Stats struct {
	Probes  uint64
	Matched uint64
	Failed  uint64
	Bytes   uint64

	Latency *SafeHistogram
}

func NewStats() *Stats {
	return &Stats{Latency: NewSafeHistogram(maxLatency)}
}

// Add records one finished probe. Failed probes still contribute latency.
func (s *Stats) Add(matched, failed bool, bytes int, latency time.Duration) {
	atomic.AddUint64(&s.Probes, 1)
	switch {
	case failed:
		atomic.AddUint64(&s.Failed, 1)
	case matched:
		atomic.AddUint64(&s.Matched, 1)
	}
	if bytes > 0 {
		atomic.AddUint64(&s.Bytes, uint64(bytes))
	}
	s.Latency.Record(latency)
}

func (s *Stats) ErrorRate() float64 {
	probes := atomic.LoadUint64(&s.Probes)
	if probes == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.Failed)) / float64(probes) * 100
}

// Snapshot is a cheap copy for display and history.
type Snapshot struct {
	Probes  uint64
	Matched uint64
	Failed  uint64
	Bytes   uint64

	AvgLatencyMs float64
	P50LatencyMs float64
	P99LatencyMs float64
	MaxLatencyMs float64
}

func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Probes:  atomic.LoadUint64(&s.Probes),
		Matched: atomic.LoadUint64(&s.Matched),
		Failed:  atomic.LoadUint64(&s.Failed),
		Bytes:   atomic.LoadUint64(&s.Bytes),
	}
	if s.Latency.TotalCount() > 0 {
		snap.AvgLatencyMs = s.Latency.MeanMs()
		snap.P50LatencyMs = s.Latency.QuantileMs(50)
		snap.P99LatencyMs = s.Latency.QuantileMs(99)
		snap.MaxLatencyMs = s.Latency.MaxMs()
	}
	return snap
}
