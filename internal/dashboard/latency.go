package dashboard

import (
	"math"
	"slices"
	"sync"
)

// LatencyStats summarizes update-to-broadcast delay in milliseconds.
type LatencyStats struct {
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
	Count int     `json:"count"`
}

// LatencyTracker keeps the last N delay samples in a ring. Thread-safe.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	pos     int
	count   int
}

// NewLatencyTracker creates a tracker holding the last capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 4096
	}
	return &LatencyTracker{samples: make([]float64, capacity)}
}

// Record adds a sample in milliseconds.
func (lt *LatencyTracker) Record(ms float64) {
	lt.mu.Lock()
	lt.samples[lt.pos] = ms
	lt.pos = (lt.pos + 1) % len(lt.samples)
	if lt.count < len(lt.samples) {
		lt.count++
	}
	lt.mu.Unlock()
}

// Stats returns p50/p95/p99 over the retained samples; zero when empty.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	sorted := make([]float64, lt.count)
	if lt.count == len(lt.samples) {
		n := copy(sorted, lt.samples[lt.pos:])
		copy(sorted[n:], lt.samples[:lt.pos])
	} else {
		copy(sorted, lt.samples[:lt.count])
	}
	lt.mu.Unlock()

	if len(sorted) == 0 {
		return LatencyStats{}
	}
	slices.Sort(sorted)
	return LatencyStats{
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
		Count: len(sorted),
	}
}

// percentile linearly interpolates the p-th quantile (0..1) of sorted.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}
