package statesync

import (
	"runtime"
	"sync"
	"time"
)

// Timer is an opaque token returned by StartTimer, capturing the start
// instant and the heap in use at that point.
type Timer struct {
	start     time.Time
	heapBytes uint64
}

// PerfStats is a point-in-time snapshot of collector state.
type PerfStats struct {
	TotalOperations int
	Successes       int
	Failures        int

	// SuccessRate is a percentage in [0, 100]; zero when nothing has been
	// recorded yet.
	SuccessRate float64

	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration

	// AvgMemoryDelta is best-effort and platform-dependent; it may be
	// zero when the runtime reclaimed memory during the operation.
	AvgMemoryDelta uint64
}

// PerfCollector records duration and outcome of processed operations over
// a bounded rolling window. Counters are cumulative; duration and memory
// buffers keep only the most recent window samples, evicting oldest
// first.
type PerfCollector struct {
	mu        sync.Mutex
	window    int
	durations []time.Duration
	memDeltas []uint64
	total     int
	successes int
	failures  int
}

// NewPerfCollector creates a collector with the given rolling window. A
// non-positive window falls back to DefaultMetricsWindow.
func NewPerfCollector(window int) *PerfCollector {
	if window <= 0 {
		window = DefaultMetricsWindow
	}
	return &PerfCollector{window: window}
}

// StartTimer captures the current time and heap usage.
func (c *PerfCollector) StartTimer() Timer {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Timer{start: time.Now(), heapBytes: ms.HeapAlloc}
}

// EndTimer records the elapsed duration and memory delta for the token
// and counts the outcome.
func (c *PerfCollector) EndTimer(t Timer, success bool) {
	elapsed := time.Since(t.start)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	var delta uint64
	if ms.HeapAlloc > t.heapBytes {
		delta = ms.HeapAlloc - t.heapBytes
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.durations = appendBounded(c.durations, elapsed, c.window)
	c.memDeltas = appendBounded(c.memDeltas, delta, c.window)
	c.total++
	if success {
		c.successes++
	} else {
		c.failures++
	}
}

// Stats returns a snapshot computed over the rolling window.
func (c *PerfCollector) Stats() PerfStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := PerfStats{
		TotalOperations: c.total,
		Successes:       c.successes,
		Failures:        c.failures,
	}
	if c.total > 0 {
		stats.SuccessRate = float64(c.successes) / float64(c.total) * 100
	}

	if len(c.durations) > 0 {
		var sum time.Duration
		stats.MinDuration = c.durations[0]
		stats.MaxDuration = c.durations[0]
		for _, d := range c.durations {
			sum += d
			if d < stats.MinDuration {
				stats.MinDuration = d
			}
			if d > stats.MaxDuration {
				stats.MaxDuration = d
			}
		}
		stats.AvgDuration = sum / time.Duration(len(c.durations))
	}

	if len(c.memDeltas) > 0 {
		var sum uint64
		for _, d := range c.memDeltas {
			sum += d
		}
		stats.AvgMemoryDelta = sum / uint64(len(c.memDeltas))
	}

	return stats
}

// Reset clears all counters and buffers.
func (c *PerfCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.durations = nil
	c.memDeltas = nil
	c.total = 0
	c.successes = 0
	c.failures = 0
}

func appendBounded[T any](buf []T, v T, limit int) []T {
	buf = append(buf, v)
	if len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return buf
}
