// Package stats aggregates per-run statistics for the exit summary.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// Recorder accumulates execution statistics across a supervisor's
// lifetime. Durations feed t-digests so percentiles stay cheap no
// matter how many runs a session performs.
type Recorder struct {
	mu sync.Mutex

	causeCounts map[string]int64
	totalRuns   int64

	durationDigest    *tdigest.TDigest
	firstOutputDigest *tdigest.TDigest
	firstOutputCount  int64

	minDuration time.Duration
	maxDuration time.Duration
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		causeCounts:       make(map[string]int64),
		durationDigest:    tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
		firstOutputDigest: tdigest.NewWithCompression(100),
	}
}

// Record adds one completed execution. firstOutput is the delay until
// the first captured output byte; sawOutput reports whether the command
// produced any output at all.
func (r *Recorder) Record(cause string, duration, firstOutput time.Duration, sawOutput bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.causeCounts[cause]++
	r.totalRuns++
	r.durationDigest.Add(float64(duration.Nanoseconds()), 1)

	if sawOutput {
		r.firstOutputDigest.Add(float64(firstOutput.Nanoseconds()), 1)
		r.firstOutputCount++
	}

	if r.totalRuns == 1 || duration < r.minDuration {
		r.minDuration = duration
	}
	if duration > r.maxDuration {
		r.maxDuration = duration
	}
}

// DurationStats holds percentile values extracted from a digest.
type DurationStats struct {
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
	Min time.Duration
	Max time.Duration
}

// RunStats is a point-in-time snapshot of everything recorded.
type RunStats struct {
	TotalRuns   int64
	CauseCounts map[string]int64

	Duration DurationStats

	// FirstOutput percentiles only cover runs that produced output.
	FirstOutput     DurationStats
	RunsWithOutput  int64
	SilentRunsCount int64
}

// Snapshot extracts the current statistics.
func (r *Recorder) Snapshot() *RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &RunStats{
		TotalRuns:       r.totalRuns,
		CauseCounts:     make(map[string]int64, len(r.causeCounts)),
		RunsWithOutput:  r.firstOutputCount,
		SilentRunsCount: r.totalRuns - r.firstOutputCount,
	}
	for cause, count := range r.causeCounts {
		s.CauseCounts[cause] = count
	}

	if r.totalRuns > 0 {
		s.Duration = DurationStats{
			P50: quantile(r.durationDigest, 0.50),
			P95: quantile(r.durationDigest, 0.95),
			P99: quantile(r.durationDigest, 0.99),
			Min: r.minDuration,
			Max: r.maxDuration,
		}
	}
	if r.firstOutputCount > 0 {
		s.FirstOutput = DurationStats{
			P50: quantile(r.firstOutputDigest, 0.50),
			P95: quantile(r.firstOutputDigest, 0.95),
			P99: quantile(r.firstOutputDigest, 0.99),
		}
	}

	return s
}

// quantile reads one quantile from a digest as a duration.
func quantile(d *tdigest.TDigest, q float64) time.Duration {
	return time.Duration(d.Quantile(q))
}
