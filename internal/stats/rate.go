package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// rateSampleCap is the number of samples retained (2 minutes at the
	// TUI's 500ms tick).
	rateSampleCap = 240

	rateWindow1s  = 1 * time.Second
	rateWindow10s = 10 * time.Second
	rateWindow60s = 60 * time.Second
)

// Clock supplies time for the rate tracker, overridable in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// rateSample is a point-in-time snapshot of cumulative output bytes.
type rateSample struct {
	timestamp time.Time
	bytes     int64
}

// RateTracker tracks cumulative child output bytes and computes rolling
// byte rates over fixed windows. AddBytes is lock-free and safe to call
// from the output relay; RecordSample is driven by a periodic tick.
type RateTracker struct {
	totalBytes atomic.Int64

	samples  []rateSample
	writeIdx int
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// RateStats holds rolling output rates at a point in time, in bytes per
// second.
type RateStats struct {
	TotalBytes int64

	Avg1s      float64
	Avg10s     float64
	Avg60s     float64
	AvgOverall float64
}

// NewRateTracker creates a tracker using the real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]rateSample, 0, rateSampleCap),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, rateSample{timestamp: now, bytes: 0})
	return t
}

// AddBytes adds to the cumulative total. Lock-free.
func (t *RateTracker) AddBytes(n int64) {
	if n > 0 {
		t.totalBytes.Add(n)
	}
}

// RecordSample snapshots the current cumulative count. Call periodically.
func (t *RateTracker) RecordSample() {
	now := t.clock.Now()
	current := t.totalBytes.Load()

	t.mu.Lock()
	defer t.mu.Unlock()

	s := rateSample{timestamp: now, bytes: current}
	if len(t.samples) < rateSampleCap {
		t.samples = append(t.samples, s)
	} else {
		t.samples[t.writeIdx] = s
		t.writeIdx = (t.writeIdx + 1) % rateSampleCap
	}
}

// GetStats computes the current rolling rates. Always returns valid data
// from whatever history is available.
func (t *RateTracker) GetStats() RateStats {
	now := t.clock.Now()
	current := t.totalBytes.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{TotalBytes: current}

	elapsed := now.Sub(t.startTime).Seconds()
	if elapsed > 0 {
		stats.AvgOverall = float64(current) / elapsed
	}

	stats.Avg1s = t.avgOverWindow(now, current, rateWindow1s)
	stats.Avg10s = t.avgOverWindow(now, current, rateWindow10s)
	stats.Avg60s = t.avgOverWindow(now, current, rateWindow60s)

	return stats
}

// avgOverWindow computes bytes/sec over the given window. Caller holds
// at least the read lock.
func (t *RateTracker) avgOverWindow(now time.Time, current int64, window time.Duration) float64 {
	if len(t.samples) == 0 {
		return 0
	}

	targetTime := now.Add(-window)

	// Find the sample closest to, but not after, the window boundary.
	var best *rateSample
	var bestDiff time.Duration = -1
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(targetTime) {
			continue
		}
		diff := targetTime.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}

	if best == nil {
		best = t.oldestSample()
	}
	if best == nil {
		return 0
	}

	transferred := current - best.bytes
	actualElapsed := now.Sub(best.timestamp).Seconds()
	if actualElapsed <= 0 {
		return 0
	}
	return float64(transferred) / actualElapsed
}

// oldestSample returns the oldest retained sample. Caller holds the lock.
func (t *RateTracker) oldestSample() *rateSample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < rateSampleCap {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// SampleCount returns the number of retained samples.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
