package stats

import (
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test clock
// =============================================================================

type mockClock struct {
	mu   sync.Mutex
	time time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{time: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

// =============================================================================
// Accumulation
// =============================================================================

func TestRateTracker_AddBytes(t *testing.T) {
	tests := []struct {
		name     string
		adds     []int64
		expected int64
	}{
		{
			name:     "single add",
			adds:     []int64{1024},
			expected: 1024,
		},
		{
			name:     "multiple adds",
			adds:     []int64{100, 200, 300},
			expected: 600,
		},
		{
			name:     "zero value ignored",
			adds:     []int64{100, 0, 200},
			expected: 300,
		},
		{
			name:     "negative value ignored",
			adds:     []int64{100, -50, 200},
			expected: 300,
		},
		{
			name:     "empty",
			adds:     []int64{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newMockClock(time.Now())
			tracker := NewRateTrackerWithClock(clock)

			for _, n := range tt.adds {
				tracker.AddBytes(n)
			}

			got := tracker.GetStats()
			if got.TotalBytes != tt.expected {
				t.Errorf("TotalBytes = %d, want %d", got.TotalBytes, tt.expected)
			}
		})
	}
}

// =============================================================================
// Rolling averages
// =============================================================================

func TestRateTracker_RollingAverage(t *testing.T) {
	t.Run("constant rate", func(t *testing.T) {
		baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := newMockClock(baseTime)
		tracker := NewRateTrackerWithClock(clock)

		// 100 bytes/second for 10 seconds
		for i := 0; i < 10; i++ {
			tracker.AddBytes(100)
			clock.Advance(1 * time.Second)
			tracker.RecordSample()
		}

		got := tracker.GetStats()
		if got.Avg1s < 90 || got.Avg1s > 110 {
			t.Errorf("Avg1s = %f, want ~100", got.Avg1s)
		}
		if got.AvgOverall < 90 || got.AvgOverall > 110 {
			t.Errorf("AvgOverall = %f, want ~100", got.AvgOverall)
		}
	})

	t.Run("increasing rate", func(t *testing.T) {
		baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := newMockClock(baseTime)
		tracker := NewRateTrackerWithClock(clock)

		for i := 1; i <= 10; i++ {
			tracker.AddBytes(int64(i * 100))
			clock.Advance(1 * time.Second)
			tracker.RecordSample()
		}

		got := tracker.GetStats()
		if got.Avg1s < 900 || got.Avg1s > 1100 {
			t.Errorf("Avg1s = %f, want ~1000", got.Avg1s)
		}
		if got.TotalBytes != 5500 {
			t.Errorf("TotalBytes = %d, want 5500", got.TotalBytes)
		}
	})

	t.Run("burst then silence", func(t *testing.T) {
		baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := newMockClock(baseTime)
		tracker := NewRateTrackerWithClock(clock)

		tracker.AddBytes(10000)
		tracker.RecordSample()

		for i := 0; i < 10; i++ {
			clock.Advance(1 * time.Second)
			tracker.RecordSample()
		}

		got := tracker.GetStats()
		if got.Avg1s > 1 {
			t.Errorf("Avg1s = %f, want ~0 after silence", got.Avg1s)
		}
		if got.TotalBytes != 10000 {
			t.Errorf("TotalBytes = %d, want 10000", got.TotalBytes)
		}
	})
}

func TestRateTracker_WindowEdgeCases(t *testing.T) {
	t.Run("fresh tracker has zero rates", func(t *testing.T) {
		clock := newMockClock(time.Now())
		tracker := NewRateTrackerWithClock(clock)

		got := tracker.GetStats()
		if got.TotalBytes != 0 {
			t.Errorf("TotalBytes = %d, want 0", got.TotalBytes)
		}
		if got.Avg1s != 0 {
			t.Errorf("Avg1s = %f, want 0", got.Avg1s)
		}
	})

	t.Run("single sample", func(t *testing.T) {
		baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := newMockClock(baseTime)
		tracker := NewRateTrackerWithClock(clock)

		tracker.AddBytes(1000)
		clock.Advance(1 * time.Second)
		tracker.RecordSample()

		got := tracker.GetStats()
		if got.TotalBytes != 1000 {
			t.Errorf("TotalBytes = %d, want 1000", got.TotalBytes)
		}
		if got.Avg1s != 1000.0 {
			t.Errorf("Avg1s = %f, want 1000.0", got.Avg1s)
		}
	})

	t.Run("all windows consistent at steady rate", func(t *testing.T) {
		baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := newMockClock(baseTime)
		tracker := NewRateTrackerWithClock(clock)

		for i := 0; i < 60; i++ {
			tracker.AddBytes(1000)
			clock.Advance(1 * time.Second)
			tracker.RecordSample()
		}

		got := tracker.GetStats()
		windows := []struct {
			name string
			avg  float64
		}{
			{"Avg1s", got.Avg1s},
			{"Avg10s", got.Avg10s},
			{"Avg60s", got.Avg60s},
			{"AvgOverall", got.AvgOverall},
		}
		for _, w := range windows {
			if w.avg < 900 || w.avg > 1100 {
				t.Errorf("%s = %f, want ~1000", w.name, w.avg)
			}
		}
	})
}

// =============================================================================
// Ring buffer
// =============================================================================

func TestRateTracker_RingBufferOverflow(t *testing.T) {
	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newMockClock(baseTime)
	tracker := NewRateTrackerWithClock(clock)

	for i := 0; i < rateSampleCap+50; i++ {
		tracker.AddBytes(100)
		clock.Advance(1 * time.Second)
		tracker.RecordSample()
	}

	if tracker.SampleCount() != rateSampleCap {
		t.Errorf("SampleCount = %d, want %d (buffer should not grow)", tracker.SampleCount(), rateSampleCap)
	}

	got := tracker.GetStats()
	if got.TotalBytes != int64(rateSampleCap+50)*100 {
		t.Errorf("TotalBytes = %d, want %d", got.TotalBytes, (rateSampleCap+50)*100)
	}
	if got.Avg60s < 90 || got.Avg60s > 110 {
		t.Errorf("Avg60s = %f, want ~100", got.Avg60s)
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestRateTracker_ConcurrentAddBytes(t *testing.T) {
	clock := newMockClock(time.Now())
	tracker := NewRateTrackerWithClock(clock)

	const goroutines = 50
	const addsPerGoroutine = 1000
	const bytesPerAdd = int64(100)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < addsPerGoroutine; j++ {
				tracker.AddBytes(bytesPerAdd)
			}
		}()
	}
	wg.Wait()

	got := tracker.GetStats()
	expected := int64(goroutines * addsPerGoroutine * bytesPerAdd)
	if got.TotalBytes != expected {
		t.Errorf("TotalBytes = %d, want %d (lost bytes in concurrent access)", got.TotalBytes, expected)
	}
}

func TestRateTracker_ConcurrentAddAndSample(t *testing.T) {
	clock := newMockClock(time.Now())
	tracker := NewRateTrackerWithClock(clock)

	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					tracker.AddBytes(100)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				clock.Advance(5 * time.Millisecond)
				tracker.RecordSample()
				_ = tracker.GetStats()
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)
	close(done)
	wg.Wait()

	if tracker.GetStats().TotalBytes == 0 {
		t.Error("TotalBytes should be > 0 after concurrent operations")
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkRateTracker_AddBytes(b *testing.B) {
	tracker := NewRateTracker()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tracker.AddBytes(1024)
	}
}

func BenchmarkRateTracker_GetStats(b *testing.B) {
	tracker := NewRateTracker()
	for i := 0; i < 100; i++ {
		tracker.AddBytes(1000)
		tracker.RecordSample()
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = tracker.GetStats()
	}
}
