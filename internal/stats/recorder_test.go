package stats

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Recorder
// =============================================================================

func TestRecorder_Empty(t *testing.T) {
	r := NewRecorder()
	s := r.Snapshot()

	if s.TotalRuns != 0 {
		t.Errorf("TotalRuns = %d, want 0", s.TotalRuns)
	}
	if len(s.CauseCounts) != 0 {
		t.Errorf("CauseCounts = %v, want empty", s.CauseCounts)
	}
}

func TestRecorder_CauseCounts(t *testing.T) {
	r := NewRecorder()

	r.Record("exited", 100*time.Millisecond, 10*time.Millisecond, true)
	r.Record("exited", 200*time.Millisecond, 20*time.Millisecond, true)
	r.Record("timed_out", 30*time.Second, 0, false)

	s := r.Snapshot()
	if s.TotalRuns != 3 {
		t.Errorf("TotalRuns = %d, want 3", s.TotalRuns)
	}
	if s.CauseCounts["exited"] != 2 {
		t.Errorf("exited = %d, want 2", s.CauseCounts["exited"])
	}
	if s.CauseCounts["timed_out"] != 1 {
		t.Errorf("timed_out = %d, want 1", s.CauseCounts["timed_out"])
	}
}

func TestRecorder_DurationPercentiles(t *testing.T) {
	r := NewRecorder()

	for i := 1; i <= 100; i++ {
		r.Record("exited", time.Duration(i)*time.Millisecond, 0, false)
	}

	s := r.Snapshot()

	// P50 should land near 50ms, P99 near 99ms
	if s.Duration.P50 < 40*time.Millisecond || s.Duration.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms", s.Duration.P50)
	}
	if s.Duration.P99 < 90*time.Millisecond {
		t.Errorf("P99 = %v, want >= 90ms", s.Duration.P99)
	}
	if s.Duration.Min != 1*time.Millisecond {
		t.Errorf("Min = %v, want 1ms", s.Duration.Min)
	}
	if s.Duration.Max != 100*time.Millisecond {
		t.Errorf("Max = %v, want 100ms", s.Duration.Max)
	}
}

func TestRecorder_SilentRuns(t *testing.T) {
	r := NewRecorder()

	r.Record("exited", time.Second, 100*time.Millisecond, true)
	r.Record("exited", time.Second, 0, false)
	r.Record("exited", time.Second, 0, false)

	s := r.Snapshot()
	if s.RunsWithOutput != 1 {
		t.Errorf("RunsWithOutput = %d, want 1", s.RunsWithOutput)
	}
	if s.SilentRunsCount != 2 {
		t.Errorf("SilentRunsCount = %d, want 2", s.SilentRunsCount)
	}
}

func TestRecorder_SnapshotIsCopy(t *testing.T) {
	r := NewRecorder()
	r.Record("exited", time.Second, 0, false)

	s := r.Snapshot()
	s.CauseCounts["exited"] = 99

	if r.Snapshot().CauseCounts["exited"] != 1 {
		t.Error("mutating a snapshot must not affect the recorder")
	}
}

// =============================================================================
// Exit summary
// =============================================================================

func TestFormatExitSummary_NoRuns(t *testing.T) {
	out := FormatExitSummary(nil, SummaryConfig{
		Strategy: "auto",
		Uptime:   5 * time.Second,
	})

	if !strings.Contains(out, "no executions completed") {
		t.Errorf("summary should note the absence of runs:\n%s", out)
	}
}

func TestFormatExitSummary_WithRuns(t *testing.T) {
	r := NewRecorder()
	r.Record("exited", 100*time.Millisecond, 10*time.Millisecond, true)
	r.Record("timed_out", 30*time.Second, 0, false)

	out := FormatExitSummary(r.Snapshot(), SummaryConfig{
		Command:     "make test",
		Strategy:    "syscall",
		Uptime:      time.Minute,
		MetricsAddr: "localhost:9090",
		TotalKills:  1,
	})

	for _, want := range []string{
		"make test",
		"syscall",
		"Total Executions:     2",
		"exited:",
		"timed_out:",
		"Forced Kills:         1",
		"Duration Distribution",
		"Time To First Output",
		"http://localhost:9090/metrics",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

// =============================================================================
// Formatting helpers
// =============================================================================

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		d        time.Duration
		expected string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{3661 * time.Second, "01:01:01"},
	}

	for _, tc := range testCases {
		if got := FormatDuration(tc.d); got != tc.expected {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.expected)
		}
	}
}

func TestFormatMs(t *testing.T) {
	if got := FormatMs(250 * time.Millisecond); got != "250 ms" {
		t.Errorf("FormatMs = %q, want %q", got, "250 ms")
	}
	if got := FormatMs(500 * time.Microsecond); got != "500 µs" {
		t.Errorf("FormatMs sub-ms = %q, want %q", got, "500 µs")
	}
}

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		n        int64
		expected string
	}{
		{500, "500 B"},
		{1_500, "1.50 KB"},
		{2_500_000, "2.50 MB"},
		{3_000_000_000, "3.00 GB"},
	}

	for _, tc := range testCases {
		if got := FormatBytes(tc.n); got != tc.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.n, got, tc.expected)
		}
	}
}
