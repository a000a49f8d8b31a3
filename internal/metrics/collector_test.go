package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewCollectorWithRegistry(CollectorConfig{
		Version:  "test",
		Strategy: "auto",
		Shell:    "/bin/sh",
	}, registry)
}

// =============================================================================
// Recording
// =============================================================================

func TestExecutionLifecycle(t *testing.T) {
	c := newTestCollector(t)

	// Metric vars are package-level; compare deltas so test order does
	// not matter.
	before, _ := c.CounterValue("proc_warden_executions_total")

	c.ExecutionStarted()
	c.ExecutionFinished("exited", "syscall", 250*time.Millisecond)
	c.ExecutionStarted()
	c.ExecutionFinished("timed_out", "output", 2*time.Second)

	after, ok := c.CounterValue("proc_warden_executions_total")
	if !ok {
		t.Fatal("executions counter not gathered")
	}
	if after-before != 2 {
		t.Errorf("executions_total delta = %v, want 2", after-before)
	}
}

func TestRecordOutputBytes(t *testing.T) {
	c := newTestCollector(t)

	c.RecordOutputBytes("stdout", 100)
	c.RecordOutputBytes("stderr", 50)
	c.RecordOutputBytes("stdout", 25)

	total, ok := c.CounterValue("proc_warden_output_bytes_total")
	if !ok {
		t.Fatal("output bytes counter not gathered")
	}
	if total < 175 {
		t.Errorf("output_bytes_total = %v, want >= 175", total)
	}
}

func TestRecordStalls_IgnoresNonPositive(t *testing.T) {
	c := newTestCollector(t)

	c.RecordStalls(0)
	c.RecordStalls(-1)
	c.RecordStalls(3)

	s := c.GenerateSummary()
	if s.TotalStalls != 3 {
		t.Errorf("TotalStalls = %d, want 3", s.TotalStalls)
	}
}

// =============================================================================
// Summary
// =============================================================================

func TestGenerateSummary(t *testing.T) {
	c := newTestCollector(t)

	c.ExecutionStarted()
	c.ExecutionFinished("exited", "syscall", time.Second)
	c.ExecutionStarted()
	c.ExecutionFinished("exited", "syscall", time.Second)
	c.ExecutionStarted()
	c.ExecutionFinished("signaled", "output", time.Second)
	c.RecordKill()

	s := c.GenerateSummary()

	if s.CauseCounts["exited"] != 2 {
		t.Errorf("exited count = %d, want 2", s.CauseCounts["exited"])
	}
	if s.CauseCounts["signaled"] != 1 {
		t.Errorf("signaled count = %d, want 1", s.CauseCounts["signaled"])
	}
	if s.TotalKills != 1 {
		t.Errorf("TotalKills = %d, want 1", s.TotalKills)
	}
	if s.Uptime <= 0 {
		t.Error("Uptime should be positive")
	}
}

func TestSummaryIsCopy(t *testing.T) {
	c := newTestCollector(t)
	c.ExecutionStarted()
	c.ExecutionFinished("exited", "syscall", time.Second)

	s := c.GenerateSummary()
	s.CauseCounts["exited"] = 99

	if c.GenerateSummary().CauseCounts["exited"] != 1 {
		t.Error("mutating a summary must not affect the collector")
	}
}

// =============================================================================
// Text dump
// =============================================================================

func TestDumpText(t *testing.T) {
	c := newTestCollector(t)

	c.ExecutionStarted()
	c.ExecutionFinished("exited", "syscall", 100*time.Millisecond)

	var sb strings.Builder
	if err := c.DumpText(&sb); err != nil {
		t.Fatalf("DumpText returned error: %v", err)
	}

	out := sb.String()
	if !strings.Contains(out, "proc_warden_executions_total") {
		t.Errorf("dump missing executions counter:\n%s", out)
	}
	if !strings.Contains(out, "# HELP") {
		t.Error("dump should include HELP comments")
	}
}

func TestCounterValue_Missing(t *testing.T) {
	c := newTestCollector(t)

	if _, ok := c.CounterValue("proc_warden_no_such_metric"); ok {
		t.Error("CounterValue should report missing metrics")
	}
}
