package main

import (
	"context"
	"io"
	"strings"
	"syscall"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-proc-warden/internal/config"
	"github.com/randomizedcoder/go-proc-warden/internal/logging"
	"github.com/randomizedcoder/go-proc-warden/internal/shell"
	"github.com/randomizedcoder/go-proc-warden/internal/stats"
	"github.com/randomizedcoder/go-proc-warden/internal/tracer"
)

// =============================================================================
// Exit code mapping
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		outcome tracer.Outcome
		want    int
	}{
		{
			name:    "clean exit",
			outcome: tracer.Exited(0, ""),
			want:    0,
		},
		{
			name:    "nonzero exit",
			outcome: tracer.Exited(7, ""),
			want:    7,
		},
		{
			name:    "signal exit keeps synthetic code",
			outcome: tracer.Signaled(syscall.SIGKILL, ""),
			want:    137,
		},
		{
			name:    "timeout without code",
			outcome: tracer.TimedOut("", ""),
			want:    exitTimedOut,
		},
		{
			name:    "internal error without code",
			outcome: tracer.Errored(nil, ""),
			want:    exitInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.outcome); got != tt.want {
				t.Errorf("exitCode(%+v) = %d, want %d", tt.outcome, got, tt.want)
			}
		})
	}
}

// =============================================================================
// TUI run lifecycle
// =============================================================================

// Quitting the dashboard while the command is still running must abort
// the run; with the dashboard gone there is nothing left to show
// progress or accept a cancel.
func TestRunWithTUI_QuitAbortsRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Command = "sleep 30"
	cfg.Strategy = config.StrategyOutput
	cfg.TUIEnabled = true

	logger := logging.NewLoggerWithWriter(io.Discard, "text", "error")
	output := logging.NewOutputHandler(logger, false)
	rate := stats.NewRateTracker()

	executor := shell.NewExecutor(shell.ExecutorConfig{
		Builder:  shell.NewShellBuilder("/bin/sh"),
		Strategy: cfg.Strategy,
		Policy: tracer.TimeoutPolicy{
			WaitTimeout:    time.Minute,
			SilenceTimeout: time.Minute,
			PollInterval:   20 * time.Millisecond,
		},
		Logger: logger,
	})

	result := make(chan tracer.Outcome, 1)
	go func() {
		result <- runWithTUI(context.Background(), cfg, executor, output, rate,
			tea.WithInput(strings.NewReader("q")),
			tea.WithOutput(io.Discard),
			tea.WithoutRenderer(),
		)
	}()

	select {
	case outcome := <-result:
		if _, ok := outcome.Code(); ok {
			t.Errorf("outcome = %+v, want aborted run without an exit code", outcome)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("runWithTUI did not return after the dashboard quit")
	}
}
