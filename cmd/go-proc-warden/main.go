// Package main provides the go-proc-warden CLI entry point.
//
// go-proc-warden runs a shell command under a supervising tracer and
// reports reliably, within bounded time, how it terminated: exit code,
// terminating signal, or hang.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-proc-warden/internal/config"
	"github.com/randomizedcoder/go-proc-warden/internal/logging"
	"github.com/randomizedcoder/go-proc-warden/internal/metrics"
	"github.com/randomizedcoder/go-proc-warden/internal/preflight"
	"github.com/randomizedcoder/go-proc-warden/internal/shell"
	"github.com/randomizedcoder/go-proc-warden/internal/stats"
	"github.com/randomizedcoder/go-proc-warden/internal/tracer"
	"github.com/randomizedcoder/go-proc-warden/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-proc-warden
var version = "dev"

// Exit codes for outcomes without a concrete process exit code, per
// timeout(1) conventions.
const (
	exitTimedOut      = 124
	exitInternalError = 125
)

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-proc-warden %s\n", version)
			return 0
		}
	}

	// Parse and validate command-line flags
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, cfg.LogFormat, cfg.LogLevel)
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		printShellCommand(cfg)
		return 0
	}

	// Preflight checks
	checks := preflight.RunAll(cfg.Shell, cfg.Strategy)
	if !checks.Passed {
		preflight.PrintResults(checks)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"command", cfg.Command,
		"strategy", cfg.Strategy,
		"wait_timeout", cfg.WaitTimeout.String(),
		"silence_timeout", cfg.SilenceTimeout.String(),
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	// Metrics
	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector(metrics.CollectorConfig{
			Version:  version,
			Strategy: cfg.Strategy,
			Shell:    cfg.Shell,
		})
		server := metrics.NewServer(cfg.MetricsAddr, logger)
		if err := server.Start(); err != nil {
			logger.Error("metrics_server_failed", "error", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	recorder := stats.NewRecorder()
	rate := stats.NewRateTracker()
	outputHandler := logging.NewOutputHandler(logger, cfg.Verbose)

	builder := shell.NewShellBuilder(cfg.Shell)
	builder.WorkDir = cfg.WorkDir
	builder.Env = cfg.Env

	executor := shell.NewExecutor(shell.ExecutorConfig{
		Builder:  builder,
		Strategy: cfg.Strategy,
		Policy: tracer.TimeoutPolicy{
			WaitTimeout:    cfg.WaitTimeout,
			MaxStalls:      cfg.MaxStalls,
			SilenceTimeout: cfg.SilenceTimeout,
			PollInterval:   cfg.PollInterval,
		},
		Logger: logger,
		OnOutput: func(stream tracer.Stream, text string) {
			outputHandler.Relay(string(stream), text)
		},
		Collector: collector,
		Stats:     recorder,
		Rate:      rate,
	})

	// Ctrl+C cancels the run; the executor kills the child on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunDeadline)
		defer cancel()
	}

	var outcome tracer.Outcome
	if cfg.TUIEnabled {
		outcome = runWithTUI(ctx, cfg, executor, outputHandler, rate, tea.WithAltScreen())
	} else {
		outcome = executor.Execute(ctx, cfg.Command)
	}

	outputHandler.Flush()

	// Exit summary
	rateStats := rate.GetStats()
	summaryCfg := stats.SummaryConfig{
		Command:       cfg.Command,
		Strategy:      cfg.Strategy,
		MetricsAddr:   cfg.MetricsAddr,
		OutputBytes:   rateStats.TotalBytes,
		AvgOutputRate: rateStats.AvgOverall,
	}
	if collector != nil {
		s := collector.GenerateSummary()
		summaryCfg.Uptime = s.Uptime
		summaryCfg.TotalKills = s.TotalKills
		summaryCfg.TotalStalls = s.TotalStalls
	}
	fmt.Print(stats.FormatExitSummary(recorder.Snapshot(), summaryCfg))

	if cfg.Verbose && collector != nil {
		if err := collector.DumpText(os.Stderr); err != nil {
			logger.Warn("metrics_dump_failed", "error", err)
		}
	}

	return exitCode(outcome)
}

// runWithTUI runs the executor behind a live dashboard. The program
// stays on screen until the user quits or the outcome arrives and the
// final frame has rendered. Quitting before the outcome arrives aborts
// the run: the dashboard is gone, nothing else can show progress or
// cancel the command.
func runWithTUI(ctx context.Context, cfg *config.Config, executor *shell.Executor, output *logging.OutputHandler, rate *stats.RateTracker, opts ...tea.ProgramOption) tracer.Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.New(tui.Config{
		Command:     cfg.Command,
		Strategy:    cfg.Strategy,
		MetricsAddr: cfg.MetricsAddr,
		Output:      output,
		Rate:        rate,
	})
	p := tea.NewProgram(model, opts...)

	done := make(chan tracer.Outcome, 1)
	go func() {
		outcome := executor.Execute(ctx, cfg.Command)
		done <- outcome
		tui.SendOutcome(p, outcome)
	}()

	if _, err := p.Run(); err != nil {
		// Dashboard failure must not lose the run; fall through and wait.
		slog.Warn("tui_failed", "error", err)
	}

	cancel()
	return <-done
}

// exitCode maps an outcome to the process exit code of the supervisor
// itself.
func exitCode(outcome tracer.Outcome) int {
	if code, ok := outcome.Code(); ok {
		return code
	}
	switch outcome.Cause {
	case tracer.CauseTimedOut:
		return exitTimedOut
	default:
		return exitInternalError
	}
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          go-proc-warden                            ║")
	fmt.Println("║          Process Supervision with Bounded-Time Outcomes            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Command:     %s\n", cfg.Command)
	fmt.Printf("  Strategy:    %s\n", cfg.Strategy)
	fmt.Printf("  Timeouts:    wait %s, silence %s\n", cfg.WaitTimeout, cfg.SilenceTimeout)
	if cfg.RunDeadline > 0 {
		fmt.Printf("  Deadline:    %s\n", cfg.RunDeadline)
	}
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printShellCommand prints the shell invocation that would be run.
func printShellCommand(cfg *config.Config) {
	fmt.Println("# Command that would be run under supervision:")
	fmt.Println()
	fmt.Printf("%s -c %q\n", cfg.Shell, cfg.Command)
	for _, kv := range cfg.Env {
		fmt.Printf("#   env: %s\n", kv)
	}
	if cfg.WorkDir != "" {
		fmt.Printf("#   dir: %s\n", cfg.WorkDir)
	}
}
