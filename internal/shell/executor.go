package shell

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-proc-warden/internal/config"
	"github.com/randomizedcoder/go-proc-warden/internal/metrics"
	"github.com/randomizedcoder/go-proc-warden/internal/stats"
	"github.com/randomizedcoder/go-proc-warden/internal/tracer"
)

// drainSettleTimeout bounds how long the executor waits for background
// pipe drains to observe EOF after the process is gone.
const drainSettleTimeout = 500 * time.Millisecond

// attachFailureGrace is how long a forced-syscall run waits for the
// child's exit status after a failed attach. A child that exits before
// PTRACE_ATTACH lands makes the attach fail on what is already a
// zombie; its real exit code is still collectable and beats reporting
// a tracer failure.
const attachFailureGrace = 500 * time.Millisecond

// ExecutorConfig wires an Executor.
type ExecutorConfig struct {
	// Builder creates the command to supervise.
	Builder Builder

	// Strategy selects the tracer: config.StrategyOutput,
	// config.StrategySyscall, or config.StrategyAuto.
	Strategy string

	// Policy bounds the tracer's waits.
	Policy tracer.TimeoutPolicy

	// Logger receives supervision events. Optional.
	Logger *slog.Logger

	// OnOutput is invoked for every captured chunk of output, in
	// arrival order. Optional.
	OnOutput tracer.OutputFunc

	// Collector records Prometheus metrics. Optional.
	Collector *metrics.Collector

	// Stats records run summary statistics. Optional.
	Stats *stats.Recorder

	// Rate tracks rolling output byte rates. Optional.
	Rate *stats.RateTracker
}

// Executor runs one command at a time under a supervising tracer and
// returns the normalized outcome. Concurrent Execute calls on the same
// Executor serialize; use separate Executors (or Manager sessions) for
// parallel runs.
type Executor struct {
	builder   Builder
	strategy  string
	policy    tracer.TimeoutPolicy
	logger    *slog.Logger
	onOutput  tracer.OutputFunc
	collector *metrics.Collector
	stats     *stats.Recorder
	rate      *stats.RateTracker

	mu sync.Mutex
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = config.StrategyAuto
	}

	return &Executor{
		builder:   cfg.Builder,
		strategy:  strategy,
		policy:    cfg.Policy,
		logger:    logger,
		onOutput:  cfg.OnOutput,
		collector: cfg.Collector,
		stats:     cfg.Stats,
		rate:      cfg.Rate,
	}
}

// Execute runs command under the configured tracer and blocks until it
// reaches a terminal state. Failures never escape as errors or panics;
// every path is converted into an Outcome.
func (e *Executor) Execute(ctx context.Context, command string) tracer.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.logger.Info("execution_started",
		"command", command,
		"strategy", e.strategy,
	)
	if e.collector != nil {
		e.collector.ExecutionStarted()
	}

	cap := newCapture(e.relayFuncs())
	outcome, strategy := e.run(ctx, command, cap)
	duration := time.Since(start)

	if e.collector != nil {
		e.collector.ExecutionFinished(outcome.Cause.String(), strategy, duration)
	}
	if e.stats != nil {
		firstOutput, sawOutput := cap.firstOutputDelay(start)
		e.stats.Record(outcome.Cause.String(), duration, firstOutput, sawOutput)
	}

	code, hasCode := outcome.Code()
	e.logger.Info("execution_finished",
		"cause", outcome.Cause.String(),
		"exit_code", code,
		"has_exit_code", hasCode,
		"reason", outcome.Reason,
		"strategy", strategy,
		"duration", duration.String(),
	)

	return outcome
}

// run starts the process, traces it, and guarantees cleanup: the child
// never outlives an abnormal outcome and the pipe fds are released.
func (e *Executor) run(ctx context.Context, command string, cap *capture) (tracer.Outcome, string) {
	cmd, err := e.builder.BuildCommand(ctx, command)
	if err != nil {
		return tracer.Errored(fmt.Errorf("build command: %w", err), ""), e.strategy
	}

	proc, err := tracer.StartProcess(cmd)
	if err != nil {
		return tracer.Errored(err, ""), e.strategy
	}
	defer proc.Close()

	outcome, strategy := e.trace(ctx, proc, cap)

	// A timed-out or failed run must not leak the child past the
	// executor. Normal exits are already reaped.
	if _, exited := proc.TryWait(); !exited {
		if err := proc.Kill(); err != nil {
			e.logger.Warn("cleanup_kill_failed", "pid", proc.Pid(), "error", err)
		}
		if e.collector != nil {
			e.collector.RecordKill()
		}
		// Collect the corpse. The tracer has detached by now, so
		// cmd.Wait no longer competes with a ptrace wait4.
		proc.Reap()
	}
	cap.settle(drainSettleTimeout)

	if outcome.Output == "" {
		outcome.Output = cap.text()
	}

	return outcome, strategy
}

// trace picks the tracer per the configured strategy and runs it.
// Auto prefers the syscall tracer and falls back to output polling when
// attach is unavailable (non-linux, yama restrictions).
func (e *Executor) trace(ctx context.Context, proc *tracer.Process, cap *capture) (tracer.Outcome, string) {
	if e.strategy == config.StrategySyscall || e.strategy == config.StrategyAuto {
		st := tracer.NewSyscallTracer(proc.Pid(), e.policy, e.logger)
		err := st.Attach()
		if err == nil {
			// The syscall tracer does not read the pipes; drain them in
			// the background so the child never blocks on a full pipe.
			// The handle must NOT reap while the tracer is attached:
			// cmd.Wait and the tracer's wait4 would race for the same
			// exit notification and the tracer can lose every stop.
			cap.drainBackground(tracer.StreamStdout, proc.Stdout())
			cap.drainBackground(tracer.StreamStderr, proc.Stderr())

			outcome := st.WaitUntilStopOrExit(ctx)
			if e.collector != nil && st.Stalls() > 0 {
				e.collector.RecordStalls(st.Stalls())
			}
			// The tracer's wait4 collected the exit status; feed it back
			// so TryWait agrees and cleanup does not kill a reused pid.
			if outcome.Cause == tracer.CauseExited {
				proc.NoteExit(outcome.ExitCode, 0, false)
			} else if outcome.Cause == tracer.CauseSignaled {
				sig := syscall.Signal(outcome.ExitCode - 128)
				proc.NoteExit(outcome.ExitCode, sig, true)
			}
			return outcome, config.StrategySyscall
		}

		if e.strategy == config.StrategySyscall {
			return e.recoverFailedAttach(proc, cap, err), config.StrategySyscall
		}
		e.logger.Debug("syscall_tracer_unavailable", "pid", proc.Pid(), "error", err)
	}

	proc.Reap()
	ot := tracer.NewOutputTracer(tracer.OutputTracerConfig{
		Handle:   proc,
		Stdout:   proc.Stdout(),
		Stderr:   proc.Stderr(),
		Policy:   e.policy,
		OnOutput: cap.add,
		Logger:   e.logger,
	})
	return ot.WaitUntilStopOrExit(ctx), config.StrategyOutput
}

// recoverFailedAttach handles a forced-syscall attach failure. A child
// that exits before PTRACE_ATTACH lands leaves only a zombie to attach
// to; the attach fails, but the real exit status is still there to
// collect. Only a child that is genuinely untraceable and still alive
// becomes an internal error.
func (e *Executor) recoverFailedAttach(proc *tracer.Process, cap *capture, attachErr error) tracer.Outcome {
	proc.Reap()
	cap.drainBackground(tracer.StreamStdout, proc.Stdout())
	cap.drainBackground(tracer.StreamStderr, proc.Stderr())

	select {
	case <-proc.Done():
		if sig, signaled := proc.TermSignal(); signaled {
			return tracer.Signaled(sig, "")
		}
		code, _ := proc.TryWait()
		return tracer.Exited(code, "")
	case <-time.After(attachFailureGrace):
	}

	return tracer.Errored(fmt.Errorf("ptrace attach: %w", attachErr), "")
}

// relayFuncs assembles the output relay chain: caller callback first,
// then the metrics byte counters.
func (e *Executor) relayFuncs() []tracer.OutputFunc {
	var relays []tracer.OutputFunc
	if e.onOutput != nil {
		relays = append(relays, e.onOutput)
	}
	if e.collector != nil {
		relays = append(relays, func(stream tracer.Stream, text string) {
			e.collector.RecordOutputBytes(string(stream), len(text))
		})
	}
	if e.rate != nil {
		relays = append(relays, func(_ tracer.Stream, text string) {
			e.rate.AddBytes(int64(len(text)))
		})
	}
	return relays
}
