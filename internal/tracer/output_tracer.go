package tracer

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// readChunkSize is the per-read buffer for draining a pipe.
const readChunkSize = 4096

// OutputTracer detects process completion or hang purely from
// externally observable behavior: stdout/stderr activity and process
// liveness. It is the strategy of choice where attaching a debugger is
// unavailable or unnecessary.
//
// The tracer owns the process handle and the pipe read ends for the
// duration of one WaitUntilStopOrExit call; no other reader may touch
// them while the wait is in flight.
type OutputTracer struct {
	handle   Handle
	stdout   *os.File
	stderr   *os.File
	policy   TimeoutPolicy
	onOutput OutputFunc
	logger   *slog.Logger

	output       strings.Builder
	lastActivity time.Time
}

// OutputTracerConfig configures an OutputTracer.
type OutputTracerConfig struct {
	// Handle is the running process being observed.
	Handle Handle

	// Stdout and Stderr are the pipe read ends for the process's
	// standard streams.
	Stdout *os.File
	Stderr *os.File

	// Policy supplies SilenceTimeout and PollInterval. Zero fields fall
	// back to DefaultTimeoutPolicy.
	Policy TimeoutPolicy

	// OnOutput is invoked once per non-empty read per stream.
	// Optional; nil disables live relay.
	OnOutput OutputFunc

	// Logger receives supervision events. Optional.
	Logger *slog.Logger
}

// NewOutputTracer creates an output tracer for a started process.
func NewOutputTracer(cfg OutputTracerConfig) *OutputTracer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onOutput := cfg.OnOutput
	if onOutput == nil {
		onOutput = func(Stream, string) {}
	}

	return &OutputTracer{
		handle:   cfg.Handle,
		stdout:   cfg.Stdout,
		stderr:   cfg.Stderr,
		policy:   cfg.Policy.withDefaults(),
		onOutput: onOutput,
		logger:   logger,
	}
}

// WaitUntilStopOrExit blocks until the process exits or produces no
// output for longer than the silence timeout. The process is killed if
// and only if the timeout path is taken.
//
// Per iteration, stdout is drained before stderr; capture is complete
// and ordered within each stream, but cross-stream interleaving follows
// poll order rather than true arrival order.
func (t *OutputTracer) WaitUntilStopOrExit(ctx context.Context) Outcome {
	if err := t.nonblock(); err != nil {
		return Errored(err, t.output.String())
	}

	t.lastActivity = time.Now()

	for {
		t.drain(StreamStdout, t.stdout)
		t.drain(StreamStderr, t.stderr)

		// Read before checking exit: output that arrived in the same
		// iteration the process died must not be lost.
		if code, exited := t.handle.TryWait(); exited {
			t.drain(StreamStdout, t.stdout)
			t.drain(StreamStderr, t.stderr)
			return t.exitOutcome(code)
		}

		if silence := time.Since(t.lastActivity); silence > t.policy.SilenceTimeout {
			t.logger.Warn("process_killed_on_silence",
				"pid", t.handle.Pid(),
				"silence", silence.String(),
				"timeout", t.policy.SilenceTimeout.String(),
			)
			if err := t.handle.Kill(); err != nil {
				t.logger.Warn("kill_failed", "pid", t.handle.Pid(), "error", err)
			}
			return TimedOut("", t.output.String())
		}

		select {
		case <-ctx.Done():
			// Cancellation is not the timeout path; the process is
			// left running for the caller to dispose of.
			return Errored(ctx.Err(), t.output.String())
		case <-time.After(t.policy.PollInterval):
		}
	}
}

// exitOutcome normalizes an observed exit, naming the terminating
// signal when the handle can report one.
func (t *OutputTracer) exitOutcome(code int) Outcome {
	if sr, ok := t.handle.(SignalReporter); ok {
		if sig, signaled := sr.TermSignal(); signaled {
			return Signaled(sig, t.output.String())
		}
	}
	return Exited(code, t.output.String())
}

// nonblock puts both stream fds into non-blocking mode. This is a
// precondition of the poll loop.
func (t *OutputTracer) nonblock() error {
	if err := unix.SetNonblock(int(t.stdout.Fd()), true); err != nil {
		return err
	}
	return unix.SetNonblock(int(t.stderr.Fd()), true)
}

// drain reads everything currently buffered on the stream. Any bytes
// read reset the last-activity clock and are relayed to the callback.
func (t *OutputTracer) drain(stream Stream, f *os.File) {
	fd := int(f.Fd())
	buf := make([]byte, readChunkSize)

	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			text := string(buf[:n])
			t.output.WriteString(text)
			t.onOutput(stream, text)
			t.lastActivity = time.Now()
			continue
		}
		if err == unix.EINTR {
			continue
		}
		// n == 0 is EOF; EAGAIN means nothing buffered; anything else
		// (e.g. a closed fd after exit) also ends this drain.
		return
	}
}
