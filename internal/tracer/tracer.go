// Package tracer determines how a supervised child process terminates.
//
// Two strategies implement the same contract:
//
//   - SyscallTracer attaches a ptrace session to the target pid,
//     single-steps through syscall stops, and classifies every
//     lifecycle event. Each blocking wait is bounded by a per-wait
//     timer so one stuck syscall cannot stall the supervisor.
//   - OutputTracer treats the process as an opaque pipe producer:
//     it polls stdout/stderr in non-blocking mode and kills the
//     process once output silence exceeds a threshold.
//
// Both converge on the same Outcome shape so the calling layer is
// strategy-agnostic.
package tracer

import (
	"context"
	"time"
)

// Tracer is the shared contract of both monitoring strategies.
type Tracer interface {
	// WaitUntilStopOrExit blocks until the supervised process reaches a
	// terminal state. Failures never escape as errors or panics; every
	// path is converted into an Outcome.
	WaitUntilStopOrExit(ctx context.Context) Outcome
}

// Stream tags which pipe a chunk of output was read from.
type Stream string

const (
	// StreamStdout tags output read from the child's standard output.
	StreamStdout Stream = "stdout"

	// StreamStderr tags output read from the child's standard error.
	StreamStderr Stream = "stderr"
)

// OutputFunc relays captured output to a logging sink.
// Implementations must not block materially and must not panic.
type OutputFunc func(stream Stream, text string)

// TimeoutPolicy bounds how long a tracer waits for process activity.
// A policy belongs to one tracer instance for one supervised run; it is
// never shared across runs.
type TimeoutPolicy struct {
	// WaitTimeout bounds each individual blocking wait in the syscall
	// strategy. Expiry counts one stall; the loop keeps waiting on the
	// same in-flight wait afterwards.
	WaitTimeout time.Duration

	// MaxStalls is the number of consecutive stalled waits after which
	// the syscall strategy gives up with a timeout outcome.
	// 0 means unlimited; callers bound the run with ctx instead.
	MaxStalls int

	// SilenceTimeout is the maximum time the output strategy tolerates
	// without observing a single byte before killing the process.
	SilenceTimeout time.Duration

	// PollInterval is the sleep between output polls. It is also the
	// responsiveness granularity of the output strategy's timeout.
	PollInterval time.Duration
}

// DefaultTimeoutPolicy returns the policy the tool layer uses when the
// caller does not override it.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		WaitTimeout:    30 * time.Second,
		MaxStalls:      0,
		SilenceTimeout: 30 * time.Second,
		PollInterval:   100 * time.Millisecond,
	}
}

// withDefaults fills zero fields with the default policy values.
func (p TimeoutPolicy) withDefaults() TimeoutPolicy {
	def := DefaultTimeoutPolicy()
	if p.WaitTimeout <= 0 {
		p.WaitTimeout = def.WaitTimeout
	}
	if p.SilenceTimeout <= 0 {
		p.SilenceTimeout = def.SilenceTimeout
	}
	if p.PollInterval <= 0 {
		p.PollInterval = def.PollInterval
	}
	return p
}
