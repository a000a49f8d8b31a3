package tracer

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Cause identifies the single terminal cause of a supervised run.
// An Outcome carries exactly one cause; the strategies never report
// two causes for the same run.
type Cause int

const (
	// CauseExited means the process exited on its own with a concrete code.
	CauseExited Cause = iota

	// CauseSignaled means the process was terminated by a signal. The
	// exit code is synthetic (128 + signal number).
	CauseSignaled

	// CauseTimedOut means the tracer gave up waiting. No exit code is
	// available.
	CauseTimedOut

	// CauseInternalError means an unclassified failure occurred while
	// supervising. No exit code is available.
	CauseInternalError
)

// String returns a human-readable name for the cause.
func (c Cause) String() string {
	switch c {
	case CauseExited:
		return "exited"
	case CauseSignaled:
		return "signaled"
	case CauseTimedOut:
		return "timed_out"
	case CauseInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Outcome is the immutable, consolidated result of one supervised run.
// Both strategies produce the same shape.
type Outcome struct {
	// Cause is the terminal classification of the run.
	Cause Cause

	// ExitCode is the process exit code. Only meaningful when
	// HasExitCode is true; absent means unknown or interrupted.
	ExitCode int

	// HasExitCode reports whether ExitCode carries a real value.
	HasExitCode bool

	// Reason is a short human-readable cause: a signal name, an error
	// message, or "timed out". Empty for a clean exit.
	Reason string

	// Output is the full captured byte stream decoded as text.
	// Populated by the output strategy; empty unless the caller
	// collected output alongside the syscall strategy.
	Output string
}

// Code returns the exit code and whether one is present.
func (o Outcome) Code() (int, bool) {
	return o.ExitCode, o.HasExitCode
}

// String summarizes the outcome for logs.
func (o Outcome) String() string {
	if o.HasExitCode {
		return fmt.Sprintf("%s (code %d) %s", o.Cause, o.ExitCode, o.Reason)
	}
	return fmt.Sprintf("%s %s", o.Cause, o.Reason)
}

// SignalExitCode maps a terminating signal to the conventional
// synthetic exit code, 128 + signal number.
func SignalExitCode(sig syscall.Signal) int {
	return 128 + int(sig)
}

// SignalReason names a signal the way shells report it (SIGKILL, SIGTERM).
func SignalReason(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(sig))
}

// Exited builds the outcome for a process that exited with a concrete
// code. A concrete code always takes precedence over any signal-derived
// synthetic code collected earlier in the run.
func Exited(code int, output string) Outcome {
	return Outcome{
		Cause:       CauseExited,
		ExitCode:    code,
		HasExitCode: true,
		Output:      output,
	}
}

// Signaled builds the outcome for a process terminated by a signal.
func Signaled(sig syscall.Signal, output string) Outcome {
	return Outcome{
		Cause:       CauseSignaled,
		ExitCode:    SignalExitCode(sig),
		HasExitCode: true,
		Reason:      SignalReason(sig),
		Output:      output,
	}
}

// TimedOut builds the outcome for a run the tracer gave up on. detail
// carries whatever trace reason was collected before the timeout and
// may be empty.
func TimedOut(detail, output string) Outcome {
	reason := "timed out"
	if detail != "" {
		reason = "timed out: " + detail
	}
	return Outcome{
		Cause:  CauseTimedOut,
		Reason: reason,
		Output: output,
	}
}

// Errored builds the outcome for an unclassified supervision failure.
func Errored(err error, output string) Outcome {
	reason := "internal error"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{
		Cause:  CauseInternalError,
		Reason: reason,
		Output: output,
	}
}
