//go:build linux

package tracer

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// EventKind enumerates every process-lifecycle event the ptrace wait
// primitive can report. Classification is exhaustive over the raw wait
// status; nothing is inferred from strings or error text.
type EventKind int

const (
	// EventExited reports a normal exit with a concrete code.
	EventExited EventKind = iota

	// EventKilledBySignal reports termination by an uncaught signal.
	EventKilledBySignal

	// EventSignalDelivered reports a signal-delivery stop. The tracer
	// must re-inject the signal on resume so default signal semantics
	// are preserved.
	EventSignalDelivered

	// EventNewChild reports a fork, vfork, or clone by the tracee.
	EventNewChild

	// EventExec reports an execve by the tracee.
	EventExec

	// EventSyscallStop reports a syscall entry or exit stop.
	EventSyscallStop

	// EventUnknownStop reports a stop the tracer cannot classify.
	EventUnknownStop
)

// String returns a short name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventExited:
		return "exited"
	case EventKilledBySignal:
		return "killed_by_signal"
	case EventSignalDelivered:
		return "signal_delivered"
	case EventNewChild:
		return "new_child"
	case EventExec:
		return "exec"
	case EventSyscallStop:
		return "syscall_stop"
	case EventUnknownStop:
		return "unknown_stop"
	default:
		return "invalid"
	}
}

// SyscallEvent is the classified form of one wait status. Events are
// produced per iteration, consumed immediately, and never persisted.
type SyscallEvent struct {
	Kind EventKind

	// ExitCode is set for EventExited.
	ExitCode int

	// Signal is set for EventKilledBySignal and EventSignalDelivered.
	Signal syscall.Signal
}

// sigTraceSysGood is the stop signal reported for syscall stops when
// PTRACE_O_TRACESYSGOOD is set: SIGTRAP with bit 7 forced on.
const sigTraceSysGood = syscall.SIGTRAP | 0x80

// classifyWaitStatus converts a raw wait status into a SyscallEvent.
func classifyWaitStatus(ws unix.WaitStatus) SyscallEvent {
	switch {
	case ws.Exited():
		return SyscallEvent{Kind: EventExited, ExitCode: ws.ExitStatus()}

	case ws.Signaled():
		return SyscallEvent{Kind: EventKilledBySignal, Signal: ws.Signal()}

	case ws.Stopped():
		sig := ws.StopSignal()

		if sig == sigTraceSysGood {
			return SyscallEvent{Kind: EventSyscallStop}
		}

		switch ws.TrapCause() {
		case unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK, unix.PTRACE_EVENT_CLONE:
			return SyscallEvent{Kind: EventNewChild}
		case unix.PTRACE_EVENT_EXEC:
			return SyscallEvent{Kind: EventExec}
		}

		if sig == syscall.SIGTRAP {
			// A plain trace trap without an event cause; resume
			// without injecting it.
			return SyscallEvent{Kind: EventSyscallStop}
		}

		return SyscallEvent{Kind: EventSignalDelivered, Signal: sig}
	}

	return SyscallEvent{Kind: EventUnknownStop}
}
