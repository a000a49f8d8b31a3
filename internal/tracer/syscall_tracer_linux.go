//go:build linux

package tracer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// traceOptions requests distinct stop reasons for syscalls, process
// creation, and exec, so events classify without guesswork.
const traceOptions = unix.PTRACE_O_TRACESYSGOOD |
	unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACECLONE |
	unix.PTRACE_O_TRACEEXEC

// detachDrainTimeout bounds how long Detach waits for an in-flight
// wait to come back after stopping the tracee.
const detachDrainTimeout = 2 * time.Second

var (
	errNotAttached     = errors.New("tracer is not attached")
	errAlreadyAttached = errors.New("tracer is already attached")
	errAlreadyDetached = errors.New("tracer is already detached")
)

// SyscallTracer drives a ptrace session on one process: it attaches,
// single-steps through syscall stops, classifies every lifecycle
// event, and bounds each blocking wait with a per-tracer timer.
//
// The kernel requires every ptrace request and every wait on the
// tracee to come from the thread that attached, so the tracer runs all
// of them on one dedicated OS-locked goroutine and the coordinating
// loop races the in-flight wait against its timer. The timer is owned
// by this instance; multiple tracers supervise different processes
// concurrently without cross-talk.
//
// At most one tracer may be attached to a given pid at a time.
type SyscallTracer struct {
	pid    int
	policy TimeoutPolicy
	logger *slog.Logger

	reqs    chan ptraceRequest
	pending chan waitResult // in-flight wait, nil when none

	attached bool
	detached bool
	reaped   bool // tracee already waited to completion
	stalls   int  // consecutive stalled waits in the current run
}

// ptraceRequest is a closure executed on the ptrace thread.
type ptraceRequest struct {
	fn   func() error
	done chan error
}

// waitResult carries one wait4 result off the ptrace thread.
type waitResult struct {
	status unix.WaitStatus
	err    error
}

// NewSyscallTracer creates a tracer for the given pid. Zero policy
// fields fall back to DefaultTimeoutPolicy.
func NewSyscallTracer(pid int, policy TimeoutPolicy, logger *slog.Logger) *SyscallTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyscallTracer{
		pid:    pid,
		policy: policy.withDefaults(),
		logger: logger,
	}
}

// Attach begins tracing the target process. It fails if the pid does
// not exist or tracing permission is denied. Attach must precede
// WaitUntilStopOrExit.
func (t *SyscallTracer) Attach() error {
	if t.attached {
		return errAlreadyAttached
	}

	t.reqs = make(chan ptraceRequest)
	go t.serve()

	err := t.do(func() error {
		if err := unix.PtraceAttach(t.pid); err != nil {
			return fmt.Errorf("ptrace attach pid %d: %w", t.pid, err)
		}
		if _, err := waitTracee(t.pid); err != nil {
			unix.PtraceDetach(t.pid)
			return fmt.Errorf("wait for attach stop on pid %d: %w", t.pid, err)
		}
		if err := unix.PtraceSetOptions(t.pid, traceOptions); err != nil {
			unix.PtraceDetach(t.pid)
			return fmt.Errorf("ptrace set options pid %d: %w", t.pid, err)
		}
		return nil
	})
	if err != nil {
		close(t.reqs)
		return err
	}

	t.attached = true
	t.logger.Debug("tracer_attached", "pid", t.pid)
	return nil
}

// WaitUntilStopOrExit resumes the tracee into syscall stepping and
// blocks until it reaches a terminal state. The per-wait timer bounds
// each individual wait, not the whole call: a stalled wait is caught
// after one timer interval and the loop keeps observing the same wait,
// so a process that is merely slow still reports its true exit.
//
// Detach always runs before return, on every exit path.
func (t *SyscallTracer) WaitUntilStopOrExit(ctx context.Context) Outcome {
	if !t.attached || t.detached {
		return Errored(errNotAttached, "")
	}

	defer func() {
		if err := t.Detach(); err != nil {
			t.logger.Warn("detach_failed", "pid", t.pid, "error", err)
		}
	}()

	if err := t.resume(0); err != nil {
		return Errored(err, "")
	}

	// Signal-derived reason; superseded by any concrete exit code.
	var reason string

	timer := time.NewTimer(t.policy.WaitTimeout)
	defer timer.Stop()

	for {
		if t.pending == nil {
			t.submitWait()
		}

		// One timer armed per wait, disarmed on every path out of the
		// select below.
		resetTimer(timer, t.policy.WaitTimeout)

		select {
		case res := <-t.pending:
			t.pending = nil
			stopTimer(timer)

			if res.err != nil {
				t.reaped = true // nothing further to wait for
				return Errored(fmt.Errorf("wait for pid %d: %w", t.pid, res.err), "")
			}

			event := classifyWaitStatus(res.status)
			t.stalls = 0

			switch event.Kind {
			case EventExited:
				t.reaped = true
				t.logger.Debug("tracee_exited", "pid", t.pid, "exit_code", event.ExitCode)
				return Exited(event.ExitCode, "")

			case EventKilledBySignal:
				t.reaped = true
				t.logger.Debug("tracee_killed", "pid", t.pid, "signal", SignalReason(event.Signal))
				return Signaled(event.Signal, "")

			case EventSignalDelivered:
				reason = SignalReason(event.Signal)
				t.logger.Debug("signal_delivered", "pid", t.pid, "signal", reason)
				// Re-inject so default signal semantics hold.
				if err := t.resume(event.Signal); err != nil {
					return Errored(err, "")
				}

			case EventNewChild:
				t.releaseNewChild()
				if err := t.resume(0); err != nil {
					return Errored(err, "")
				}

			case EventExec, EventSyscallStop, EventUnknownStop:
				if err := t.resume(0); err != nil {
					return Errored(err, "")
				}
			}

		case <-timer.C:
			t.stalls++
			t.logger.Debug("wait_stalled",
				"pid", t.pid,
				"stalls", t.stalls,
				"wait_timeout", t.policy.WaitTimeout.String(),
			)
			if t.policy.MaxStalls > 0 && t.stalls >= t.policy.MaxStalls {
				return TimedOut(reason, "")
			}
			// The wait is still in flight on the ptrace thread; keep
			// observing it on the next iteration.

		case <-ctx.Done():
			stopTimer(timer)
			return TimedOut(ctx.Err().Error(), "")
		}
	}
}

// Stalls returns how many consecutive waits stalled in the current run.
func (t *SyscallTracer) Stalls() int {
	return t.stalls
}

// Detach releases the ptrace handle. It runs exactly once per
// supervised run; a second call reports an error rather than crashing.
// Detach is safe to call when Attach never succeeded.
func (t *SyscallTracer) Detach() error {
	if !t.attached {
		return errNotAttached
	}
	if t.detached {
		return errAlreadyDetached
	}
	t.detached = true

	// A wait may still be in flight. The tracee must be stopped before
	// PTRACE_DETACH, so stop it and drain the wait first.
	if t.pending != nil {
		unix.Kill(t.pid, unix.SIGSTOP)
		select {
		case res := <-t.pending:
			t.pending = nil
			if res.err == nil {
				event := classifyWaitStatus(res.status)
				if event.Kind == EventExited || event.Kind == EventKilledBySignal {
					t.reaped = true
				}
			} else {
				t.reaped = true
			}
		case <-time.After(detachDrainTimeout):
			// The ptrace thread is wedged in wait4; it exits on its
			// own once the kernel releases it.
			close(t.reqs)
			return fmt.Errorf("detach pid %d: wait did not drain", t.pid)
		}
	}

	var err error
	if !t.reaped {
		err = t.do(func() error { return unix.PtraceDetach(t.pid) })
		if errors.Is(err, unix.ESRCH) {
			// Tracee already gone; nothing was leaked.
			err = nil
		}
	}

	close(t.reqs)
	t.logger.Debug("tracer_detached", "pid", t.pid)
	if err != nil {
		return fmt.Errorf("ptrace detach pid %d: %w", t.pid, err)
	}
	return nil
}

// serve executes ptrace requests on one locked OS thread for the
// lifetime of the session.
func (t *SyscallTracer) serve() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for req := range t.reqs {
		req.done <- req.fn()
	}
}

// do runs fn on the ptrace thread and returns its error.
func (t *SyscallTracer) do(fn func() error) error {
	req := ptraceRequest{fn: fn, done: make(chan error, 1)}
	t.reqs <- req
	return <-req.done
}

// resume restarts the tracee until its next syscall stop, delivering
// sig to it (0 delivers nothing).
func (t *SyscallTracer) resume(sig syscall.Signal) error {
	err := t.do(func() error { return unix.PtraceSyscall(t.pid, int(sig)) })
	if err != nil {
		return fmt.Errorf("ptrace syscall pid %d: %w", t.pid, err)
	}
	return nil
}

// releaseNewChild detaches the freshly spawned child the fork/clone
// trace options auto-attached. The session keeps tracing only the
// monitored pid; children run untraced.
func (t *SyscallTracer) releaseNewChild() {
	t.do(func() error {
		child, err := unix.PtraceGetEventMsg(t.pid)
		if err != nil {
			return nil
		}
		// The child is held in its initial stop until we let it go.
		var ws unix.WaitStatus
		unix.Wait4(int(child), &ws, unix.WALL, nil)
		unix.PtraceDetach(int(child))
		t.logger.Debug("new_child_released", "pid", t.pid, "child_pid", int(child))
		return nil
	})
}

// submitWait starts one blocking wait on the ptrace thread. Only one
// wait may be in flight at a time.
func (t *SyscallTracer) submitWait() {
	res := make(chan waitResult, 1)
	req := ptraceRequest{
		fn: func() error {
			ws, err := waitTracee(t.pid)
			res <- waitResult{status: ws, err: err}
			return nil
		},
		done: make(chan error, 1),
	}
	t.reqs <- req
	t.pending = res
}

// waitTracee blocks in wait4 for the tracee, retrying on EINTR.
func waitTracee(pid int) (unix.WaitStatus, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err != unix.EINTR {
			return ws, err
		}
	}
}

// resetTimer re-arms a stopped or expired timer for d.
func resetTimer(timer *time.Timer, d time.Duration) {
	stopTimer(timer)
	timer.Reset(d)
}

// stopTimer disarms the timer and drains a pending fire so the next
// Reset starts clean.
func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
