package tracer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Handle is the minimal surface of a running process a tracer needs.
type Handle interface {
	// Pid returns the OS process id.
	Pid() int

	// Kill forcibly terminates the process.
	Kill() error

	// TryWait polls process status without blocking. exited reports
	// whether the process has terminated; code is only meaningful when
	// exited is true.
	TryWait() (code int, exited bool)
}

// SignalReporter is implemented by handles that can report the signal
// that terminated the process, so outcomes can name it.
type SignalReporter interface {
	// TermSignal returns the terminating signal, if the process was
	// killed by one.
	TermSignal() (syscall.Signal, bool)
}

// Process wraps a started exec.Cmd with parent-owned pipe read ends for
// stdout and stderr. The write ends are handed to the child and closed
// in the parent after Start, so EOF is observed when the child exits.
//
// Exactly one tracer may own a Process at a time. Exactly one party may
// collect the child's exit status: either the Reap goroutine (cmd.Wait)
// or a ptrace tracer whose wait4 consumed it, reported back via
// NoteExit. Running cmd.Wait concurrently with a ptrace wait4 on the
// same pid makes the kernel's child-exit wakeup land on whichever
// waiter gets there first, and the tracer can be starved of every stop
// event. StartProcess therefore never reaps on its own.
type Process struct {
	cmd    *exec.Cmd
	stdout *os.File // read end
	stderr *os.File // read end

	reapOnce sync.Once
	doneOnce sync.Once
	done     chan struct{}

	// Populated exactly once, by reap or NoteExit, before done is closed.
	exitCode int
	termSig  syscall.Signal
	signaled bool
	waitErr  error
}

// StartProcess starts cmd with piped stdout/stderr. cmd must not have
// Stdout, Stderr, or a process group already configured.
//
// The child is not reaped automatically: call Reap when no tracer owns
// the pid, or NoteExit when a tracer's wait4 collected the status.
func StartProcess(cmd *exec.Cmd) (*Process, error) {
	if cmd.Process != nil {
		return nil, errors.New("command already started")
	}
	if cmd.Stdout != nil || cmd.Stderr != nil {
		return nil, errors.New("command stdout/stderr already set")
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd.Stdout = outW
	cmd.Stderr = errW

	// Own process group so Kill can take helpers spawned by the shell
	// down with the command itself.
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}

	// Parent must drop the write ends after Start or EOF never arrives.
	outW.Close()
	errW.Close()

	p := &Process{
		cmd:    cmd,
		stdout: outR,
		stderr: errR,
		done:   make(chan struct{}),
	}

	return p, nil
}

// Reap starts waiting for the child in the background. Idempotent.
// Must not be called while a ptrace tracer is attached to the pid: the
// concurrent waits race for the same exit notification.
func (p *Process) Reap() {
	p.reapOnce.Do(func() {
		go p.reap()
	})
}

// reap waits for the child exactly once and records its status, unless
// NoteExit beat it to the record (cmd.Wait then fails with ECHILD on
// the already-collected pid and its result is meaningless).
func (p *Process) reap() {
	err := p.cmd.Wait()
	p.doneOnce.Do(func() {
		p.exitCode, p.termSig, p.signaled = classifyWaitError(err)
		p.waitErr = err
		close(p.done)
	})
}

// NoteExit records an exit status collected outside cmd.Wait, by a
// tracer whose wait4 reaped the child. First writer wins; a later Reap
// cannot overwrite it.
func (p *Process) NoteExit(code int, sig syscall.Signal, signaled bool) {
	p.doneOnce.Do(func() {
		p.exitCode = code
		p.termSig = sig
		p.signaled = signaled
		close(p.done)
	})
}

// Done is closed once an exit status has been recorded by Reap or
// NoteExit.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Kill sends SIGKILL to the child's process group, falling back to the
// process itself if the group lookup fails.
func (p *Process) Kill() error {
	pid := p.cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil {
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}
	return p.cmd.Process.Kill()
}

// TryWait polls exit status without blocking.
func (p *Process) TryWait() (int, bool) {
	select {
	case <-p.done:
		return p.exitCode, true
	default:
		return 0, false
	}
}

// Wait blocks until an exit status has been recorded (via Reap or
// NoteExit) and returns the exit code.
func (p *Process) Wait() int {
	<-p.done
	return p.exitCode
}

// TermSignal reports the terminating signal, if any.
func (p *Process) TermSignal() (syscall.Signal, bool) {
	select {
	case <-p.done:
		return p.termSig, p.signaled
	default:
		return 0, false
	}
}

// Stdout returns the read end of the child's standard output.
func (p *Process) Stdout() *os.File {
	return p.stdout
}

// Stderr returns the read end of the child's standard error.
func (p *Process) Stderr() *os.File {
	return p.stderr
}

// Close releases the parent-held pipe read ends.
func (p *Process) Close() error {
	err1 := p.stdout.Close()
	err2 := p.stderr.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// classifyWaitError extracts the exit code and terminating signal from
// a Wait() error. Signal exits map to 128 + signal number.
func classifyWaitError(err error) (code int, sig syscall.Signal, signaled bool) {
	if err == nil {
		return 0, 0, false
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return SignalExitCode(status.Signal()), status.Signal(), true
			}
			return status.ExitStatus(), 0, false
		}
	}

	// Unknown error, assume exit code 1.
	return 1, 0, false
}
