package tracer

import (
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"
)

// =============================================================================
// Process lifecycle
// =============================================================================

func TestStartProcessCapturesExit(t *testing.T) {
	p := startShell(t, "exit 5")

	code := p.Wait()
	if code != 5 {
		t.Errorf("Wait() = %d, want 5", code)
	}
	if got, exited := p.TryWait(); !exited || got != 5 {
		t.Errorf("TryWait() = (%d, %v), want (5, true)", got, exited)
	}
	if _, signaled := p.TermSignal(); signaled {
		t.Error("TermSignal() reported a signal for a normal exit")
	}
}

func TestTryWaitBeforeExit(t *testing.T) {
	p := startShell(t, "sleep 30")

	if _, exited := p.TryWait(); exited {
		t.Error("TryWait() reported exit while the process is running")
	}
}

func TestProcessKillGroup(t *testing.T) {
	p := startShell(t, "sleep 30")

	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() failed: %v", err)
	}

	code := p.Wait()
	if code != SignalExitCode(syscall.SIGKILL) {
		t.Errorf("exit code after kill = %d, want %d", code, SignalExitCode(syscall.SIGKILL))
	}
	sig, signaled := p.TermSignal()
	if !signaled || sig != syscall.SIGKILL {
		t.Errorf("TermSignal() = (%v, %v), want (SIGKILL, true)", sig, signaled)
	}
}

func TestProcessPipesDeliverOutput(t *testing.T) {
	p := startShell(t, "printf out; printf err >&2")
	p.Wait()

	// Blocking reads are fine here: the child is gone, both write ends
	// are closed, so EOF terminates each read.
	outBytes := make([]byte, 64)
	n, _ := p.Stdout().Read(outBytes)
	if !strings.Contains(string(outBytes[:n]), "out") {
		t.Errorf("stdout = %q, want %q", string(outBytes[:n]), "out")
	}

	errBytes := make([]byte, 64)
	n, _ = p.Stderr().Read(errBytes)
	if !strings.Contains(string(errBytes[:n]), "err") {
		t.Errorf("stderr = %q, want %q", string(errBytes[:n]), "err")
	}
}

func TestStartProcessRejectsStartedCommand(t *testing.T) {
	cmd := exec.Command("sleep", "0.1")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer cmd.Wait()

	if _, err := StartProcess(cmd); err == nil {
		t.Error("StartProcess accepted an already-started command")
	}
}

func TestStartProcessBadBinary(t *testing.T) {
	cmd := exec.Command("/nonexistent/definitely-not-a-binary")
	if _, err := StartProcess(cmd); err == nil {
		t.Error("StartProcess succeeded for a missing binary")
	}
}

// StartProcess must not wait on the child by itself: a ptrace tracer
// attached to the pid needs the exit notification for its own wait4,
// and a concurrent cmd.Wait can consume it and starve the tracer.
func TestStartProcessDoesNotReapOnItsOwn(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 5")
	p, err := StartProcess(cmd)
	if err != nil {
		t.Fatalf("StartProcess failed: %v", err)
	}
	defer func() {
		p.Reap()
		p.Wait()
		p.Close()
	}()

	// Give the child ample time to exit; without Reap the status must
	// stay uncollected.
	time.Sleep(200 * time.Millisecond)
	if _, exited := p.TryWait(); exited {
		t.Error("TryWait() observed an exit before Reap was called")
	}

	p.Reap()
	if code := p.Wait(); code != 5 {
		t.Errorf("Wait() after Reap = %d, want 5", code)
	}
}

func TestNoteExitRecordsTracedStatus(t *testing.T) {
	tests := []struct {
		name         string
		code         int
		sig          syscall.Signal
		signaled     bool
		wantCode     int
		wantSignaled bool
	}{
		{
			name:     "normal exit",
			code:     7,
			wantCode: 7,
		},
		{
			name:         "signal exit",
			code:         SignalExitCode(syscall.SIGTERM),
			sig:          syscall.SIGTERM,
			signaled:     true,
			wantCode:     SignalExitCode(syscall.SIGTERM),
			wantSignaled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The shell ignores the recorded status; NoteExit is the
			// tracer telling the handle what its wait4 collected.
			cmd := exec.Command("/bin/sh", "-c", "exit 0")
			p, err := StartProcess(cmd)
			if err != nil {
				t.Fatalf("StartProcess failed: %v", err)
			}
			defer p.Close()

			p.NoteExit(tt.code, tt.sig, tt.signaled)

			code, exited := p.TryWait()
			if !exited || code != tt.wantCode {
				t.Errorf("TryWait() = (%d, %v), want (%d, true)", code, exited, tt.wantCode)
			}
			sig, signaled := p.TermSignal()
			if signaled != tt.wantSignaled {
				t.Errorf("TermSignal() signaled = %v, want %v", signaled, tt.wantSignaled)
			}
			if tt.wantSignaled && sig != tt.sig {
				t.Errorf("TermSignal() = %v, want %v", sig, tt.sig)
			}

			// A later Reap must not overwrite the traced status. The
			// child really did exit 0, so cmd.Wait would record 0 if it
			// won the race.
			p.Reap()
			select {
			case <-p.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("Done never closed")
			}
			if code, _ := p.TryWait(); code != tt.wantCode {
				t.Errorf("TryWait() after Reap = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

// Wait and TryWait agree once the reaper has run.
func TestTryWaitConvergesAfterExit(t *testing.T) {
	p := startShell(t, "exit 3")

	deadline := time.After(5 * time.Second)
	for {
		if code, exited := p.TryWait(); exited {
			if code != 3 {
				t.Errorf("TryWait() code = %d, want 3", code)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("TryWait never observed the exit")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
