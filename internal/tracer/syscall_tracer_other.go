//go:build !linux

package tracer

import (
	"context"
	"errors"
	"log/slog"
)

// ErrUnsupported is returned where ptrace-based supervision is not
// available; callers fall back to the output strategy.
var ErrUnsupported = errors.New("syscall tracing is only supported on linux")

// SyscallTracer is a stub on platforms without ptrace support.
type SyscallTracer struct{}

// NewSyscallTracer returns a stub tracer whose operations fail with
// ErrUnsupported.
func NewSyscallTracer(pid int, policy TimeoutPolicy, logger *slog.Logger) *SyscallTracer {
	return &SyscallTracer{}
}

// Attach always fails on this platform.
func (t *SyscallTracer) Attach() error {
	return ErrUnsupported
}

// WaitUntilStopOrExit reports the platform limitation as an outcome.
func (t *SyscallTracer) WaitUntilStopOrExit(ctx context.Context) Outcome {
	return Errored(ErrUnsupported, "")
}

// Detach always fails on this platform.
func (t *SyscallTracer) Detach() error {
	return ErrUnsupported
}

// Stalls reports zero on this platform.
func (t *SyscallTracer) Stalls() int {
	return 0
}
