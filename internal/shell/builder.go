// Package shell runs arbitrary shell commands under a supervising tracer
// and reports how they terminated.
package shell

import (
	"context"
	"errors"
	"os"
	"os/exec"
)

// Builder creates executable commands for the executor.
// This interface keeps the executor process-agnostic.
type Builder interface {
	// BuildCommand returns a ready-to-start command.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context, command string) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}

// ShellBuilder builds commands of the form `sh -c <command>`.
type ShellBuilder struct {
	// Shell is the shell binary, e.g. /bin/sh.
	Shell string

	// WorkDir is the working directory for the command. Empty means
	// inherit the executor's.
	WorkDir string

	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
}

// NewShellBuilder creates a ShellBuilder for the given shell binary.
func NewShellBuilder(shell string) *ShellBuilder {
	if shell == "" {
		shell = "/bin/sh"
	}
	return &ShellBuilder{Shell: shell}
}

// Name returns the shell binary name.
func (b *ShellBuilder) Name() string {
	return b.Shell
}

// BuildCommand creates an exec.Cmd running command under the shell.
func (b *ShellBuilder) BuildCommand(ctx context.Context, command string) (*exec.Cmd, error) {
	if command == "" {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, b.Shell, "-c", command)
	cmd.Dir = b.WorkDir
	if len(b.Env) > 0 {
		cmd.Env = append(os.Environ(), b.Env...)
	}

	return cmd, nil
}
