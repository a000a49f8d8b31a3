// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(shell, strategy string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 3),
		Passed: true,
	}

	shellCheck := checkShell(shell)
	result.Checks = append(result.Checks, shellCheck)
	if !shellCheck.Passed {
		result.Passed = false
	}

	// ptrace availability only matters when the syscall strategy can be
	// selected; auto falls back, so failures downgrade to warnings there.
	if strategy == "syscall" || strategy == "auto" {
		ptraceCheck := checkPtrace(strategy == "auto")
		result.Checks = append(result.Checks, ptraceCheck)
		if !ptraceCheck.Passed {
			result.Passed = false
		}
	}

	fdCheck := checkFileDescriptors()
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	return result
}

// checkShell verifies the shell binary exists and runs.
func checkShell(shell string) Check {
	path, err := exec.LookPath(shell)
	if err != nil {
		return Check{
			Name:    "shell",
			Passed:  false,
			Message: fmt.Sprintf("not found: %s", shell),
		}
	}

	if err := exec.Command(path, "-c", "exit 0").Run(); err != nil {
		return Check{
			Name:    "shell",
			Passed:  false,
			Message: fmt.Sprintf("%s cannot run commands: %v", path, err),
		}
	}

	return Check{
		Name:    "shell",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkPtrace reports whether ptrace attach is likely to work.
// soft downgrades a failure to a warning (the auto strategy falls back
// to output polling).
func checkPtrace(soft bool) Check {
	if runtime.GOOS != "linux" {
		return Check{
			Name:    "ptrace",
			Passed:  soft,
			Warning: soft,
			Message: fmt.Sprintf("unavailable on %s (output strategy only)", runtime.GOOS),
		}
	}

	// yama ptrace_scope: 0 permits attaching to any same-uid process,
	// 1 restricts to descendants (still fine, we trace our own children),
	// 2 and above block us.
	data, err := os.ReadFile("/proc/sys/kernel/yama/ptrace_scope")
	if err != nil {
		return Check{
			Name:    "ptrace",
			Passed:  true,
			Warning: true,
			Message: "yama ptrace_scope unreadable (assuming OK)",
		}
	}

	scope := strings.TrimSpace(string(data))
	if scope == "0" || scope == "1" {
		return Check{
			Name:    "ptrace",
			Passed:  true,
			Message: fmt.Sprintf("yama ptrace_scope=%s", scope),
		}
	}

	return Check{
		Name:    "ptrace",
		Passed:  soft,
		Warning: soft,
		Message: fmt.Sprintf("yama ptrace_scope=%s blocks attach", scope),
	}
}

// checkFileDescriptors verifies enough fds for pipes plus overhead.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to read RLIMIT_NOFILE (assuming OK)",
		}
	}

	// Two pipes per execution plus logging, metrics server, and stdio.
	const required = 64
	actual := int(limit.Cur)

	return Check{
		Name:    "file_descriptors",
		Passed:  actual >= required,
		Message: fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "shell":
		return "install a POSIX shell or pass -shell /path/to/sh"
	case "ptrace":
		return "sysctl kernel.yama.ptrace_scope=1 (or use -strategy output)"
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
