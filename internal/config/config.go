// Package config provides configuration management for go-proc-warden.
package config

import "time"

// Strategy names for process supervision.
const (
	// StrategyAuto picks the syscall tracer where ptrace is available
	// and permitted, falling back to output polling.
	StrategyAuto = "auto"

	// StrategySyscall forces the ptrace-based tracer.
	StrategySyscall = "syscall"

	// StrategyOutput forces the output-polling tracer.
	StrategyOutput = "output"
)

// Config holds all configuration options for the supervisor CLI.
type Config struct {
	// Command execution
	Command  string   `json:"command"`
	Shell    string   `json:"shell"`
	WorkDir  string   `json:"workdir"`
	Env      []string `json:"env"`
	Strategy string   `json:"strategy"` // auto, syscall, output

	// Supervision timeouts
	WaitTimeout    time.Duration `json:"wait_timeout"`    // syscall: per blocking wait
	MaxStalls      int           `json:"max_stalls"`      // syscall: 0 = unlimited
	SilenceTimeout time.Duration `json:"silence_timeout"` // output: max output silence
	PollInterval   time.Duration `json:"poll_interval"`   // output: poll granularity
	RunDeadline    time.Duration `json:"run_deadline"`    // whole-run bound, 0 = none

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = no metrics server
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// Diagnostic modes
	PrintCmd bool `json:"print_cmd"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Shell:    "/bin/sh",
		Strategy: StrategyAuto,

		WaitTimeout:    30 * time.Second,
		MaxStalls:      0,
		SilenceTimeout: 30 * time.Second,
		PollInterval:   100 * time.Millisecond,
		RunDeadline:    0, // Unbounded

		MetricsAddr: "", // Off by default for a one-shot tool
		Verbose:     false,
		LogFormat:   "json",
		LogLevel:    "info",

		TUIEnabled: false,
	}
}
