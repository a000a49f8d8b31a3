package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// A command is required (unless --print-cmd, which can show shell wiring)
	if cfg.Command == "" && !cfg.PrintCmd {
		errs = append(errs, ValidationError{
			Field:   "cmd",
			Message: "a command to supervise is required",
		})
	}

	if cfg.Shell == "" {
		errs = append(errs, ValidationError{
			Field:   "shell",
			Message: "must not be empty",
		})
	}

	// Strategy must be valid
	validStrategies := map[string]bool{
		StrategyAuto: true, StrategySyscall: true, StrategyOutput: true,
	}
	if !validStrategies[cfg.Strategy] {
		errs = append(errs, ValidationError{
			Field:   "strategy",
			Message: fmt.Sprintf("must be one of: auto, syscall, output (got %q)", cfg.Strategy),
		})
	}

	// Timeouts must be positive where they gate progress
	if cfg.WaitTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "wait_timeout",
			Message: "must be positive",
		})
	}
	if cfg.MaxStalls < 0 {
		errs = append(errs, ValidationError{
			Field:   "max_stalls",
			Message: "must be >= 0 (0 = unlimited)",
		})
	}
	if cfg.SilenceTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "silence_timeout",
			Message: "must be positive",
		})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: "must be positive",
		})
	}
	if cfg.PollInterval > cfg.SilenceTimeout && cfg.SilenceTimeout > 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: fmt.Sprintf("must not exceed silence_timeout (%v)", cfg.SilenceTimeout),
		})
	}
	if cfg.RunDeadline < 0 {
		errs = append(errs, ValidationError{
			Field:   "run_deadline",
			Message: "must be >= 0 (0 = none)",
		})
	}

	// Env entries must be KEY=VALUE
	for _, kv := range cfg.Env {
		if !strings.Contains(kv, "=") {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("expected KEY=VALUE, got %q", kv),
			})
		}
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Log level must be valid
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// TUI and JSON logs both want the terminal
	if cfg.TUIEnabled && cfg.Verbose {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "cannot combine -tui with -v (verbose logs corrupt the dashboard)",
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
