package config

import (
	"flag"
	"fmt"
	"strings"
)

// envList implements flag.Value for repeatable -env KEY=VALUE flags.
type envList []string

func (e *envList) String() string {
	return strings.Join(*e, ",")
}

func (e *envList) Set(value string) error {
	if !strings.Contains(value, "=") {
		return fmt.Errorf("expected KEY=VALUE, got %q", value)
	}
	*e = append(*e, value)
	return nil
}

// ParseFlags parses command-line flags and returns a Config.
// The command to supervise comes from -cmd or the remaining arguments.
func ParseFlags(args []string) (*Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("go-proc-warden", flag.ContinueOnError)

	// Command execution
	cmdFlag := fs.String("cmd", "", "Command to run under supervision (alternative to trailing args)")
	fs.StringVar(&cfg.Shell, "shell", cfg.Shell, "Shell used to interpret the command")
	fs.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "Working directory for the command")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "Supervision strategy: auto, syscall, output")

	var env envList
	fs.Var(&env, "env", "Environment variable KEY=VALUE for the command (repeatable)")

	// Supervision timeouts
	fs.DurationVar(&cfg.WaitTimeout, "wait-timeout", cfg.WaitTimeout, "Syscall tracer: timeout for each blocking wait on the child")
	fs.IntVar(&cfg.MaxStalls, "max-stalls", cfg.MaxStalls, "Syscall tracer: consecutive stalled waits before giving up (0 = unlimited)")
	fs.DurationVar(&cfg.SilenceTimeout, "silence-timeout", cfg.SilenceTimeout, "Output tracer: kill the command after this much output silence")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Output tracer: polling granularity")
	fs.DurationVar(&cfg.RunDeadline, "run-deadline", cfg.RunDeadline, "Overall run deadline for the command (0 = none)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (empty = disabled)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json, text")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show live terminal dashboard")

	// Diagnostic modes
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the resolved command and exit")

	fs.Usage = func() {
		printUsage(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Env = env

	if *cmdFlag != "" {
		cfg.Command = *cmdFlag
	} else if fs.NArg() > 0 {
		cfg.Command = strings.Join(fs.Args(), " ")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func printUsage(fs *flag.FlagSet) {
	out := fs.Output()

	fmt.Fprintf(out, "go-proc-warden: run a command under a supervising tracer\n\n")
	fmt.Fprintf(out, "Usage:\n")
	fmt.Fprintf(out, "  go-proc-warden [flags] -- command ...\n")
	fmt.Fprintf(out, "  go-proc-warden [flags] -cmd 'command'\n\n")

	categories := []struct {
		name  string
		flags []string
	}{
		{"Command", []string{"cmd", "shell", "workdir", "env", "strategy"}},
		{"Timeouts", []string{"wait-timeout", "max-stalls", "silence-timeout", "poll-interval", "run-deadline"}},
		{"Observability", []string{"metrics-addr", "v", "log-format", "log-level", "tui"}},
		{"Diagnostics", []string{"print-cmd"}},
	}

	for _, cat := range categories {
		fmt.Fprintf(out, "%s:\n", cat.name)
		for _, name := range cat.flags {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			fmt.Fprintf(out, "  -%-16s %s", f.Name, f.Usage)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Fprintf(out, " (default %s)", f.DefValue)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Examples:\n")
	fmt.Fprintf(out, "  go-proc-warden -- make test\n")
	fmt.Fprintf(out, "  go-proc-warden -strategy output -silence-timeout 10s -- ./build.sh\n")
	fmt.Fprintf(out, "  go-proc-warden -strategy syscall -wait-timeout 5s -max-stalls 6 -cmd 'sleep 60'\n")
}
