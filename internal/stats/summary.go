package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Command is the supervised command line.
	Command string

	// Strategy is the tracer strategy that was used.
	Strategy string

	// Uptime is the supervisor's total run duration.
	Uptime time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address, if any.
	MetricsAddr string

	// TotalKills counts processes the supervisor had to kill.
	TotalKills int64

	// TotalStalls counts syscall tracer per-wait timeouts.
	TotalStalls int64

	// OutputBytes is the total captured output across all runs.
	OutputBytes int64

	// AvgOutputRate is the mean output rate in bytes per second.
	AvgOutputRate float64
}

// FormatExitSummary formats recorded stats for display at program exit.
func FormatExitSummary(stats *RunStats, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                          go-proc-warden Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	if cfg.Command != "" {
		fmt.Fprintf(&b, "Command:                %s\n", cfg.Command)
	}
	fmt.Fprintf(&b, "Strategy:               %s\n", cfg.Strategy)
	fmt.Fprintf(&b, "Run Duration:           %s\n\n", FormatDuration(cfg.Uptime))

	if stats == nil || stats.TotalRuns == 0 {
		b.WriteString("(no executions completed)\n\n")
		b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
		return b.String()
	}

	// Outcomes
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                  Outcomes\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Total Executions:     %d\n", stats.TotalRuns)

	// Sort causes for consistent output
	causes := make([]string, 0, len(stats.CauseCounts))
	for cause := range stats.CauseCounts {
		causes = append(causes, cause)
	}
	sort.Strings(causes)

	for _, cause := range causes {
		fmt.Fprintf(&b, "  %-20s  %d\n", cause+":", stats.CauseCounts[cause])
	}
	if cfg.TotalKills > 0 {
		fmt.Fprintf(&b, "  Forced Kills:         %d\n", cfg.TotalKills)
	}
	if cfg.TotalStalls > 0 {
		fmt.Fprintf(&b, "  Tracer Stalls:        %d\n", cfg.TotalStalls)
	}
	if cfg.OutputBytes > 0 {
		fmt.Fprintf(&b, "  Output Captured:      %s (%s/s avg)\n",
			FormatBytes(cfg.OutputBytes), FormatBytes(int64(cfg.AvgOutputRate)))
	}
	b.WriteString("\n")

	// Duration distribution
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                            Duration Distribution\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(stats.Duration.P50))
	fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(stats.Duration.P95))
	fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(stats.Duration.P99))
	fmt.Fprintf(&b, "  Min / Max:            %s / %s\n\n", FormatMs(stats.Duration.Min), FormatMs(stats.Duration.Max))

	// Time to first output
	if stats.RunsWithOutput > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                            Time To First Output\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(stats.FirstOutput.P50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(stats.FirstOutput.P95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(stats.FirstOutput.P99))
		if stats.SilentRunsCount > 0 {
			fmt.Fprintf(&b, "  Silent Runs:          %d (no output at all)\n", stats.SilentRunsCount)
		}
		b.WriteString("\n")
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}
