package tui

import (
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-proc-warden/internal/stats"
	"github.com/randomizedcoder/go-proc-warden/internal/tracer"
)

// render draws the full dashboard frame.
func (m Model) render() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("go-proc-warden"))
	b.WriteString("\n")

	b.WriteString(RenderKeyValue("Command", truncate(m.command, m.width-16)))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Strategy", m.strategy))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Elapsed", formatDuration(m.Elapsed())))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("State", m.stateLabel()))
	b.WriteString("\n")

	if m.rate != nil {
		rs := m.rate.GetStats()
		b.WriteString(RenderKeyValue("Output", fmt.Sprintf("%s/s (1s)  %s/s (10s)  %s total",
			stats.FormatBytes(int64(rs.Avg1s)),
			stats.FormatBytes(int64(rs.Avg10s)),
			stats.FormatBytes(rs.TotalBytes))))
		b.WriteString("\n")
	}

	if m.output != nil {
		lines := m.output.RecentLines(maxOutputLines)
		if len(lines) > 0 {
			b.WriteString(sectionHeaderStyle.Render("Recent Output"))
			b.WriteString("\n")
			for _, line := range lines {
				b.WriteString(outputLineStyle.Render(truncate(line, m.width-2)))
				b.WriteString("\n")
			}
		}
	}

	if m.finished && m.outcome != nil {
		b.WriteString(sectionHeaderStyle.Render("Outcome"))
		b.WriteString("\n")
		b.WriteString(m.outcomeLabel(*m.outcome))
		b.WriteString("\n")
	}

	footer := "q: quit"
	if m.metricsAddr != "" {
		footer += "  |  metrics: http://" + m.metricsAddr + "/metrics"
	}
	b.WriteString(footerStyle.Render(footer))
	b.WriteString("\n")

	return b.String()
}

// stateLabel renders the current supervision state.
func (m Model) stateLabel() string {
	if !m.finished {
		return statusInfo.Render("● running")
	}
	if m.outcome == nil {
		return statusWarning.Render("● finished")
	}

	switch m.outcome.Cause {
	case tracer.CauseExited:
		if code, _ := m.outcome.Code(); code == 0 {
			return statusOK.Render("● exited")
		}
		return statusWarning.Render("● exited (nonzero)")
	case tracer.CauseSignaled:
		return statusWarning.Render("● signaled")
	case tracer.CauseTimedOut:
		return statusError.Render("● timed out")
	default:
		return statusError.Render("● error")
	}
}

// outcomeLabel renders the final outcome line.
func (m Model) outcomeLabel(outcome tracer.Outcome) string {
	code, hasCode := outcome.Code()

	reason := outcome.Reason
	if reason == "" {
		reason = outcome.Cause.String()
	}

	text := reason
	if hasCode {
		text = fmt.Sprintf("%s (exit code %d)", reason, code)
	}

	switch outcome.Cause {
	case tracer.CauseExited:
		if code == 0 {
			return statusOK.Render(text)
		}
		return statusWarning.Render(text)
	case tracer.CauseSignaled:
		return statusWarning.Render(text)
	default:
		return statusError.Render(text)
	}
}
