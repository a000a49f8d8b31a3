package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-proc-warden/internal/stats"
	"github.com/randomizedcoder/go-proc-warden/internal/tracer"
)

// maxOutputLines is how many recent output lines the dashboard shows.
const maxOutputLines = 12

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// OutcomeMsg carries the final outcome of the supervised command.
type OutcomeMsg struct {
	Outcome tracer.Outcome
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// OutputSource provides recent supervised-command output lines.
// logging.OutputHandler satisfies this.
type OutputSource interface {
	RecentLines(n int) []string
}

// Config holds TUI configuration.
type Config struct {
	Command     string
	Strategy    string
	MetricsAddr string
	Output      OutputSource

	// Rate is sampled on every tick and rendered as the output rate
	// line. Optional.
	Rate *stats.RateTracker
}

// Model represents the TUI state.
type Model struct {
	command     string
	strategy    string
	metricsAddr string
	output      OutputSource
	rate        *stats.RateTracker

	startTime  time.Time
	lastUpdate time.Time

	outcome  *tracer.Outcome
	finished bool

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		command:     cfg.Command,
		strategy:    cfg.Strategy,
		metricsAddr: cfg.MetricsAddr,
		output:      cfg.Output,
		rate:        cfg.Rate,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.lastUpdate = time.Now()
		if m.rate != nil {
			m.rate.RecordSample()
		}
		if m.finished {
			// Keep the final frame on screen; no more ticks needed.
			return m, nil
		}
		return m, tickCmd()

	case OutcomeMsg:
		outcome := msg.Outcome
		m.outcome = &outcome
		m.finished = true
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since supervision started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Finished reports whether a final outcome has been received.
func (m Model) Finished() bool {
	return m.finished
}

// =============================================================================
// Helpers for external use
// =============================================================================

// SendOutcome delivers the final outcome to the TUI.
func SendOutcome(p *tea.Program, outcome tracer.Outcome) {
	if p != nil {
		p.Send(OutcomeMsg{Outcome: outcome})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// truncate shortens s to width runes with an ellipsis.
func truncate(s string, width int) string {
	if width <= 3 {
		width = 3
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}
