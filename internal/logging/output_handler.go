package logging

import (
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single relayed line
	// before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of recent output lines
	// kept for the exit summary.
	MaxBufferedLines = 100
)

// OutputHandler relays live output from a supervised command to the
// log and keeps a ring of recent lines for the exit summary and the
// dashboard. It is the logging sink behind the tracer output callback.
type OutputHandler struct {
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int

	// Partial line carried between relays, per stream tag.
	partial map[string]string

	mu sync.Mutex
}

// NewOutputHandler creates a handler that relays supervised-command
// output into logger.
func NewOutputHandler(logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
		partial: make(map[string]string),
	}
}

// Relay accepts one raw chunk of output from a stream. Chunks are
// split into lines; an unterminated tail is held until the next chunk
// from the same stream. Relay never blocks materially and never
// panics, as the tracer callback contract requires.
func (h *OutputHandler) Relay(stream, text string) {
	h.mu.Lock()
	text = h.partial[stream] + text
	lines := strings.Split(text, "\n")
	h.partial[stream] = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	for i, line := range lines {
		lines[i] = h.bufferLine(line)
	}
	h.mu.Unlock()

	for _, line := range lines {
		h.logLine(stream, line)
	}
}

// Flush pushes any held partial lines into the buffer and log,
// called once after the supervised run ends.
func (h *OutputHandler) Flush() {
	h.mu.Lock()
	var flushed []struct{ stream, line string }
	for stream, tail := range h.partial {
		if tail == "" {
			continue
		}
		flushed = append(flushed, struct{ stream, line string }{stream, h.bufferLine(tail)})
		h.partial[stream] = ""
	}
	h.mu.Unlock()

	for _, f := range flushed {
		h.logLine(f.stream, f.line)
	}
}

// bufferLine truncates and stores one line. Caller holds mu.
func (h *OutputHandler) bufferLine(line string) string {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	return line
}

// logLine logs the line at a level based on content.
func (h *OutputHandler) logLine(stream, line string) {
	level := classifyLine(line)

	// In non-verbose mode, only log warnings and errors.
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(nil, level, "command_output",
		"stream", stream,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "error") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "panic") ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "no such file") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, "warning") ||
		strings.Contains(lower, "deprecated") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent buffered lines, oldest
// first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}
