package cli

import (
	"strings"
	"sync"
)

// LogWriter implements io.Writer and keeps the most recent lines for
// display in the TUI. Install it as the slog handler's output while the
// terminal is in full-screen mode.
type LogWriter struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
	ch    chan string
}

// NewLogWriter creates a log writer keeping up to maxLines lines.
func NewLogWriter(maxLines int) *LogWriter {
	return &LogWriter{
		lines: make([]string, max(1, maxLines)),
		ch:    make(chan string, 100),
	}
}

// Write splits p into lines and stores each one, overwriting the oldest
// when full. It never blocks and never fails.
func (w *LogWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	w.mu.Lock()
	for _, line := range strings.Split(text, "\n") {
		w.lines[w.next] = line
		w.next = (w.next + 1) % len(w.lines)
		if w.next == 0 {
			w.full = true
		}
		select {
		case w.ch <- line:
		default:
		}
	}
	w.mu.Unlock()
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (w *LogWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.full {
		return append([]string(nil), w.lines[:w.next]...)
	}
	out := make([]string, 0, len(w.lines))
	out = append(out, w.lines[w.next:]...)
	return append(out, w.lines[:w.next]...)
}

// Channel delivers each new line. Lines are dropped when nobody reads.
func (w *LogWriter) Channel() <-chan string {
	return w.ch
}
