package tui

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

// Notifier prints supervisor notices in colour. It implements validation.Notifier.
type Notifier struct {
	out io.Writer
	mu  sync.Mutex

	info    *color.Color
	warning *color.Color
	failure *color.Color
}

// NewNotifier creates a notifier writing to out.
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{
		out:     out,
		info:    color.New(color.FgCyan),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed, color.Bold),
	}
}

// Notify implements validation.Notifier.
func (n *Notifier) Notify(level validation.Level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	c, prefix := n.info, "i"
	switch level {
	case validation.LevelWarning:
		c, prefix = n.warning, "!"
	case validation.LevelError:
		c, prefix = n.failure, "✗"
	}
	_, _ = c.Fprintf(n.out, "%s %s\n", prefix, msg)
}

// LineListener prints one line per session transition, for output that is
// not a terminal.
type LineListener struct {
	Out io.Writer
	mu  sync.Mutex
}

// SessionChanged implements validation.Listener.
func (l *LineListener) SessionChanged(s validation.Snapshot) {
	if s.Phase == validation.PhaseIdle {
		return
	}
	v := validation.Present(s)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.Out, "[%3d%%] %s\n", v.Percent, v.Message)
}
