package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

// forwarder buffers session transitions until a program is attached, then
// sends them into it. Transitions after close are dropped.
type forwarder struct {
	mu     sync.Mutex
	p      *tea.Program
	buf    []validation.Snapshot
	closed bool
}

func (f *forwarder) SessionChanged(s validation.Snapshot) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.p == nil {
		f.buf = append(f.buf, s)
		f.mu.Unlock()
		return
	}
	p := f.p
	f.mu.Unlock()
	p.Send(SessionMsg(s))
}

// attach replays buffered transitions into model and, unless the session has
// already returned to idle, creates the program that receives the rest.
func (f *forwarder) attach(model ProgressModel, newProgram func(tea.Model) *tea.Program) (*tea.Program, ProgressModel) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.buf {
		model, _ = model.session(s)
	}
	f.buf = nil
	if model.quitting {
		f.closed = true
		return nil, model
	}
	f.p = newProgram(model)
	return f.p, model
}

func (f *forwarder) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.p = nil
	f.buf = nil
}

// StartFunc begins a session, usually through a validation.Supervisor.
type StartFunc func(ctx context.Context) (validation.Snapshot, error)

// RunProgress calls start and then shows the session until it returns to idle.
// It reports the last non-idle snapshot. start runs before the display takes
// over the terminal, so it may prompt. The machine must acknowledge terminal
// sessions on its own, for example through a validation.Dweller.
func RunProgress(ctx context.Context, m *validation.Machine, start StartFunc, in io.Reader, out io.Writer) (validation.Snapshot, error) {
	fw := &forwarder{}
	m.AddListener(fw)
	defer fw.close()

	if _, err := start(ctx); err != nil {
		return validation.Snapshot{}, err
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	p, model := fw.attach(NewProgress(m.Abort), func(model tea.Model) *tea.Program {
		return tea.NewProgram(model, opts...)
	})
	if p == nil {
		return model.Last(), nil
	}

	final, err := p.Run()
	if err != nil {
		snap := m.Abort()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return snap, ctx.Err()
		}
		return snap, fmt.Errorf("progress display failed: %w", err)
	}
	if pm, ok := final.(ProgressModel); ok {
		return pm.Last(), nil
	}
	return model.Last(), nil
}
