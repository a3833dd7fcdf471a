// Package tui renders validation sessions in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

const maxBarWidth = 60

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))
	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// SessionMsg carries a session transition into the program.
type SessionMsg validation.Snapshot

// ProgressModel shows one validation session until it returns to idle.
type ProgressModel struct {
	bar     progress.Model
	spinner spinner.Model
	abort   func() validation.Snapshot

	view     validation.View
	last     validation.Snapshot
	seen     bool
	quitting bool
}

// NewProgress creates the model. abort is called when the operator cancels.
func NewProgress(abort func() validation.Snapshot) ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	return ProgressModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: sp,
		abort:   abort,
		view:    validation.Present(validation.Snapshot{Phase: validation.PhaseIdle}),
	}
}

// Last returns the most recent non-idle snapshot shown.
func (m ProgressModel) Last() validation.Snapshot { return m.last }

func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SessionMsg:
		return m.session(validation.Snapshot(msg))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.abort != nil {
				// Abort delivers the resulting transitions back through
				// Program.Send, so it must not run on the event loop.
				abort := m.abort
				return m, func() tea.Msg {
					abort()
					return nil
				}
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-4, 10), maxBarWidth)
		return m, nil

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		if b, ok := bar.(progress.Model); ok {
			m.bar = b
		}
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) session(s validation.Snapshot) (ProgressModel, tea.Cmd) {
	m.view = validation.Present(s)
	if s.Phase == validation.PhaseIdle {
		if m.seen {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}
	m.seen = true
	m.last = s
	return m, m.bar.SetPercent(float64(m.view.Percent) / 100)
}

func (m ProgressModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("批量验证密钥"))
	b.WriteString("\n\n")

	switch {
	case !m.seen:
		b.WriteString(m.spinner.View() + " " + messageStyle.Render(validation.MsgPreparing))
	case m.view.Indeterminate:
		b.WriteString(m.spinner.View() + " " + messageStyle.Render(m.view.Message))
	default:
		b.WriteString(m.bar.View())
		b.WriteString("\n")
		b.WriteString(styleFor(m.view).Render(m.view.Message))
	}

	b.WriteString("\n\n")
	if m.view.Phase.Terminal() {
		b.WriteString(hintStyle.Render("q: 关闭"))
	} else {
		b.WriteString(hintStyle.Render("q: 取消验证"))
	}
	b.WriteString("\n")
	return b.String()
}

func styleFor(v validation.View) lipgloss.Style {
	switch v.Phase {
	case validation.PhaseDone:
		return successStyle
	case validation.PhaseErrored, validation.PhaseAborted:
		return failureStyle
	}
	return messageStyle
}

// Summary renders the one-line outcome printed after the program exits.
func Summary(s validation.Snapshot) string {
	v := validation.Present(s)
	switch s.Phase {
	case validation.PhaseDone:
		return successStyle.Render("✓ " + v.Message)
	case validation.PhaseErrored, validation.PhaseAborted:
		return failureStyle.Render("✗ " + v.Message)
	}
	return fmt.Sprintf("%s (%d%%)", v.Message, v.Percent)
}
