package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

var (
	choiceStyle = lipgloss.NewStyle().
			Padding(0, 1)
	chosenStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("62"))
)

// ConfirmModel asks a yes/no question. No is the default.
type ConfirmModel struct {
	question validation.Confirmation
	yes      bool
	answered bool
	accepted bool
}

// NewConfirm creates a prompt for c.
func NewConfirm(c validation.Confirmation) ConfirmModel {
	return ConfirmModel{question: c}
}

// Accepted reports the operator's answer.
func (m ConfirmModel) Accepted() bool { return m.answered && m.accepted }

func (m ConfirmModel) Init() tea.Cmd { return nil }

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch strings.ToLower(key.String()) {
	case "y":
		return m.answer(true)
	case "n", "esc", "ctrl+c", "q":
		return m.answer(false)
	case "left", "right", "tab", "h", "l":
		m.yes = !m.yes
	case "enter":
		return m.answer(m.yes)
	}
	return m, nil
}

func (m ConfirmModel) answer(yes bool) (tea.Model, tea.Cmd) {
	m.answered = true
	m.accepted = yes
	return m, tea.Quit
}

func (m ConfirmModel) View() string {
	if m.answered {
		return ""
	}
	yes, no := choiceStyle, chosenStyle
	if m.yes {
		yes, no = chosenStyle, choiceStyle
	}
	return fmt.Sprintf("%s\n%s\n\n%s %s  %s\n",
		titleStyle.Render(m.question.Title),
		messageStyle.Render(m.question.Body),
		yes.Render("确认"),
		no.Render("取消"),
		hintStyle.Render("(y/n)"),
	)
}

// Prompt is a validation.Confirmer that asks in the terminal.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// Confirm implements validation.Confirmer.
func (p Prompt) Confirm(ctx context.Context, c validation.Confirmation) (bool, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.In != nil {
		opts = append(opts, tea.WithInput(p.In))
	}
	if p.Out != nil {
		opts = append(opts, tea.WithOutput(p.Out))
	}

	final, err := tea.NewProgram(NewConfirm(c), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	m, ok := final.(ConfirmModel)
	if !ok {
		return false, errors.New("unexpected confirmation result")
	}
	return m.Accepted(), nil
}
