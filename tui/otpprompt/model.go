// Package otpprompt is the interactive code entry shown by
// `remit transfer --interactive` while a transfer waits on an OTP.
package otpprompt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/transfer"
	"github.com/grovetools/remit/tui/theme"
)

// SubmitFunc delivers the typed code and returns the transfer outcome.
type SubmitFunc func(ctx context.Context, code string) (*transfer.Result, error)

type phase int

const (
	phaseEntry phase = iota
	phaseSubmitting
	phaseDone
	phaseCancelled
	phaseExpired
)

type tickMsg time.Time

type resultMsg struct {
	res *transfer.Result
	err error
}

// Model prompts for the code, submits it and shows the outcome.
type Model struct {
	input    textinput.Model
	spinner  spinner.Model
	ctx      context.Context
	submit   SubmitFunc
	pending  *transfer.Result
	bank     string
	accent   string
	deadline time.Time
	now      func() time.Time

	phase  phase
	result *transfer.Result
	err    error
}

// New creates a prompt for a pending result. deadline is when the session expires.
func New(ctx context.Context, pending *transfer.Result, bankName, primaryColor string, deadline time.Time, submit SubmitFunc) Model {
	ti := textinput.New()
	ti.Placeholder = "000000"
	ti.CharLimit = 12
	ti.Width = 14
	ti.Prompt = "› "
	ti.TextStyle = theme.DefaultTheme.Input
	ti.PlaceholderStyle = theme.DefaultTheme.Placeholder
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.DefaultTheme.Info

	return Model{
		input:    ti,
		spinner:  sp,
		ctx:      ctx,
		submit:   submit,
		pending:  pending,
		bank:     bankName,
		accent:   primaryColor,
		deadline: deadline,
		now:      time.Now,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the cursor blink and the countdown.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

// Update handles key presses, the countdown and the submission result.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.phase == phaseSubmitting {
				// The submission is already running; let it finish.
				return m, nil
			}
			m.phase = phaseCancelled
			return m, tea.Quit
		case tea.KeyRunes:
			msg.Runes = digits(msg.Runes)
			if len(msg.Runes) == 0 {
				return m, nil
			}
			if m.phase == phaseEntry {
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				return m, cmd
			}
		case tea.KeyEnter:
			if m.phase != phaseEntry {
				return m, nil
			}
			code := strings.TrimSpace(m.input.Value())
			if code == "" {
				return m, nil
			}
			m.phase = phaseSubmitting
			m.input.Blur()
			return m, tea.Batch(m.spinner.Tick, m.submitCmd(code))
		}

	case tickMsg:
		if m.phase == phaseEntry && !m.now().Before(m.deadline) {
			m.phase = phaseExpired
			return m, tea.Quit
		}
		return m, tick()

	case resultMsg:
		m.phase = phaseDone
		m.result, m.err = msg.res, msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		if m.phase != phaseSubmitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.phase != phaseEntry {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func digits(runes []rune) []rune {
	var out []rune
	for _, r := range runes {
		if r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}
	return out
}

func (m Model) submitCmd(code string) tea.Cmd {
	ctx, submit := m.ctx, m.submit
	return func() tea.Msg {
		res, err := submit(ctx, code)
		return resultMsg{res: res, err: err}
	}
}

// View renders the prompt.
func (m Model) View() string {
	t := theme.DefaultTheme
	var b strings.Builder

	b.WriteString(theme.BankAccent(m.accent).Render(m.bank))
	b.WriteString("\n")
	b.WriteString(m.pending.OTPMessage)
	b.WriteString("\n")
	b.WriteString(t.Muted.Render("session " + m.pending.SessionID))
	b.WriteString("\n\n")

	switch m.phase {
	case phaseEntry:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		left := m.deadline.Sub(m.now()).Round(time.Second)
		if left < 0 {
			left = 0
		}
		b.WriteString(t.Muted.Render(fmt.Sprintf("expires in %s · enter to submit · esc to cancel", left)))
	case phaseSubmitting:
		b.WriteString(m.spinner.View() + " Submitting code...")
	case phaseDone:
		switch {
		case m.err != nil:
			b.WriteString(t.Error.Render("✗ " + m.err.Error()))
		case m.result != nil && m.result.Success:
			b.WriteString(t.Success.Render("✓ " + m.result.Message))
		case m.result != nil:
			b.WriteString(t.Error.Render("✗ " + m.result.Message))
		}
	case phaseCancelled:
		b.WriteString(t.Warning.Render("Cancelled; the session keeps waiting for a code."))
	case phaseExpired:
		b.WriteString(t.Error.Render("The verification code was not entered in time."))
	}
	return b.String() + "\n"
}

// Submitted reports whether a code was submitted and its outcome is known.
func (m Model) Submitted() bool {
	return m.phase == phaseDone
}

// Outcome returns what the submission produced.
func (m Model) Outcome() (*transfer.Result, error) {
	return m.result, m.err
}

// Expired reports whether the prompt closed because the session ran out of time.
func (m Model) Expired() bool {
	return m.phase == phaseExpired
}

// Run shows the prompt on the terminal. Log lines that would go to stderr are
// dropped while it is open.
func Run(m Model) (Model, error) {
	prev := logging.SetStderrOutput(io.Discard)
	defer logging.SetStderrOutput(prev)

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return m, err
	}
	return final.(Model), nil
}
