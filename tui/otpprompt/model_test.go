package otpprompt

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/remit/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newModel(t *testing.T, submit SubmitFunc) Model {
	t.Helper()
	now := time.Unix(1700000000, 0)
	pending := transfer.PendingOTP("SES1700000000ABCDEF12", "https://bank.test/otp", now)
	m := New(context.Background(), pending, "Banco BIC", "#E30613", now.Add(5*time.Minute), submit)
	m.now = func() time.Time { return now }
	return m
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

func TestEnterWithoutCodeDoesNothing(t *testing.T) {
	m := newModel(t, nil)
	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Equal(t, phaseEntry, m.phase)
}

func TestNonDigitsAreRejected(t *testing.T) {
	m := newModel(t, nil)
	m = typeText(m, "12a3")
	assert.Equal(t, "123", m.input.Value())
}

func TestSubmitCode(t *testing.T) {
	var got string
	submit := func(_ context.Context, code string) (*transfer.Result, error) {
		got = code
		return transfer.Succeeded("TXN1", 1000, "AO06", time.Now()), nil
	}
	m := newModel(t, submit)
	m = typeText(m, "482913")

	m, cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.Equal(t, phaseSubmitting, m.phase)
	assert.Contains(t, m.View(), "Submitting code")

	// Esc while the code is being submitted is ignored.
	m, _ = press(m, tea.KeyEsc)
	assert.Equal(t, phaseSubmitting, m.phase)

	res, err := submit(context.Background(), "482913")
	next, cmd := m.Update(resultMsg{res: res, err: err})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Equal(t, "482913", got)
	assert.True(t, m.Submitted())
	out, outErr := m.Outcome()
	require.NoError(t, outErr)
	assert.Equal(t, "TXN1", out.TransactionID)
	assert.Contains(t, m.View(), transfer.MessageSuccess)
}

func TestCancel(t *testing.T) {
	m := newModel(t, nil)
	m, cmd := press(m, tea.KeyEsc)
	require.NotNil(t, cmd)
	assert.False(t, m.Submitted())
	assert.Contains(t, m.View(), "Cancelled")
}

func TestExpiry(t *testing.T) {
	m := newModel(t, nil)
	assert.Contains(t, m.View(), "expires in 5m0s")

	m.now = func() time.Time { return m.deadline.Add(time.Second) }
	next, cmd := m.Update(tickMsg(m.now()))
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.Expired())
	assert.False(t, m.Submitted())
}
