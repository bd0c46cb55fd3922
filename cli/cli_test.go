package cli

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/grovetools/remit/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardFlags(t *testing.T) {
	cmd := NewStandardCommand("remit", "Bank transfer automation")
	require.NoError(t, cmd.ParseFlags([]string{"-v", "--json", "-c", "/tmp/remit.yml"}))

	opts := GetOptions(cmd)
	assert.True(t, opts.Verbose)
	assert.True(t, opts.JSONOutput)
	assert.Equal(t, "/tmp/remit.yml", opts.ConfigFile)
}

func TestErrorHandlerHints(t *testing.T) {
	tests := []struct {
		name string
		err  error
		hint string
	}{
		{"bank", errors.BankNotFound("nope"), "remit banks"},
		{"wrapped session", fmt.Errorf("submit: %w", errors.SessionNotFound("SES1")), "remit sessions list"},
		{"otp timeout", errors.OTPTimeout("SES1", 5*time.Minute), "within 5m0s"},
		{"element", errors.ElementNotFound("#login", time.Second), "'#login'"},
		{"plain", fmt.Errorf("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			h := &ErrorHandler{Out: &out}
			assert.Equal(t, tt.err, h.Handle(tt.err))
			assert.Contains(t, out.String(), tt.hint)
		})
	}
}

func TestErrorHandlerVerboseDetails(t *testing.T) {
	var out bytes.Buffer
	h := &ErrorHandler{Verbose: true, Out: &out}
	h.Handle(errors.ControlTargetDead(4242))
	assert.Contains(t, out.String(), `"pid": 4242`)
	assert.Contains(t, out.String(), "redoes the transfer")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", wrapText("one two three", 8))
	assert.Equal(t, "keep\nbreaks", wrapText("keep\nbreaks", 40))
}

func TestHelpRendersSections(t *testing.T) {
	root := NewStandardCommand("remit", "Bank transfer automation")
	sub := &cobra.Command{
		Use:   "fee <amount>",
		Short: "Compute the transfer fee",
		Long:  "Compute the transfer fee.\n\nExamples:\n# 0.5% clamped\nremit fee 250000",
		Run:   func(*cobra.Command, []string) {},
	}
	sub.Flags().Bool("raw", false, "Print the bare number")
	root.AddCommand(sub)

	var out bytes.Buffer
	renderHelp(&out, sub)
	help := out.String()
	assert.Contains(t, help, "REMIT FEE")
	assert.Contains(t, help, "USAGE")
	assert.Contains(t, help, "--raw")
	assert.Contains(t, help, "EXAMPLES")
	assert.Contains(t, help, "remit fee 250000")
}
