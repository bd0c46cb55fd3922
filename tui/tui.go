package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// InitializeTUI forces a true-colour lipgloss profile when CLICOLOR_FORCE=1
// or COLORTERM=truecolor, so output captured by e2e scenarios is styled the
// same as on a terminal. It has no effect otherwise.
func InitializeTUI() {
	if os.Getenv("CLICOLOR_FORCE") == "1" || os.Getenv("COLORTERM") == "truecolor" {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}
