// Package theme holds the colours and lipgloss styles shared by remit's
// terminal output.
package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const defaultThemeName = "kanagawa"

// --- Kanagawa Dragon palette ---
const (
	kanagawaGreen                = "#98BB6C"
	kanagawaYellow               = "#FF9E3B"
	kanagawaRed                  = "#FF5D62"
	kanagawaCyan                 = "#7E9CD8"
	kanagawaViolet               = "#957FB8"
	kanagawaLightText            = "#DCD7BA"
	kanagawaMutedText            = "#727169"
	kanagawaBorder               = "#363646"
	kanagawaVerySubtleBackground = "#181820"
)

// --- 16-colour terminal palette ---
const (
	terminalGreen                = "2"
	terminalYellow               = "3"
	terminalRed                  = "1"
	terminalCyan                 = "6"
	terminalViolet               = "5"
	terminalLightText            = "7"
	terminalMutedText            = "8"
	terminalBorder               = "8"
	terminalVerySubtleBackground = "0"
)

// Colors is one palette.
type Colors struct {
	Green                lipgloss.TerminalColor
	Yellow               lipgloss.TerminalColor
	Red                  lipgloss.TerminalColor
	Cyan                 lipgloss.TerminalColor
	Violet               lipgloss.TerminalColor
	LightText            lipgloss.TerminalColor
	MutedText            lipgloss.TerminalColor
	Border               lipgloss.TerminalColor
	VerySubtleBackground lipgloss.TerminalColor
}

// Theme is the set of styles built from a palette.
type Theme struct {
	Colors Colors

	Header lipgloss.Style
	Title  lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold   lipgloss.Style
	Muted  lipgloss.Style
	Accent lipgloss.Style

	TableHeader        lipgloss.Style
	TableRow           lipgloss.Style
	UseAlternatingRows bool

	Box         lipgloss.Style
	Input       lipgloss.Style
	Placeholder lipgloss.Style
}

var themeRegistry = map[string]func() Colors{
	"kanagawa": newKanagawaColors,
	"terminal": newTerminalColors,
}

// DefaultTheme is selected by REMIT_THEME (kanagawa or terminal).
var DefaultTheme = NewThemeWithName(os.Getenv("REMIT_THEME"))

// NewThemeWithName builds a theme; unknown names fall back to the default.
func NewThemeWithName(name string) *Theme {
	name = strings.ToLower(strings.TrimSpace(name))
	newColors, ok := themeRegistry[name]
	if !ok {
		name = defaultThemeName
		newColors = themeRegistry[name]
	}
	return newThemeFromColors(newColors(), name != "terminal")
}

// RenderStatus styles text for a status keyword: success, error, warning or info.
func RenderStatus(status, text string) string {
	switch status {
	case "success":
		return DefaultTheme.Success.Render(text)
	case "error":
		return DefaultTheme.Error.Render(text)
	case "warning":
		return DefaultTheme.Warning.Render(text)
	case "info":
		return DefaultTheme.Info.Render(text)
	default:
		return text
	}
}

func newThemeFromColors(colors Colors, alternatingRows bool) *Theme {
	return &Theme{
		Colors: colors,

		Header: lipgloss.NewStyle().
			Bold(true).
			MarginTop(1).
			MarginBottom(1),

		Title: lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			MarginBottom(1),

		Success: lipgloss.NewStyle().Foreground(colors.Green).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colors.Red).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colors.Yellow).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true),

		Bold:   lipgloss.NewStyle().Bold(true),
		Muted:  lipgloss.NewStyle().Foreground(colors.MutedText),
		Accent: lipgloss.NewStyle().Foreground(colors.Violet),

		TableHeader: lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colors.Border),
		TableRow:           lipgloss.NewStyle(),
		UseAlternatingRows: alternatingRows,

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Border).
			Padding(1, 2),

		Input:       lipgloss.NewStyle().Foreground(colors.LightText),
		Placeholder: lipgloss.NewStyle().Foreground(colors.MutedText),
	}
}

func newKanagawaColors() Colors {
	return Colors{
		Green:                lipgloss.Color(kanagawaGreen),
		Yellow:               lipgloss.Color(kanagawaYellow),
		Red:                  lipgloss.Color(kanagawaRed),
		Cyan:                 lipgloss.Color(kanagawaCyan),
		Violet:               lipgloss.Color(kanagawaViolet),
		LightText:            lipgloss.Color(kanagawaLightText),
		MutedText:            lipgloss.Color(kanagawaMutedText),
		Border:               lipgloss.Color(kanagawaBorder),
		VerySubtleBackground: lipgloss.Color(kanagawaVerySubtleBackground),
	}
}

func newTerminalColors() Colors {
	return Colors{
		Green:                lipgloss.Color(terminalGreen),
		Yellow:               lipgloss.Color(terminalYellow),
		Red:                  lipgloss.Color(terminalRed),
		Cyan:                 lipgloss.Color(terminalCyan),
		Violet:               lipgloss.Color(terminalViolet),
		LightText:            lipgloss.Color(terminalLightText),
		MutedText:            lipgloss.Color(terminalMutedText),
		Border:               lipgloss.Color(terminalBorder),
		VerySubtleBackground: lipgloss.Color(terminalVerySubtleBackground),
	}
}

// BankAccent returns a style in a bank's primary colour, or the theme accent
// when the bank has none.
func BankAccent(primaryColor string) lipgloss.Style {
	if primaryColor == "" {
		return DefaultTheme.Accent
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(primaryColor)).Bold(true)
}
