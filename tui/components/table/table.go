// Package table renders remit's list output (sessions, banks) as lipgloss tables.
package table

import (
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/grovetools/remit/tui/theme"
)

// New returns a bordered table with the header row and alternating rows
// styled by the default theme.
func New(headers ...string) *ltable.Table {
	t := theme.DefaultTheme
	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(t.Colors.Border)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return t.TableHeader.Padding(0, 1)
			}
			base := t.TableRow.Padding(0, 1)
			if t.UseAlternatingRows && row%2 == 1 {
				return base.Background(t.Colors.VerySubtleBackground)
			}
			return base
		})
}

// Render builds a table from rows of cells.
func Render(headers []string, rows [][]string) string {
	tbl := New(headers...)
	for _, row := range rows {
		tbl.Row(row...)
	}
	return tbl.Render()
}
