// Package forms carries the shared huh styling and helpers used by the
// interactive wizards.
package forms

import (
	"errors"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user aborts a wizard.
var ErrCancelled = errors.New("cancelled")

// MaxWidth is the rendered width of every wizard form.
const MaxWidth = 80

// Theme returns the huh theme shared by all wizards.
func Theme() *huh.Theme {
	primary := lipgloss.Color("#8dc351")  // cash green
	fg := lipgloss.Color("#dddddd")       // light gray
	fgMuted := lipgloss.Color("#7f7f7f")  // muted gray
	fgSubtle := lipgloss.Color("#888888") // subtle gray
	bg := lipgloss.Color("#101012")       // dark bg
	errColor := lipgloss.Color("#bf5d47") // red
	success := lipgloss.Color("#87bf47")  // green

	theme := huh.ThemeBase16()

	base := lipgloss.NewStyle().Foreground(fg)

	theme.Focused.Base = base.MarginLeft(1)
	theme.Focused.Title = base.Foreground(primary).Bold(true)
	theme.Focused.Description = base.Foreground(fg)
	theme.Focused.ErrorIndicator = base.Foreground(errColor)
	theme.Focused.ErrorMessage = base.Foreground(errColor)

	theme.Focused.SelectSelector = base.Foreground(primary).Bold(true)
	theme.Focused.MultiSelectSelector = base.Foreground(primary).Bold(true)
	theme.Focused.SelectedOption = base.Foreground(primary).Bold(true)
	theme.Focused.SelectedPrefix = base.Foreground(success).Bold(true).SetString("✓ ")
	theme.Focused.UnselectedOption = base
	theme.Blurred.UnselectedOption = base.Foreground(errColor)
	theme.Focused.UnselectedPrefix = base.Foreground(fgMuted).SetString("> ")
	theme.Focused.Option = base

	theme.Focused.FocusedButton = base.Background(primary).Foreground(bg).Bold(true).Padding(0, 2)
	theme.Focused.BlurredButton = base.Foreground(fgMuted).Padding(0).MarginLeft(1)

	theme.Focused.NoteTitle = base.Foreground(primary).Bold(true)
	theme.Focused.Card = base.Padding(0)

	theme.Focused.TextInput.Cursor = base.Foreground(primary)
	theme.Focused.TextInput.Placeholder = base.Foreground(fgSubtle)
	theme.Focused.TextInput.Prompt = base.Foreground(primary)

	theme.Blurred.Base = base
	theme.Blurred.Title = base.Foreground(fgMuted)
	theme.Blurred.Description = base.Foreground(fg)
	theme.Blurred.NoteTitle = base.Foreground(fgMuted)
	theme.Blurred.TextInput.Placeholder = base.Foreground(fgSubtle)
	theme.Blurred.TextInput.Prompt = base.Foreground(fgMuted)

	theme.FieldSeparator = lipgloss.NewStyle().SetString("\n")
	theme.Form = base
	theme.Group = base.Background(lipgloss.Color("#151517")).Padding(0).MarginBottom(0)

	return theme
}

// NewForm wraps groups in a form with the shared theme and sizing.
func NewForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).
		WithTheme(Theme()).
		WithWidth(MaxWidth).
		WithShowHelp(false).
		WithShowErrors(false)
}
