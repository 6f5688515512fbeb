// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components of the chat screen.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style

	// Message gutters and labels
	UserLabel       lipgloss.Style
	ModelLabel      lipgloss.Style
	Selected        lipgloss.Style
	Unselected      lipgloss.Style
	Reasoning       lipgloss.Style
	Attachment      lipgloss.Style
	BranchIndicator lipgloss.Style

	InputPrompt lipgloss.Style
	StatusBar   lipgloss.Style
	StatusIdle  lipgloss.Style
	StatusBusy  lipgloss.Style
	Error       lipgloss.Style
	Notice      lipgloss.Style
	Prompt      lipgloss.Style
	Muted       lipgloss.Style
}

// NewTheme detects the terminal and builds the styles.
func NewTheme() *Theme {
	return NewThemeFor(termenv.ColorProfile(), termenv.HasDarkBackground())
}

// NewThemeFor builds a theme for a known profile and background.
func NewThemeFor(profile termenv.Profile, dark bool) *Theme {
	t := &Theme{IsDark: dark, ColorProfile: profile}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.ModelLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.Selected = lipgloss.NewStyle().
		BorderStyle(lipgloss.ThickBorder()).
		BorderLeft(true).
		BorderForeground(Amber).
		PaddingLeft(1)
	t.Unselected = lipgloss.NewStyle().
		BorderStyle(lipgloss.HiddenBorder()).
		BorderLeft(true).
		PaddingLeft(1)
	t.Reasoning = lipgloss.NewStyle().Italic(true).Foreground(TextMuted)
	t.Attachment = lipgloss.NewStyle().Foreground(TextSecondary)
	t.BranchIndicator = lipgloss.NewStyle().Bold(true).Foreground(Purple)

	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.StatusIdle = lipgloss.NewStyle().Foreground(Emerald)
	t.StatusBusy = lipgloss.NewStyle().Foreground(Amber)
	t.Error = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.Notice = lipgloss.NewStyle().Foreground(TextSecondary)
	t.Prompt = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Amber).
		Padding(0, 1)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
}

// GlamourStyle names the glamour style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}
