// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme is the set of styles used to draw one answer.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Question lipgloss.Style
	Stage    lipgloss.Style
	Answer   lipgloss.Style
	Rule     lipgloss.Style

	SourcesHeader lipgloss.Style
	SourceTitle   lipgloss.Style
	SourceMeta    lipgloss.Style

	Complete lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Help     lipgloss.Style
}

// NewTheme builds the theme for the current terminal.
func NewTheme() *Theme {
	return newTheme(termenv.ColorProfile(), termenv.HasDarkBackground())
}

// PlainTheme builds a theme without colors, for tests and dumb terminals.
func PlainTheme() *Theme {
	return newTheme(termenv.Ascii, true)
}

func newTheme(profile termenv.Profile, dark bool) *Theme {
	t := &Theme{IsDark: dark, ColorProfile: profile}
	if profile == termenv.Ascii {
		plain := lipgloss.NewStyle()
		t.Question, t.Stage, t.Answer, t.Rule = plain, plain, plain, plain
		t.SourcesHeader, t.SourceTitle, t.SourceMeta = plain, plain, plain
		t.Complete, t.Warning, t.Error, t.Help = plain, plain, plain, plain
		return t
	}

	t.Question = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.Stage = lipgloss.NewStyle().Foreground(Cyan).Italic(true)
	t.Answer = lipgloss.NewStyle().Foreground(TextPrimary)
	t.Rule = lipgloss.NewStyle().Foreground(Overlay)

	t.SourcesHeader = lipgloss.NewStyle().Bold(true).Foreground(TextSecondary)
	t.SourceTitle = lipgloss.NewStyle().Foreground(Cyan)
	t.SourceMeta = lipgloss.NewStyle().Foreground(TextMuted)

	t.Complete = lipgloss.NewStyle().Foreground(Emerald)
	t.Warning = lipgloss.NewStyle().Foreground(Amber)
	t.Error = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)
	return t
}
