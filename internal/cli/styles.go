// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/staslianx/balli-sub009/internal/ui/styles"
)

// Styles for command output outside the answer views.
var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)

	PassStyle    = lipgloss.NewStyle().Bold(true).Foreground(styles.Emerald)
	WarningStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Amber)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Rose)

	KeyStyle   = lipgloss.NewStyle().Foreground(styles.Purple)
	MutedStyle = lipgloss.NewStyle().Foreground(styles.TextMuted)
)
