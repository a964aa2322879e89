// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles holds the palette and lipgloss styles of the answer views.
//
// Colors are lipgloss.AdaptiveColor values so the same theme reads on light
// and dark terminals. The console renderer, which does not run through
// lipgloss, uses the Hex helper to get the variant for the detected
// background.
package styles
