// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/staslianx/balli-sub009/internal/ui/styles"
)

// Viewer names accepted by --viewer and client.viewer.
const (
	ViewerAuto  = "auto"
	ViewerTUI   = "tui"
	ViewerPlain = "plain"
)

// isTerminal reports whether f is attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// chooseViewer resolves "auto" to the TUI when both ends are terminals.
func chooseViewer(requested string, in io.Reader, out io.Writer) string {
	switch requested {
	case ViewerTUI, ViewerPlain:
		return requested
	}
	if isTerminal(in) && isTerminal(out) {
		return ViewerTUI
	}
	return ViewerPlain
}

// terminalWidth returns the width of out, or 0 when unknown.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// viewerTheme honors NO_COLOR and dumb terminals.
func viewerTheme() *styles.Theme {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return styles.PlainTheme()
	}
	return styles.NewTheme()
}
