// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

// TruncateWidth fits s into maxWidth terminal cells, ending in Ellipsis when
// something was cut. Wide (CJK, emoji) characters count as two cells and
// are never split.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(Ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, Ellipsis)
}

// Indent prefixes every non-empty line of s with prefix.
func Indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Delta returns the part of next that follows prev. When next does not
// extend prev (the text was replaced), all of next is returned and
// replaced is true.
func Delta(prev, next string) (delta string, replaced bool) {
	if strings.HasPrefix(next, prev) {
		return next[len(prev):], false
	}
	return next, true
}
