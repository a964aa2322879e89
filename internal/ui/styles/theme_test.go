// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestPlainThemeRendersText(t *testing.T) {
	th := PlainTheme()
	assert.Equal(t, termenv.Ascii, th.ColorProfile)
	assert.Equal(t, "The answer.", th.Answer.Render("The answer."))
	assert.Equal(t, "failed", th.Error.Render("failed"))
}

func TestHex(t *testing.T) {
	assert.Equal(t, Rose.Dark, Hex(Rose, true))
	assert.Equal(t, Rose.Light, Hex(Rose, false))
}

func TestColorThemeStyles(t *testing.T) {
	th := newTheme(termenv.TrueColor, true)
	assert.True(t, th.Question.GetBold())
	assert.Equal(t, Purple, th.Question.GetForeground())
	assert.Equal(t, Amber, th.Warning.GetForeground())
}
