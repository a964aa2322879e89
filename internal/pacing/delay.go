// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pacing

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Default delays between display units.
const (
	DefaultBaseDelay        = 12 * time.Millisecond
	DefaultSpaceDelay       = 4 * time.Millisecond
	DefaultPunctuationDelay = 60 * time.Millisecond
)

// pausePunctuation lists the characters followed by a reading pause.
const pausePunctuation = ",.!?:;"

// Config holds the per-unit delays. A zero field takes its default; use a
// negative value to disable a delay entirely.
type Config struct {
	BaseDelay        time.Duration
	SpaceDelay       time.Duration
	PunctuationDelay time.Duration
}

// DefaultConfig returns the standard reading rhythm.
func DefaultConfig() Config {
	return Config{
		BaseDelay:        DefaultBaseDelay,
		SpaceDelay:       DefaultSpaceDelay,
		PunctuationDelay: DefaultPunctuationDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.SpaceDelay == 0 {
		c.SpaceDelay = DefaultSpaceDelay
	}
	if c.PunctuationDelay == 0 {
		c.PunctuationDelay = DefaultPunctuationDelay
	}
	return c
}

// DelayFor returns the pause after displaying unit. The unit's last rune
// decides: non-newline whitespace is short, pause punctuation is long,
// everything else uses the base delay.
func (c Config) DelayFor(unit string) time.Duration {
	if unit == "" {
		return 0
	}

	r, _ := utf8.DecodeLastRuneInString(unit)
	var d time.Duration
	switch {
	case r == '\n':
		d = c.BaseDelay
	case unicode.IsSpace(r):
		d = c.SpaceDelay
	case strings.ContainsRune(pausePunctuation, r):
		d = c.PunctuationDelay
	default:
		d = c.BaseDelay
	}

	if d < 0 {
		return 0
	}
	return d
}
