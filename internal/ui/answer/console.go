// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/staslianx/balli-sub009/internal/client"
	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/stream"
	"github.com/staslianx/balli-sub009/internal/ui/styles"
	"github.com/staslianx/balli-sub009/internal/util"
)

// Console writes answers to a plain writer as they are displayed. Only the
// newly displayed part of the text is written, so output can be piped.
type Console struct {
	mu    sync.Mutex
	out   *termenv.Output
	dark  bool
	width int

	shown  map[string]string
	staged map[string]bool
}

// ConsoleOption customizes a Console.
type ConsoleOption func(*Console)

// WithProfile forces a color profile. termenv.Ascii disables colors.
func WithProfile(p termenv.Profile) ConsoleOption {
	return func(c *Console) { c.out = termenv.NewOutput(c.out.Writer(), termenv.WithProfile(p)) }
}

// WithConsoleWidth sets the width sources are fitted to.
func WithConsoleWidth(w int) ConsoleOption {
	return func(c *Console) { c.width = w }
}

// NewConsole creates a console renderer writing to w.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		out:    termenv.NewOutput(w),
		width:  defaultWidth,
		shown:  make(map[string]string),
		staged: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dark = c.out.HasDarkBackground()
	return c
}

// Callbacks returns session callbacks that write to the console.
func (c *Console) Callbacks() client.Callbacks {
	return client.Callbacks{
		OnDisplay:       c.display,
		OnStageProgress: c.stage,
		OnComplete:      c.complete,
		OnError:         c.fail,
		OnReconnecting: func(_ string, attempt int) {
			c.line(styles.Amber, fmt.Sprintf("reconnecting (attempt %d)...", attempt))
		},
	}
}

func (c *Console) display(id, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delta, replaced := util.Delta(c.shown[id], prefix)
	if replaced && c.shown[id] != "" {
		fmt.Fprintln(c.out)
	}
	c.shown[id] = prefix
	fmt.Fprint(c.out, delta)
}

// stage prints progress until the answer text starts.
func (c *Console) stage(id string, s event.StageProgress) {
	c.mu.Lock()
	started := c.shown[id] != ""
	c.mu.Unlock()
	if started {
		return
	}
	if label := stageLabel(s); label != "" {
		c.line(styles.Cyan, label)
	}
}

func (c *Console) complete(id string, res stream.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The last display already carried the full text; catch up if not.
	if delta, _ := util.Delta(c.shown[id], res.Text); delta != "" {
		fmt.Fprint(c.out, delta)
	}
	delete(c.shown, id)
	fmt.Fprintln(c.out)

	if len(res.Sources) > 0 {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, c.paint(styles.TextSecondary, "Sources").Bold())
		for i, src := range res.Sources {
			num := strconv.Itoa(i+1) + ". "
			title := src.Title
			if title == "" {
				title = src.URL
			}
			fmt.Fprintf(c.out, "  %s%s\n", num, c.paint(styles.Cyan, util.TruncateWidth(title, c.width-4-len(num))))
			if meta := sourceMeta(src); meta != "" {
				fmt.Fprintf(c.out, "%s%s\n", strings.Repeat(" ", 2+len(num)), c.paint(styles.TextMuted, util.TruncateWidth(meta, c.width-4-len(num))))
			}
		}
	}
	if res.Synthesized {
		reason, _ := res.Metadata["reason"].(string)
		fmt.Fprintln(c.out, c.paint(styles.Amber, "answer ended without confirmation ("+reasonText(reason)+")"))
	}
}

func (c *Console) fail(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shown[id] != "" {
		fmt.Fprintln(c.out)
	}
	delete(c.shown, id)

	var se *stream.Error
	if errors.As(err, &se) && se.Truncated() {
		fmt.Fprintln(c.out, c.paint(styles.Amber, "the answer was too long and was cut short"))
		return
	}
	fmt.Fprintln(c.out, c.paint(styles.Rose, "error: "+err.Error()).Bold())
}

// line writes a status line in color.
func (c *Console) line(color lipgloss.AdaptiveColor, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.paint(color, text).Faint())
}

func (c *Console) paint(color lipgloss.AdaptiveColor, text string) termenv.Style {
	return c.out.String(text).Foreground(c.out.Color(styles.Hex(color, c.dark)))
}
