// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/stream"
	"github.com/staslianx/balli-sub009/internal/ui/styles"
	"github.com/staslianx/balli-sub009/internal/util"
)

// defaultWidth is used until the terminal reports its size.
const defaultWidth = 80

// View renders the question, the answer so far and its sources.
func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	t := m.theme

	var b strings.Builder
	b.WriteString(t.Question.Render("? " + util.TruncateWidth(m.question, width-2)))
	b.WriteString("\n")

	if line := m.statusLine(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.text != "" {
		b.WriteString("\n")
		b.WriteString(t.Answer.Width(width).Render(m.text))
		b.WriteString("\n")
	}

	if len(m.sources) > 0 {
		b.WriteString("\n")
		b.WriteString(renderSources(t, m.sources, width))
	}

	if footer := m.footer(); footer != "" {
		b.WriteString("\n")
		b.WriteString(footer)
		b.WriteString("\n")
	}
	return b.String()
}

// statusLine shows the spinner while the answer is in progress.
func (m Model) statusLine() string {
	t := m.theme
	switch m.status {
	case StatusReconnecting:
		return m.spinner.View() + " " + t.Warning.Render(fmt.Sprintf("Reconnecting (attempt %d)...", m.attempt))
	case StatusWaiting, StatusStreaming:
		label := stageLabel(m.stage)
		if label == "" {
			if m.status == StatusStreaming {
				return ""
			}
			label = "Waiting for answer..."
		}
		return m.spinner.View() + " " + t.Stage.Render(label)
	default:
		return ""
	}
}

// footer describes how the answer ended.
func (m Model) footer() string {
	t := m.theme
	switch m.status {
	case StatusComplete:
		if m.result.Synthesized {
			reason, _ := m.result.Metadata["reason"].(string)
			return t.Warning.Render("Answer ended without confirmation (" + reasonText(reason) + ").")
		}
		return t.Complete.Render("Done.")
	case StatusFailed:
		return describeError(t, m.err)
	case StatusCancelled:
		return t.Help.Render("Cancelled.")
	default:
		return t.Help.Render("esc to cancel")
	}
}

func stageLabel(s event.StageProgress) string {
	switch {
	case s.Message != "":
		return s.Message
	case s.Stage != "":
		return s.Stage + "..."
	default:
		return ""
	}
}

func reasonText(reason string) string {
	switch reason {
	case stream.ReasonIdleTimeout:
		return "the server went quiet"
	case stream.ReasonTransportClosed:
		return "the connection closed"
	case stream.ReasonTransportError:
		return "the connection was lost"
	case "":
		return "unknown reason"
	default:
		return reason
	}
}

func describeError(t *styles.Theme, err error) string {
	var se *stream.Error
	if errors.As(err, &se) && se.Truncated() {
		return t.Warning.Render("The answer was too long and was cut short.")
	}
	if err == nil {
		return t.Error.Render("Failed.")
	}
	return t.Error.Render("Failed: " + err.Error())
}

// renderSources lists sources with titles fitted to width.
func renderSources(t *styles.Theme, sources []event.Source, width int) string {
	var b strings.Builder
	b.WriteString(t.SourcesHeader.Render("Sources"))
	b.WriteString("\n")
	for i, src := range sources {
		num := strconv.Itoa(i+1) + ". "
		title := src.Title
		if title == "" {
			title = src.URL
		}
		b.WriteString("  " + num)
		b.WriteString(t.SourceTitle.Render(util.TruncateWidth(title, width-4-len(num))))
		b.WriteString("\n")

		if meta := sourceMeta(src); meta != "" {
			b.WriteString(t.SourceMeta.Render(util.Indent(util.TruncateWidth(meta, width-4-len(num)), strings.Repeat(" ", 2+len(num)))))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// sourceMeta joins the author, year and URL of a source.
func sourceMeta(src event.Source) string {
	var parts []string
	if src.Author != "" {
		parts = append(parts, src.Author)
	}
	if src.Year > 0 {
		parts = append(parts, strconv.Itoa(src.Year))
	}
	if src.URL != "" && src.Title != "" {
		parts = append(parts, src.URL)
	}
	return strings.Join(parts, " · ")
}
