// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports answers to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "question: %s\n", escapeYAML(t.Question))
		if t.AnswerID != "" {
			fmt.Fprintf(&sb, "answer_id: %s\n", t.AnswerID)
		}
		if !t.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "date: %s\n", t.CreatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "sources: %d\n", len(t.Sources))
		if t.Synthesized {
			sb.WriteString("synthesized: true\n")
		}
		sb.WriteString("generator: balli\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Question))

	if t.Summary != "" {
		fmt.Fprintf(&sb, "> %s\n\n", strings.ReplaceAll(t.Summary, "\n", "\n> "))
	}

	sb.WriteString(strings.TrimRight(t.Text, "\n"))
	sb.WriteString("\n")

	if len(t.Sources) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for i, src := range t.Sources {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, formatSource(src.Title, src.URL))
			if meta := sourceDetails(src.Author, src.Year); meta != "" {
				fmt.Fprintf(&sb, "   %s\n", meta)
			}
		}
	}

	if e.options.IncludeMetadata && len(t.Metadata) > 0 {
		sb.WriteString("\n## Details\n\n")
		keys := make([]string, 0, len(t.Metadata))
		for k := range t.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- **%s**: %v\n", escapeMarkdown(k), t.Metadata[k])
		}
	}

	if t.Synthesized {
		sb.WriteString("\n*The answer ended without confirmation from the server.*\n")
	}
	if !t.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "\n---\n\n*Saved %s*\n", formatTimestamp(t.CreatedAt))
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

func formatSource(title, url string) string {
	switch {
	case title == "":
		return fmt.Sprintf("<%s>", url)
	case url == "":
		return escapeMarkdown(title)
	default:
		return fmt.Sprintf("[%s](%s)", escapeMarkdown(title), url)
	}
}

func sourceDetails(author string, year int) string {
	var parts []string
	if author != "" {
		parts = append(parts, author)
	}
	if year > 0 {
		parts = append(parts, fmt.Sprint(year))
	}
	return strings.Join(parts, ", ")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break headings and links.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes values that contain YAML syntax.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
