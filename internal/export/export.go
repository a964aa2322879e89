// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/stream"
	"github.com/staslianx/balli-sub009/internal/util"
)

// ErrEmptyTranscript is returned for a transcript without answer text.
var ErrEmptyTranscript = errors.New("export: answer has no text")

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is a finished answer together with the question that produced it.
type Transcript struct {
	AnswerID    string         `json:"answer_id"`
	Question    string         `json:"question"`
	Text        string         `json:"text"`
	Sources     []event.Source `json:"sources"`
	Summary     string         `json:"summary,omitempty"`
	Metadata    event.Metadata `json:"metadata,omitempty"`
	Synthesized bool           `json:"synthesized"`
	CreatedAt   time.Time      `json:"created_at"`
}

// FromResult builds a transcript from a completed answer.
func FromResult(question string, res stream.Result, at time.Time) *Transcript {
	sources := res.Sources
	if sources == nil {
		sources = []event.Source{}
	}
	return &Transcript{
		AnswerID:    res.AnswerID,
		Question:    question,
		Text:        res.Text,
		Sources:     sources,
		Summary:     res.Summary,
		Metadata:    res.Metadata,
		Synthesized: res.Synthesized,
		CreatedAt:   at,
	}
}

func (t *Transcript) validate() error {
	if t == nil || t.Text == "" {
		return ErrEmptyTranscript
	}
	return nil
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a transcript in one file format.
type Exporter interface {
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension including the dot.
	FileExtension() string

	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory.
	OutputDir string

	// IncludeMetadata adds front matter and the answer metadata.
	IncludeMetadata bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:       ".",
		IncludeMetadata: true,
	}
}

// Formats accepted by ForFormat.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// ForFormat returns the exporter for a format name ("markdown", "md" or "json").
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMarkdown, "md", "":
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("export: unknown format %q (want markdown or json)", format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile renders t with exporter and writes it atomically into
// opts.OutputDir. It returns the path of the new file.
func ExportToFile(t *Transcript, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}

	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	filename := fmt.Sprintf("answer_%s_%s%s",
		sanitizeFilename(t.Question),
		created.Format("20060102_150405"),
		exporter.FileExtension(),
	)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	outputPath := filepath.Join(dir, filename)
	if err := util.AtomicWriteFileWithDir(outputPath, content, 0o644, 0o755); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names and
// caps the length at 50 runes.
func sanitizeFilename(s string) string {
	const maxLen = 50
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "answer"
	}
	return b.String()
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
