// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export saves finished answers to files.
//
// # Supported Formats
//
//   - Markdown: question, answer text and numbered sources, with optional
//     YAML front matter
//   - JSON: the full transcript, including metadata
//
// # Usage
//
//	t := export.FromResult(question, res, time.Now())
//	path, err := export.ExportToFile(t, export.NewMarkdownExporter(nil), &export.Options{OutputDir: "answers"})
package export
