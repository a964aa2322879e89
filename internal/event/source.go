// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package event

import "strings"

// Source is a reference backing part of an answer. Its identity is the URL.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Kind    string `json:"kind,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Author  string `json:"author,omitempty"`
	Year    int    `json:"year,omitempty"`
}

// key returns the dedupe key. Sources without a URL fall back to the title.
func (s Source) key() string {
	if u := strings.TrimSpace(s.URL); u != "" {
		return "u:" + strings.TrimSuffix(u, "/")
	}
	return "t:" + strings.ToLower(strings.TrimSpace(s.Title))
}

// fill copies fields that are empty in s from other.
func (s Source) fill(other Source) Source {
	if s.Title == "" {
		s.Title = other.Title
	}
	if s.Kind == "" {
		s.Kind = other.Kind
	}
	if s.Snippet == "" {
		s.Snippet = other.Snippet
	}
	if s.Author == "" {
		s.Author = other.Author
	}
	if s.Year == 0 {
		s.Year = other.Year
	}
	return s
}

// MergeSources appends incoming to existing, dropping duplicates by URL.
// The first occurrence keeps its position; later duplicates only fill its
// empty fields. The returned slice never aliases existing.
func MergeSources(existing, incoming []Source) []Source {
	out := make([]Source, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	add := func(s Source) {
		k := s.key()
		if i, ok := index[k]; ok {
			out[i] = out[i].fill(s)
			return
		}
		index[k] = len(out)
		out = append(out, s)
	}

	for _, s := range existing {
		add(s)
	}
	for _, s := range incoming {
		add(s)
	}
	return out
}
