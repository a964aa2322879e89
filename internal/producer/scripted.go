// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package producer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/staslianx/balli-sub009/internal/event"
)

// Script is a fixed answer replayed by Scripted.
type Script struct {
	Stages   []event.StageProgress
	Sources  []event.Source
	Chunks   []string
	Complete event.Complete

	// Trailing content arrives after the complete event.
	TrailingChunks  []string
	TrailingSources []event.Source
}

// Items returns the script in emission order.
func (s Script) Items() []Item {
	var items []Item
	for _, st := range s.Stages {
		items = append(items, EventItem(st))
	}
	if len(s.Sources) > 0 {
		items = append(items, EventItem(event.SourcesReady{Sources: s.Sources}))
	}
	for _, c := range s.Chunks {
		items = append(items, TextItem(c))
	}
	items = append(items, EventItem(s.Complete))
	for _, c := range s.TrailingChunks {
		items = append(items, TextItem(c))
	}
	if len(s.TrailingSources) > 0 {
		items = append(items, EventItem(event.SourcesReady{Sources: s.TrailingSources}))
	}
	return items
}

// Text returns the full answer text of the script.
func (s Script) Text() string {
	return strings.Join(s.Chunks, "") + strings.Join(s.TrailingChunks, "")
}

// Scripted replays a Script, pausing between items.
type Scripted struct {
	delay  time.Duration
	script func(Request) Script
}

// NewScripted replays the same script for every request.
func NewScripted(delay time.Duration, script Script) *Scripted {
	return &Scripted{delay: delay, script: func(Request) Script { return script }}
}

// NewDemo answers every request with Demo(req.Question).
func NewDemo(delay time.Duration) *Scripted {
	return &Scripted{delay: delay, script: func(req Request) Script { return Demo(req.Question) }}
}

// Produce implements Producer.
func (p *Scripted) Produce(ctx context.Context, req Request, emit EmitFunc) error {
	for i, item := range p.script(req).Items() {
		if i > 0 && p.delay > 0 {
			timer := time.NewTimer(p.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(item); err != nil {
			return err
		}
	}
	return nil
}

// Demo builds a short canned answer to question, with one trailing sentence
// sent after the completion.
func Demo(question string) Script {
	question = strings.TrimSpace(question)
	if question == "" {
		question = "your question"
	}
	body := fmt.Sprintf("Here is what I found about %q. Balanced meals spread carbohydrates evenly through the day, ", question)
	return Script{
		Stages: []event.StageProgress{
			{Stage: "searching", Message: "Searching sources", Sequence: 1},
			{Stage: "writing", Message: "Writing the answer", Sequence: 2},
		},
		Sources: []event.Source{
			{Title: "Dietary Guidelines", URL: "https://example.org/guidelines", Kind: "web"},
		},
		Chunks: SplitWords(body),
		Complete: event.Complete{
			Sources:  []event.Source{{Title: "Nutrition Review", URL: "https://example.org/review", Kind: "article", Year: 2023}},
			Metadata: event.Metadata{"producer": "demo"},
		},
		TrailingChunks: SplitWords("and pairing them with protein slows absorption."),
	}
}

// SplitWords cuts text into word chunks, each keeping the whitespace that
// follows it, so joining the chunks restores text.
func SplitWords(text string) []string {
	var chunks []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !space {
			chunks = append(chunks, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
