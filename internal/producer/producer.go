// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package producer

import (
	"context"
	"errors"

	"github.com/staslianx/balli-sub009/internal/event"
)

// ErrStopped is returned by an emit function once the consumer can take no
// more items, for example after the response hit its size ceiling.
var ErrStopped = errors.New("producer: consumer stopped")

// Request identifies the answer being produced.
type Request struct {
	AnswerID string `json:"answer_id"`
	Question string `json:"question"`
}

// Item is one unit of producer output: either a text chunk or a side-channel
// event. When both are set the text goes first.
type Item struct {
	Text  string
	Event event.Event
}

// TextItem wraps a chunk of answer text.
func TextItem(text string) Item { return Item{Text: text} }

// EventItem wraps a side-channel event.
func EventItem(ev event.Event) Item { return Item{Event: ev} }

// Events expands the item into the events it stands for.
func (it Item) Events() []event.Event {
	var out []event.Event
	if it.Text != "" {
		out = append(out, event.Token{Content: it.Text})
	}
	if it.Event != nil {
		out = append(out, it.Event)
	}
	return out
}

// EmitFunc hands one item to the consumer. A non-nil error tells the
// producer to stop.
type EmitFunc func(Item) error

// Producer generates the content of one answer.
//
// Produce must stop when ctx is done or emit returns an error, and return
// that error.
type Producer interface {
	Produce(ctx context.Context, req Request, emit EmitFunc) error
}

// Func adapts a function to the Producer interface.
type Func func(ctx context.Context, req Request, emit EmitFunc) error

// Produce implements Producer.
func (f Func) Produce(ctx context.Context, req Request, emit EmitFunc) error {
	return f(ctx, req, emit)
}
