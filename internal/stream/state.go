// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"

	"github.com/staslianx/balli-sub009/internal/event"
)

// State is the lifecycle position of one answer.
type State int

const (
	StateStreaming State = iota
	StateAwaitingTrailing
	StateFinalized
	StateFailed
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateAwaitingTrailing:
		return "awaiting_trailing"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state ignores all further input.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}

// Reasons recorded in the metadata of a synthesized completion.
const (
	ReasonIdleTimeout     = "idle_timeout"
	ReasonTransportClosed = "transport_closed"
	ReasonTransportError  = "transport_error"
)

var (
	// ErrEmptyStream is reported when the transport closed before any text
	// or completion arrived.
	ErrEmptyStream = errors.New("stream: closed before any answer arrived")

	// ErrIdleTimeout is reported when the stream went silent before any
	// text or completion arrived.
	ErrIdleTimeout = errors.New("stream: idle timeout before any answer arrived")
)

// Error is a server-reported failure of an answer, such as a truncated
// response. Partial holds the text received before it.
type Error struct {
	Code    string
	Message string
	Partial string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return "stream: server error: " + e.Message
	}
	return fmt.Sprintf("stream: server error (%s): %s", e.Code, e.Message)
}

// Truncated reports whether the server cut the response at its size ceiling.
func (e *Error) Truncated() bool {
	return e.Code == event.CodeResponseTruncated
}

// Result is the reconstructed answer handed to OnComplete.
type Result struct {
	AnswerID string
	Text     string
	Sources  []event.Source
	Metadata event.Metadata
	Summary  string

	// Synthesized is set when no complete event arrived and the result was
	// built from the accumulated text alone.
	Synthesized bool
}

// Snapshot is a point-in-time copy of an accumulator's state.
type Snapshot struct {
	AnswerID string
	State    State
	Text     string
	Sources  []event.Source
	Tokens   int
}

// Callbacks receive an answer's progress. Every field is optional. They run
// on the accumulator goroutine, in stream order, and never after the answer
// is cancelled.
type Callbacks struct {
	OnToken         func(text string)
	OnSourcesReady  func(sources []event.Source)
	OnStageProgress func(stage event.StageProgress)
	OnFlush         func()
	OnComplete      func(result Result)
	OnError         func(err error)
}
