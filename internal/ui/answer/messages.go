// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/staslianx/balli-sub009/internal/client"
	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/stream"
)

// =============================================================================
// STREAM MESSAGES
// =============================================================================

// DisplayMsg carries the paced prefix of the answer text.
type DisplayMsg struct {
	AnswerID string
	Text     string
}

// SourcesMsg carries the merged source list.
type SourcesMsg struct {
	AnswerID string
	Sources  []event.Source
}

// StageMsg reports a pipeline stage.
type StageMsg struct {
	AnswerID string
	Stage    event.StageProgress
}

// CompleteMsg ends the answer with its final result.
type CompleteMsg struct {
	AnswerID string
	Result   stream.Result
}

// ErrorMsg ends the answer with a failure.
type ErrorMsg struct {
	AnswerID string
	Err      error
}

// =============================================================================
// CONNECTION MESSAGES
// =============================================================================

// ReconnectingMsg reports a retry about to start.
type ReconnectingMsg struct {
	AnswerID string
	Attempt  int
}

// ReconnectedMsg reports a retry that connected.
type ReconnectedMsg struct {
	AnswerID string
	Attempt  int
}

// Callbacks returns session callbacks that forward progress to send,
// usually a tea.Program's Send.
func Callbacks(send func(tea.Msg)) client.Callbacks {
	return client.Callbacks{
		OnDisplay: func(id, prefix string) {
			send(DisplayMsg{AnswerID: id, Text: prefix})
		},
		OnSourcesReady: func(id string, sources []event.Source) {
			send(SourcesMsg{AnswerID: id, Sources: sources})
		},
		OnStageProgress: func(id string, stage event.StageProgress) {
			send(StageMsg{AnswerID: id, Stage: stage})
		},
		OnComplete: func(id string, res stream.Result) {
			send(CompleteMsg{AnswerID: id, Result: res})
		},
		OnError: func(id string, err error) {
			send(ErrorMsg{AnswerID: id, Err: err})
		},
		OnReconnecting: func(id string, attempt int) {
			send(ReconnectingMsg{AnswerID: id, Attempt: attempt})
		},
		OnReconnected: func(id string, attempt int) {
			send(ReconnectedMsg{AnswerID: id, Attempt: attempt})
		},
	}
}
