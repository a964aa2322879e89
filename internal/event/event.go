// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package event

// =============================================================================
// EVENT TYPES
// =============================================================================

// Type is the wire discriminator of an event.
type Type string

const (
	TypeToken         Type = "token"
	TypeSourcesReady  Type = "sources_ready"
	TypeStageProgress Type = "stage_progress"
	TypeComplete      Type = "complete"
	TypeError         Type = "error"

	// TypeComment is never encoded in JSON; comments travel as ": text" lines.
	TypeComment Type = "comment"
)

// Known comment texts.
const (
	CommentKeepalive   = "keepalive"
	CommentFlushTokens = "flush-tokens"
)

// Error codes carried by Error events.
const (
	CodeResponseTruncated = "response_truncated"
	CodeProducerFailed    = "producer_failed"
)

// Event is one unit of the answer stream.
type Event interface {
	Type() Type
}

// Token carries a chunk of answer text.
type Token struct {
	Content string `json:"content"`
}

// Type implements Event.
func (Token) Type() Type { return TypeToken }

// SourcesReady announces sources found for the answer.
type SourcesReady struct {
	Sources []Source `json:"sources"`
}

// Type implements Event.
func (SourcesReady) Type() Type { return TypeSourcesReady }

// StageProgress reports which generation stage the server is in.
type StageProgress struct {
	Stage    string `json:"stage"`
	Message  string `json:"message,omitempty"`
	Sequence int    `json:"sequence"`
}

// Type implements Event.
func (StageProgress) Type() Type { return TypeStageProgress }

// Complete marks the logical end of an answer. Tokens and sources may still
// follow it on the same stream.
type Complete struct {
	Sources  []Source `json:"sources,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// Type implements Event.
func (Complete) Type() Type { return TypeComplete }

// Error is a terminal server-side failure for the current response.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Type implements Event.
func (Error) Type() Type { return TypeError }

// Comment is an SSE comment frame.
type Comment struct {
	Text string
}

// Type implements Event.
func (Comment) Type() Type { return TypeComment }

// IsKeepalive reports whether the comment is a heartbeat.
func (c Comment) IsKeepalive() bool { return c.Text == CommentKeepalive }

// IsFlush reports whether the comment asks the client to show queued text now.
func (c Comment) IsFlush() bool { return c.Text == CommentFlushTokens }

// Metadata is the free-form metadata attached to a completion.
type Metadata map[string]any

// Clone returns a shallow copy so callers can annotate it safely.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
