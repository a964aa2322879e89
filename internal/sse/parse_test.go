// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/staslianx/balli-sub009/internal/event"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		want    event.Event
		wantErr bool
	}{
		{
			name:  "token",
			frame: `data: {"type":"token","content":"The"}`,
			want:  event.Token{Content: "The"},
		},
		{
			name:  "no space after colon",
			frame: `data:{"type":"token","content":" "}`,
			want:  event.Token{Content: " "},
		},
		{
			name:  "complete with sources",
			frame: `data: {"type":"complete","sources":[{"title":"","url":"https://x"}]}`,
			want:  event.Complete{Sources: []event.Source{{URL: "https://x"}}},
		},
		{
			name:  "multi-line data",
			frame: "data: {\"type\":\"token\",\ndata: \"content\":\"a\"}",
			want:  event.Token{Content: "a"},
		},
		{
			name:  "event and id fields ignored",
			frame: "event: message\nid: 7\ndata: {\"type\":\"token\",\"content\":\"x\"}",
			want:  event.Token{Content: "x"},
		},
		{
			name:  "keepalive",
			frame: ": keepalive",
			want:  event.Comment{Text: event.CommentKeepalive},
		},
		{
			name:  "flush tokens",
			frame: ": flush-tokens",
			want:  event.Comment{Text: event.CommentFlushTokens},
		},
		{name: "unknown comment", frame: ": server-version 3"},
		{name: "empty data", frame: "data: "},
		{name: "done marker", frame: "data: [DONE]"},
		{name: "field only", frame: "retry: 3000"},
		{name: "malformed json", frame: `data: {"type":"token","content":`, wantErr: true},
		{name: "unknown type", frame: `data: {"type":"hologram"}`, wantErr: true},
		{name: "not json", frame: "data: hello", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrame(tt.frame)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedFrame)
				assert.Nil(t, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFrameUnknownTypeKeepsCause(t *testing.T) {
	_, err := ParseFrame(`data: {"type":"hologram"}`)
	assert.ErrorIs(t, err, event.ErrUnknownType)
}

func TestParseFrameNeverPanics(t *testing.T) {
	inputs := []Frame{"", ":", "data", "data:", "\n\n\n", ": \r", "data: {", "data: null", "data: []"}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _, _ = ParseFrame(in) }, "input %q", in)
	}
}
