// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package event defines the wire events exchanged between the answer server
// and its streaming clients.
//
// Every event is a small immutable value implementing Event. On the wire a
// data event is a JSON object carrying a "type" discriminator; comments are
// plain text lines and never carry JSON.
//
// # Key Types
//
//   - Token: one chunk of answer text
//   - SourcesReady: sources discovered while the answer is generated
//   - StageProgress: a human readable progress marker
//   - Complete: the logical end of an answer (sources, metadata, summary)
//   - Error: a terminal server-side error such as response truncation
//   - Comment: keepalive and flush-tokens signals
//
// # Usage
//
//	data, err := event.Marshal(event.Token{Content: "Hello"})
//	// {"type":"token","content":"Hello"}
//
//	ev, err := event.Unmarshal(data)
//	if tok, ok := ev.(event.Token); ok {
//	    fmt.Print(tok.Content)
//	}
package event
