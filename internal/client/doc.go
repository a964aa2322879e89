// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client requests answers from the stream server and rebuilds them.
//
// A Session wires the reconstruction pipeline for every answer it asks for:
//
//	HTTP body -> sse.Ingestor -> sse.ParseFrame -> stream.Hub -> pacing.Engine -> Callbacks
//
// Each answer has its own connection goroutine, accumulator and pacing
// queue, and its own cancellation token. Connection attempts are retried
// with backoff until the first event is delivered; after that a lost
// connection ends the answer with whatever text arrived.
//
// Usage:
//
//	s := client.NewSession(ctx, client.OptionsFromConfig(cfg), client.Callbacks{
//		OnDisplay:  func(id, prefix string) { render(prefix) },
//		OnComplete: func(id string, res stream.Result) { done(res) },
//	})
//	defer s.Close()
//	id, err := s.Ask(ctx, "What is a glycemic index?", client.AskOptions{Supersede: true})
package client
