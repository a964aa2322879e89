// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server streams answers to clients over Server-Sent Events.
//
// # Endpoints
//
//   - POST /v1/answers/stream - stream one answer as SSE frames
//   - GET  /health            - health check
//   - GET  /v1/stream/stats   - stream totals (responses, truncations, bytes)
//
// Each stream request runs the configured producer on the request goroutine
// and writes its output through an sse.Emitter: one frame per event, flushed
// immediately, with keep-alive comments while the producer is quiet and a
// "flush-tokens" comment ahead of the completion. The response stops at the
// configured size ceiling after a single truncation error.
//
// # Middleware
//
//   - Request logging with the clue log context attached to each request
//   - Panic recovery
//   - Security headers
//   - CORS for configured origins ("http://localhost:*" matches any port)
//   - Per-client token-bucket rate limiting
//   - Optional bearer token authentication with constant-time comparison
//
// # Usage
//
//	srv := server.New(cfg, producer.NewDemo(cfg.Server.ProducerDelay())).
//		WithLogContext(ctx)
//	go srv.Start()
//	defer srv.Shutdown(context.Background())
package server
