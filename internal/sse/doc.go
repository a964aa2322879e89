// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse implements both ends of the Server-Sent Events wire format used
// for streaming answers.
//
// # Server side
//
// Emitter writes one frame per event, flushes after every write, enforces a
// per-response size ceiling and can emit keepalive comments on a timer:
//
//	sse.SetHeaders(w.Header())
//	em, err := sse.NewEmitter(w, sse.WithLimit(limit))
//	em.StartHeartbeat(15 * time.Second)
//	defer em.StopHeartbeat()
//	if !em.Emit(event.Token{Content: "Hello"}) {
//	    return // ceiling reached, the client has been told
//	}
//
// # Client side
//
// Ingestor turns raw network reads into complete frames without ever
// splitting a multi-byte UTF-8 sequence, and ParseFrame turns a frame into
// a typed event:
//
//	in := sse.NewIngestor()
//	frames, err := in.Feed(buf[:n])
//	for _, f := range frames {
//	    ev, err := sse.ParseFrame(f)
//	    ...
//	}
//
// Protocol errors (ErrMalformedFrame, ErrMalformedUTF8) are informational:
// the offending data is dropped or replaced and the stream continues.
package sse
