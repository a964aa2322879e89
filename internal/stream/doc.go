// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream reconstructs answers from parsed stream events.
//
// Each answer is owned by one Accumulator goroutine. Inputs reach it over a
// channel, so the accumulated text, sources and pending completion are never
// shared across goroutines.
//
// The server may keep sending tokens and sources after its complete event.
// The accumulator therefore holds the completion back (the awaiting-trailing
// state) and reports it only once the transport closes or goes idle, with
// the trailing content merged in.
//
// # States
//
//	STREAMING --complete--> AWAITING_TRAILING --close/idle--> FINALIZED
//	    |                                                        ^
//	    +------close/idle with text (synthesized completion)-----+
//	    |
//	    +--error event / nothing received--> FAILED
//
// Hub keys accumulators by answer id; finished accumulators remove
// themselves from it.
package stream
