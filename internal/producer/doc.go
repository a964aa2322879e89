// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package producer defines where answer content comes from.
//
// The server streams whatever a Producer emits: text chunks become token
// events, side-channel events (stage progress, sources, completion) pass
// through unchanged. The model call behind a real producer lives outside
// this module; Scripted replays a fixed answer for demos and tests.
package producer
