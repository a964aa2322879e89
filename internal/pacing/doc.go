// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pacing animates answer text at a reading pace, independent of how
// bursty the network delivers it.
//
// Text is split into grapheme clusters so a combined character or emoji is
// always shown whole. Every delivery is a prefix of the next one.
//
// # Usage
//
//	eng := pacing.New(pacing.DefaultConfig(), func(answerID, text string) {
//	    view.SetAnswer(answerID, text)
//	})
//	eng.Enqueue(id, "The")
//	eng.Enqueue(id, " answer.")
//	eng.Finalize(id, func(text string) { view.Done(id) })
package pacing
