// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package answer renders one streaming answer in the terminal.
//
// Two renderers share the client.Callbacks surface:
//
//   - Model is a Bubble Tea model. Callbacks(p.Send) turns session
//     callbacks into messages for it; it shows a spinner with the current
//     stage, the paced answer text, and the sources once they arrive.
//   - Console writes the same answer incrementally to a plain writer, for
//     pipes and terminals without cursor control. Colors come from termenv
//     and degrade to plain text.
//
// Usage:
//
//	m := answer.New(id, question, cancel)
//	p := tea.NewProgram(m)
//	s := client.NewSession(ctx, opts, answer.Callbacks(p.Send))
//	s.Ask(ctx, question, client.AskOptions{AnswerID: id})
//	final, err := p.Run()
package answer
