// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"sync"
	"time"

	"github.com/staslianx/balli-sub009/internal/cancellation"
	"github.com/staslianx/balli-sub009/internal/event"
)

// Hub routes events to the accumulator of each in-flight answer.
type Hub struct {
	idleTimeout time.Duration

	mu   sync.Mutex
	accs map[string]*Accumulator
}

// NewHub creates a Hub whose accumulators use idleTimeout (zero for the
// default).
func NewHub(idleTimeout time.Duration) *Hub {
	return &Hub{
		idleTimeout: idleTimeout,
		accs:        make(map[string]*Accumulator),
	}
}

// Open starts an accumulator for answerID. An accumulator already open under
// the same id is detached and left to finish on its own; events for the id
// go to the new one from now on.
// Thread-safe.
func (h *Hub) Open(ctx context.Context, answerID string, tok *cancellation.Token, cb Callbacks) *Accumulator {
	acc := NewAccumulator(ctx, answerID, cb,
		WithIdleTimeout(h.idleTimeout),
		WithToken(tok),
		withOnDone(h.release),
	)

	h.mu.Lock()
	h.accs[answerID] = acc
	h.mu.Unlock()

	// The accumulator may have finished before it was registered.
	select {
	case <-acc.Done():
		h.release(acc)
	default:
	}
	return acc
}

// Dispatch delivers ev to the answer's accumulator. It reports false for
// unknown or finished answers.
// Thread-safe.
func (h *Hub) Dispatch(answerID string, ev event.Event) bool {
	acc := h.Lookup(answerID)
	if acc == nil {
		return false
	}
	return acc.Deliver(ev)
}

// Close signals a clean end of the answer's transport.
// Thread-safe.
func (h *Hub) Close(answerID string) bool {
	acc := h.Lookup(answerID)
	if acc == nil {
		return false
	}
	return acc.CloseTransport()
}

// Fail signals that the answer's transport is gone for good.
// Thread-safe.
func (h *Hub) Fail(answerID string, err error) bool {
	acc := h.Lookup(answerID)
	if acc == nil {
		return false
	}
	return acc.FailTransport(err)
}

// Remove forgets the answer without waiting for its accumulator.
// Thread-safe.
func (h *Hub) Remove(answerID string) {
	h.mu.Lock()
	delete(h.accs, answerID)
	h.mu.Unlock()
}

// Lookup returns the open accumulator for answerID, or nil.
// Thread-safe.
func (h *Hub) Lookup(answerID string) *Accumulator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.accs[answerID]
}

// release drops acc if it is still the accumulator registered for its id.
func (h *Hub) release(acc *Accumulator) {
	if acc == nil {
		return
	}
	h.mu.Lock()
	if h.accs[acc.answerID] == acc {
		delete(h.accs, acc.answerID)
	}
	h.mu.Unlock()
}
