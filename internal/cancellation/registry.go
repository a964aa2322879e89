// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cancellation

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// =============================================================================
// TOKEN
// =============================================================================

// Token is the cancellation handle of one in-flight answer.
type Token struct {
	answerID  string
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// AnswerID returns the answer this token belongs to.
func (t *Token) AnswerID() string { return t.answerID }

// Context is cancelled together with the token. Use it for the network
// request so cancellation also tears the connection down.
func (t *Token) Context() context.Context { return t.ctx }

// IsCancelled reports whether the answer was cancelled.
func (t *Token) IsCancelled() bool {
	return t.cancelled.Load()
}

// Cancel marks the token cancelled. It reports whether this call did it.
func (t *Token) Cancel() bool {
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	t.cancel()
	return true
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps answer ids to their cancellation tokens.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// Register creates the token for answerID, derived from parent. A token
// already registered under the same id is cancelled and replaced, since each
// registration belongs to exactly one request.
func (r *Registry) Register(parent context.Context, answerID string) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	tok := &Token{answerID: answerID, ctx: ctx, cancel: cancel}

	r.mu.Lock()
	prev := r.tokens[answerID]
	r.tokens[answerID] = tok
	r.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	return tok
}

// Cancel cancels the answer. It reports false for unknown or already
// cancelled answers.
func (r *Registry) Cancel(answerID string) bool {
	r.mu.Lock()
	tok := r.tokens[answerID]
	r.mu.Unlock()

	if tok == nil {
		return false
	}
	return tok.Cancel()
}

// IsCancelled reports whether answerID is registered and cancelled.
func (r *Registry) IsCancelled(answerID string) bool {
	r.mu.Lock()
	tok := r.tokens[answerID]
	r.mu.Unlock()
	return tok != nil && tok.IsCancelled()
}

// Lookup returns the token registered for answerID.
func (r *Registry) Lookup(answerID string) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[answerID]
	return tok, ok
}

// Remove forgets the answer once it is finished. Only the given token is
// removed, so a newer registration under the same id survives.
func (r *Registry) Remove(tok *Token) {
	if tok == nil {
		return
	}
	r.mu.Lock()
	if r.tokens[tok.answerID] == tok {
		delete(r.tokens, tok.answerID)
	}
	r.mu.Unlock()
	// Release the context's resources; the cancelled flag is left untouched.
	tok.cancel()
}

// CancelAll cancels every registered answer except the ids in keep and
// returns the ids it cancelled.
func (r *Registry) CancelAll(keep ...string) []string {
	skip := make(map[string]bool, len(keep))
	for _, id := range keep {
		skip[id] = true
	}

	r.mu.Lock()
	var targets []*Token
	for id, tok := range r.tokens {
		if !skip[id] {
			targets = append(targets, tok)
		}
	}
	r.mu.Unlock()

	var cancelled []string
	for _, tok := range targets {
		if tok.Cancel() {
			cancelled = append(cancelled, tok.answerID)
		}
	}
	sort.Strings(cancelled)
	return cancelled
}

// Active returns the ids of registered answers that are not cancelled.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.tokens))
	for id, tok := range r.tokens {
		if !tok.IsCancelled() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
