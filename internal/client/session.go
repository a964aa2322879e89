// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/staslianx/balli-sub009/internal/cancellation"
	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/pacing"
	"github.com/staslianx/balli-sub009/internal/producer"
	"github.com/staslianx/balli-sub009/internal/stream"
	"github.com/staslianx/balli-sub009/internal/telemetry"
)

// Outcomes reported to ClientMetrics.AnswerFinished.
const (
	outcomeComplete    = "complete"
	outcomeSynthesized = "synthesized"
	outcomeFailed      = "failed"
	outcomeCancelled   = "cancelled"
)

// closedChan is returned by Done for answers that are not in flight.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// AskOptions controls a single Ask.
type AskOptions struct {
	// AnswerID names the answer. A random id is generated when empty.
	AnswerID string

	// Supersede cancels every answer still in flight before starting.
	Supersede bool
}

// answer tracks one in-flight answer until its last callback.
type answer struct {
	tok      *cancellation.Token
	finished chan struct{}
	ended    sync.Once

	// mu is held while a user callback for the answer runs.
	mu sync.Mutex
}

// call runs fn unless the answer was cancelled.
func (a *answer) call(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.tok.IsCancelled() {
		fn()
	}
}

// end reports whether this is the first end of the answer.
func (a *answer) end() bool {
	first := false
	a.ended.Do(func() { first = true })
	return first
}

// Session runs concurrent answers against one server. Each answer gets its
// own connection, accumulator and pacing queue; they share nothing else.
//
// Callbacks must not cancel the answer they are reporting on.
type Session struct {
	opts    Options
	cb      Callbacks
	metrics *telemetry.ClientMetrics

	registry *cancellation.Registry
	hub      *stream.Hub
	pacer    *pacing.Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	answers map[string]*answer
	closed  bool
}

// NewSession creates a session. ctx carries the log context and bounds the
// session's lifetime.
func NewSession(ctx context.Context, opts Options, cb Callbacks) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.withDefaults()

	s := &Session{
		opts:     opts,
		cb:       cb,
		metrics:  opts.Metrics,
		registry: cancellation.NewRegistry(),
		hub:      stream.NewHub(opts.IdleTimeout),
		answers:  make(map[string]*answer),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.pacer = pacing.New(opts.Pacing, s.display)
	return s
}

// Ask starts streaming an answer to question and returns its id. Progress is
// reported through the session callbacks.
// Thread-safe.
func (s *Session) Ask(ctx context.Context, question string, opts AskOptions) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if ctx == nil {
		ctx = s.ctx
	}

	id := opts.AnswerID
	if id == "" {
		id = uuid.NewString()
	}

	if opts.Supersede {
		s.cancelAll(id)
	}
	// Re-asking under a live id replaces the earlier answer.
	s.Cancel(id)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	tok := s.registry.Register(ctx, id)
	a := &answer{tok: tok, finished: make(chan struct{})}
	s.answers[id] = a
	s.wg.Add(1)
	s.mu.Unlock()

	logCtx := log.With(s.ctx, log.KV{K: "answer_id", V: id})
	acc := s.hub.Open(logCtx, id, tok, s.streamCallbacks(id, a))

	go func() {
		defer s.wg.Done()

		connCtx, stop := context.WithCancel(log.WithContext(tok.Context(), logCtx))
		go func() {
			select {
			case <-acc.Done():
				stop()
			case <-connCtx.Done():
			}
		}()
		s.connect(connCtx, producer.Request{AnswerID: id, Question: question})
		stop()

		<-acc.Done()
		s.registry.Remove(tok)
	}()

	log.Debug(logCtx, log.KV{K: "msg", V: "answer_requested"}, log.KV{K: "supersede", V: opts.Supersede})
	return id, nil
}

// Cancel stops the answer. No callback fires for it after Cancel returns.
// It reports false for unknown or finished answers.
// Thread-safe.
func (s *Session) Cancel(answerID string) bool {
	a := s.lookup(answerID)
	if a == nil || !a.tok.Cancel() {
		return false
	}
	s.abandon(answerID, a)
	return true
}

// CancelAll cancels every answer in flight except the ids in keep and
// returns the ids it cancelled, sorted.
// Thread-safe.
func (s *Session) CancelAll(keep ...string) []string {
	return s.cancelAll(keep...)
}

func (s *Session) cancelAll(keep ...string) []string {
	skip := make(map[string]bool, len(keep))
	for _, id := range keep {
		skip[id] = true
	}

	s.mu.Lock()
	targets := make(map[string]*answer)
	for id, a := range s.answers {
		if !skip[id] {
			targets[id] = a
		}
	}
	s.mu.Unlock()

	var cancelled []string
	for id, a := range targets {
		if a.tok.Cancel() {
			cancelled = append(cancelled, id)
			s.abandon(id, a)
		}
	}

	// Answers that already reported their end may still hold a connection.
	s.registry.CancelAll(keep...)

	sort.Strings(cancelled)
	return cancelled
}

// Done returns a channel closed after the answer's last callback. For
// answers that are not in flight the channel is already closed.
// Thread-safe.
func (s *Session) Done(answerID string) <-chan struct{} {
	if a := s.lookup(answerID); a != nil {
		return a.finished
	}
	return closedChan
}

// Wait blocks until the answer is done or ctx ends.
func (s *Session) Wait(ctx context.Context, answerID string) error {
	select {
	case <-s.Done(answerID):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the ids of answers that have not ended yet, sorted.
// Thread-safe.
func (s *Session) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.answers))
	for id := range s.answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the accumulated state of an answer still receiving data.
// Thread-safe.
func (s *Session) Snapshot(answerID string) (stream.Snapshot, bool) {
	acc := s.hub.Lookup(answerID)
	if acc == nil {
		return stream.Snapshot{}, false
	}
	return acc.Snapshot(), true
}

// Close cancels every answer and waits for their goroutines.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancelAll()
	s.cancel()
	s.wg.Wait()
	s.pacer.Close()
	return nil
}

// =============================================================================
// PIPELINE
// =============================================================================

// streamCallbacks connects the accumulator of one answer to the pacing
// engine and the session callbacks.
func (s *Session) streamCallbacks(id string, a *answer) stream.Callbacks {
	return stream.Callbacks{
		OnToken: func(text string) {
			if s.cb.OnToken != nil {
				a.call(func() { s.cb.OnToken(id, text) })
			}
			s.pacer.Enqueue(id, text)
			if a.tok.IsCancelled() {
				// Cancel may have cleared the queue before this Enqueue.
				s.pacer.Cancel(id)
			}
		},
		OnSourcesReady: func(sources []event.Source) {
			if s.cb.OnSourcesReady != nil {
				a.call(func() { s.cb.OnSourcesReady(id, sources) })
			}
		},
		OnStageProgress: func(stage event.StageProgress) {
			if s.cb.OnStageProgress != nil {
				a.call(func() { s.cb.OnStageProgress(id, stage) })
			}
		},
		OnFlush: func() {
			s.pacer.Flush(id)
		},
		OnComplete: func(res stream.Result) {
			outcome := outcomeComplete
			if res.Synthesized {
				outcome = outcomeSynthesized
			}
			done := func(string) {
				s.finish(id, a, outcome, func() {
					if s.cb.OnComplete != nil {
						s.cb.OnComplete(id, res)
					}
				})
			}
			if !s.pacer.Finalize(id, done) {
				done("")
			}
		},
		OnError: func(err error) {
			done := func(string) {
				s.finish(id, a, outcomeFailed, func() {
					if s.cb.OnError != nil {
						s.cb.OnError(id, err)
					}
				})
			}
			s.pacer.Flush(id)
			if !s.pacer.Finalize(id, done) {
				done("")
			}
		},
	}
}

// display forwards paced text for answers that are still live.
func (s *Session) display(id, prefix string) {
	if s.cb.OnDisplay == nil {
		return
	}
	s.report(id, func() { s.cb.OnDisplay(id, prefix) })
}

// report runs fn for an answer that has not ended or been cancelled.
func (s *Session) report(id string, fn func()) {
	if a := s.lookup(id); a != nil {
		a.call(fn)
	}
}

func (s *Session) lookup(id string) *answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[id]
}

// finish ends the answer and runs its last callback, unless it was
// cancelled first.
func (s *Session) finish(id string, a *answer, outcome string, last func()) {
	if !a.end() {
		return
	}
	s.forget(id, a)
	a.call(last)
	s.metrics.AnswerFinished(s.ctx, outcome)
	close(a.finished)
}

// abandon tears down a cancelled answer. It returns once no callback for
// the answer is running.
func (s *Session) abandon(id string, a *answer) {
	s.pacer.Cancel(id)

	// Wait out a callback that started before the cancel.
	a.mu.Lock()
	a.mu.Unlock() //nolint:staticcheck

	if !a.end() {
		return
	}
	s.forget(id, a)
	s.metrics.AnswerFinished(s.ctx, outcomeCancelled)
	log.Debug(s.ctx, log.KV{K: "msg", V: "answer_cancelled"}, log.KV{K: "answer_id", V: id})
	close(a.finished)
}

func (s *Session) forget(id string, a *answer) {
	s.mu.Lock()
	if s.answers[id] == a {
		delete(s.answers, id)
	}
	s.mu.Unlock()
}
