// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/staslianx/balli-sub009/internal/cancellation"
	"github.com/staslianx/balli-sub009/internal/event"
)

// DefaultIdleTimeout is how long a stream may stay silent before the
// accumulator stops waiting for it.
const DefaultIdleTimeout = 120 * time.Second

// inboxSize bounds the messages buffered ahead of the accumulator goroutine.
const inboxSize = 64

type msgKind int

const (
	msgEvent msgKind = iota
	msgClose
	msgFail
	msgSnapshot
)

type message struct {
	kind  msgKind
	ev    event.Event
	err   error
	reply chan Snapshot
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithIdleTimeout overrides DefaultIdleTimeout. Non-positive values are ignored.
func WithIdleTimeout(d time.Duration) Option {
	return func(a *Accumulator) {
		if d > 0 {
			a.idleTimeout = d
		}
	}
}

// WithToken ties the accumulator to a cancellation token. Once the token is
// cancelled no callback fires and the accumulator exits.
func WithToken(tok *cancellation.Token) Option {
	return func(a *Accumulator) {
		a.token = tok
	}
}

// withOnDone registers a hook run on the accumulator goroutine as it exits.
func withOnDone(fn func(*Accumulator)) Option {
	return func(a *Accumulator) {
		a.onDone = fn
	}
}

// Accumulator reconstructs one answer. All state below the channels is owned
// by the run goroutine.
type Accumulator struct {
	answerID    string
	idleTimeout time.Duration
	token       *cancellation.Token
	cb          Callbacks
	onDone      func(*Accumulator)

	inbox chan message
	done  chan struct{}

	// final is written once before done is closed.
	final Snapshot

	state   State
	text    strings.Builder
	tokens  int
	sources []event.Source
	pending *event.Complete
}

// NewAccumulator starts the goroutine for answerID. It runs until the
// answer finalizes or fails, the token is cancelled, or ctx is done.
func NewAccumulator(ctx context.Context, answerID string, cb Callbacks, opts ...Option) *Accumulator {
	a := &Accumulator{
		answerID:    answerID,
		idleTimeout: DefaultIdleTimeout,
		cb:          cb,
		inbox:       make(chan message, inboxSize),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = log.With(ctx, log.KV{K: "answer_id", V: answerID})
	go a.run(ctx)
	return a
}

// AnswerID returns the answer this accumulator reconstructs.
func (a *Accumulator) AnswerID() string { return a.answerID }

// Deliver hands a parsed event to the accumulator. It reports false once the
// accumulator has finished and the event was dropped.
// Thread-safe.
func (a *Accumulator) Deliver(ev event.Event) bool {
	if ev == nil {
		return false
	}
	return a.send(message{kind: msgEvent, ev: ev})
}

// CloseTransport signals a clean end of the byte stream.
// Thread-safe.
func (a *Accumulator) CloseTransport() bool {
	return a.send(message{kind: msgClose})
}

// FailTransport signals that the connection was lost for good.
// Thread-safe.
func (a *Accumulator) FailTransport(err error) bool {
	return a.send(message{kind: msgFail, err: err})
}

// Snapshot returns the current state. After the accumulator has finished it
// returns the final state.
// Thread-safe.
func (a *Accumulator) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !a.send(message{kind: msgSnapshot, reply: reply}) {
		return a.final
	}
	select {
	case s := <-reply:
		return s
	case <-a.done:
		return a.final
	}
}

// Done is closed when the accumulator goroutine exits.
func (a *Accumulator) Done() <-chan struct{} { return a.done }

func (a *Accumulator) send(m message) bool {
	select {
	case <-a.done:
		return false
	default:
	}
	select {
	case a.inbox <- m:
		return true
	case <-a.done:
		return false
	}
}

// =============================================================================
// ACTOR LOOP
// =============================================================================

func (a *Accumulator) run(ctx context.Context) {
	defer func() {
		a.final = a.snapshot()
		close(a.done)
		if a.onDone != nil {
			a.onDone(a)
		}
	}()

	var cancelled <-chan struct{}
	if a.token != nil {
		cancelled = a.token.Context().Done()
	}

	idle := time.NewTimer(a.idleTimeout)
	defer idle.Stop()

	for !a.state.Terminal() {
		select {
		case <-ctx.Done():
			log.Debug(ctx, log.KV{K: "msg", V: "accumulator_aborted"}, log.KV{K: "state", V: a.state.String()})
			return
		case <-cancelled:
			log.Debug(ctx, log.KV{K: "msg", V: "accumulator_cancelled"}, log.KV{K: "state", V: a.state.String()})
			return
		case <-idle.C:
			a.end(ctx, ReasonIdleTimeout, ErrIdleTimeout)
		case m := <-a.inbox:
			switch m.kind {
			case msgEvent:
				idle.Reset(a.idleTimeout)
				a.handle(ctx, m.ev)
			case msgClose:
				a.end(ctx, ReasonTransportClosed, ErrEmptyStream)
			case msgFail:
				a.end(ctx, ReasonTransportError, m.err)
			case msgSnapshot:
				m.reply <- a.snapshot()
			}
		}
	}
}

func (a *Accumulator) handle(ctx context.Context, ev event.Event) {
	switch ev := ev.(type) {
	case event.Token:
		if ev.Content == "" {
			return
		}
		a.text.WriteString(ev.Content)
		a.tokens++
		if a.live() && a.cb.OnToken != nil {
			a.cb.OnToken(ev.Content)
		}

	case event.SourcesReady:
		a.sources = event.MergeSources(a.sources, ev.Sources)
		if a.live() && a.cb.OnSourcesReady != nil {
			a.cb.OnSourcesReady(a.cloneSources())
		}

	case event.StageProgress:
		if a.live() && a.cb.OnStageProgress != nil {
			a.cb.OnStageProgress(ev)
		}

	case event.Complete:
		a.sources = event.MergeSources(a.sources, ev.Sources)
		if a.pending != nil {
			log.Debug(ctx, log.KV{K: "msg", V: "duplicate_complete_ignored"})
			return
		}
		c := ev
		a.pending = &c
		a.state = StateAwaitingTrailing

	case event.Error:
		if a.state == StateAwaitingTrailing {
			a.finalize(ctx, "")
			return
		}
		a.fail(ctx, &Error{Code: ev.Code, Message: ev.Message, Partial: a.text.String()})

	case event.Comment:
		if ev.IsFlush() && a.live() && a.cb.OnFlush != nil {
			a.cb.OnFlush()
		}
	}
}

// end handles the transport closing, failing or going idle. A held
// completion is released; otherwise accumulated text becomes a synthesized
// completion, and an empty stream fails with emptyErr.
func (a *Accumulator) end(ctx context.Context, reason string, emptyErr error) {
	switch {
	case a.pending != nil:
		a.finalize(ctx, "")
	case a.text.Len() > 0:
		a.finalize(ctx, reason)
	default:
		if emptyErr == nil {
			emptyErr = ErrEmptyStream
		}
		a.fail(ctx, emptyErr)
	}
}

// finalize fires OnComplete. A non-empty reason marks the result synthesized.
func (a *Accumulator) finalize(ctx context.Context, reason string) {
	a.state = StateFinalized

	res := Result{
		AnswerID: a.answerID,
		Text:     a.text.String(),
		Sources:  a.cloneSources(),
	}
	if a.pending != nil {
		res.Metadata = a.pending.Metadata.Clone()
		res.Summary = a.pending.Summary
	} else {
		res.Synthesized = true
		res.Metadata = event.Metadata{"synthesized": true, "reason": reason}
	}

	log.Debug(ctx,
		log.KV{K: "msg", V: "answer_finalized"},
		log.KV{K: "tokens", V: a.tokens},
		log.KV{K: "sources", V: len(res.Sources)},
		log.KV{K: "synthesized", V: res.Synthesized},
	)

	if a.live() && a.cb.OnComplete != nil {
		a.cb.OnComplete(res)
	}
}

func (a *Accumulator) fail(ctx context.Context, err error) {
	a.state = StateFailed
	log.Debug(ctx, log.KV{K: "msg", V: "answer_failed"}, log.KV{K: "err", V: err.Error()})
	if a.live() && a.cb.OnError != nil {
		a.cb.OnError(err)
	}
}

// live reports whether callbacks may still fire.
func (a *Accumulator) live() bool {
	return a.token == nil || !a.token.IsCancelled()
}

func (a *Accumulator) cloneSources() []event.Source {
	if a.sources == nil {
		return nil
	}
	return append([]event.Source(nil), a.sources...)
}

func (a *Accumulator) snapshot() Snapshot {
	return Snapshot{
		AnswerID: a.answerID,
		State:    a.state,
		Text:     a.text.String(),
		Sources:  a.cloneSources(),
		Tokens:   a.tokens,
	}
}
