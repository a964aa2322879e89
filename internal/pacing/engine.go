// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pacing

import (
	"strings"
	"sync"
	"time"

	"github.com/rivo/uniseg"
)

// =============================================================================
// ENGINE
// =============================================================================

// DeliverFunc receives the growing displayed prefix of an answer.
//
// It runs on the answer's drain goroutine and must not call Cancel or Close
// on the same Engine for the same answer.
type DeliverFunc func(answerID, text string)

// Engine re-times answer text for display. Each answer gets its own FIFO of
// pending text and a single drain goroutine; answers animate independently.
type Engine struct {
	cfg     Config
	deliver DeliverFunc

	mu     sync.Mutex
	queues map[string]*queue
	closed bool
}

// queue is the animation state of one answer.
type queue struct {
	id string

	// mu guards the fields below.
	mu        sync.Mutex
	chunks    []string
	shown     strings.Builder
	flush     bool
	finalized bool
	onDrained func(text string)
	cancelled bool

	// deliverMu is held while the deliver callback runs, so Cancel can wait
	// for an in-flight delivery to finish.
	deliverMu sync.Mutex

	wake     chan struct{}
	flushReq chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates an Engine. A nil deliver discards output.
func New(cfg Config, deliver DeliverFunc) *Engine {
	if deliver == nil {
		deliver = func(string, string) {}
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		deliver: deliver,
		queues:  make(map[string]*queue),
	}
}

// Enqueue appends text to the answer's queue, starting its drain goroutine
// on first use. Enqueue never blocks on the drain rate.
// Thread-safe.
func (e *Engine) Enqueue(answerID, text string) {
	if text == "" {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	q, ok := e.queues[answerID]
	if !ok {
		q = &queue{
			id:       answerID,
			wake:     make(chan struct{}, 1),
			flushReq: make(chan struct{}, 1),
			stop:     make(chan struct{}),
			done:     make(chan struct{}),
		}
		e.queues[answerID] = q
		go e.drain(q)
	}
	e.mu.Unlock()

	q.mu.Lock()
	q.chunks = append(q.chunks, text)
	q.mu.Unlock()
	q.signal()
}

// Flush delivers everything queued for the answer in one step.
// Thread-safe.
func (e *Engine) Flush(answerID string) {
	q := e.lookup(answerID)
	if q == nil {
		return
	}
	q.mu.Lock()
	q.flush = true
	q.mu.Unlock()
	q.signal()
	select {
	case q.flushReq <- struct{}{}:
	default:
	}
}

// Finalize marks the answer as fully received. Once its queue drains the
// engine drops it and calls onDrained with the full displayed text.
// It returns false when the answer has no queue, for example because it
// never produced text or was cancelled.
// Thread-safe.
func (e *Engine) Finalize(answerID string, onDrained func(text string)) bool {
	q := e.lookup(answerID)
	if q == nil {
		return false
	}
	q.mu.Lock()
	if q.cancelled {
		q.mu.Unlock()
		return false
	}
	q.finalized = true
	q.onDrained = onDrained
	q.mu.Unlock()
	q.signal()
	return true
}

// Cancel stops the answer's animation and discards its queue. No delivery
// for the answer happens after Cancel returns.
// Thread-safe.
func (e *Engine) Cancel(answerID string) bool {
	e.mu.Lock()
	q, ok := e.queues[answerID]
	delete(e.queues, answerID)
	e.mu.Unlock()

	if !ok {
		return false
	}
	q.cancel()
	return true
}

// Displayed returns the text shown so far for an active answer.
// Thread-safe.
func (e *Engine) Displayed(answerID string) string {
	q := e.lookup(answerID)
	if q == nil {
		return ""
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shown.String()
}

// Pending returns the number of bytes queued but not yet displayed.
// Thread-safe.
func (e *Engine) Pending(answerID string) int {
	q := e.lookup(answerID)
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.chunks {
		n += len(c)
	}
	return n
}

// Active returns the number of answers currently animating.
// Thread-safe.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queues)
}

// Close cancels every answer and waits for the drain goroutines to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	queues := e.queues
	e.queues = make(map[string]*queue)
	e.mu.Unlock()

	for _, q := range queues {
		q.cancel()
		<-q.done
	}
}

func (e *Engine) lookup(answerID string) *queue {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queues[answerID]
}

// release drops q from the map if it is still the registered queue.
func (e *Engine) release(q *queue) {
	e.mu.Lock()
	if e.queues[q.id] == q {
		delete(e.queues, q.id)
	}
	e.mu.Unlock()
}

// =============================================================================
// DRAIN LOOP
// =============================================================================

// drain delivers one display unit at a time, sleeping the unit's delay
// between deliveries.
func (e *Engine) drain(q *queue) {
	defer close(q.done)

	for {
		q.mu.Lock()
		if q.cancelled {
			q.mu.Unlock()
			return
		}

		if len(q.chunks) == 0 {
			q.flush = false
			if q.finalized {
				onDrained := q.onDrained
				text := q.shown.String()
				q.cancelled = true
				q.mu.Unlock()

				e.release(q)
				if onDrained != nil {
					onDrained(text)
				}
				return
			}
			q.mu.Unlock()

			select {
			case <-q.wake:
				continue
			case <-q.stop:
				return
			}
		}

		unit := q.next()
		q.shown.WriteString(unit)
		shown := q.shown.String()
		flushing := q.flush
		q.mu.Unlock()

		if !q.deliverUnit(e.deliver, shown) {
			return
		}

		if flushing {
			continue
		}
		if d := e.cfg.DelayFor(unit); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-q.stop:
				timer.Stop()
				return
			case <-q.flushReq:
				timer.Stop()
			}
		}
	}
}

// next pops the next display unit. While flushing it pops everything.
// Caller holds q.mu.
func (q *queue) next() string {
	if q.flush {
		unit := strings.Join(q.chunks, "")
		q.chunks = nil
		return unit
	}

	head := q.chunks[0]
	cluster, rest, _, _ := uniseg.FirstGraphemeClusterInString(head, -1)
	if rest == "" {
		q.chunks[0] = ""
		q.chunks = q.chunks[1:]
	} else {
		q.chunks[0] = rest
	}
	return cluster
}

// deliverUnit calls deliver unless the queue was cancelled meanwhile.
func (q *queue) deliverUnit(deliver DeliverFunc, shown string) bool {
	q.deliverMu.Lock()
	defer q.deliverMu.Unlock()

	q.mu.Lock()
	cancelled := q.cancelled
	q.mu.Unlock()
	if cancelled {
		return false
	}

	deliver(q.id, shown)
	return true
}

// signal wakes the drain goroutine without blocking.
func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// cancel marks the queue cancelled and waits for an in-flight delivery.
func (q *queue) cancel() {
	q.mu.Lock()
	q.cancelled = true
	q.chunks = nil
	q.mu.Unlock()

	q.stopOnce.Do(func() { close(q.stop) })

	q.deliverMu.Lock()
	q.deliverMu.Unlock() //nolint:staticcheck // wait for the in-flight delivery
}
