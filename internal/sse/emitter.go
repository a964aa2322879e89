// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/staslianx/balli-sub009/internal/event"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// HardCap is the largest response the transport in front of us accepts.
	HardCap int64 = 10 << 20

	// DefaultLimit leaves room under HardCap for the truncation notice.
	DefaultLimit int64 = HardCap - 512<<10

	// DefaultHeartbeatInterval keeps idle proxies from closing the connection.
	DefaultHeartbeatInterval = 15 * time.Second
)

var (
	// ErrFlusherNotSupported is returned when the response writer cannot flush.
	ErrFlusherNotSupported = errors.New("sse: response writer does not support flushing")

	// ErrLimitReached is reported by Err after the size ceiling truncated the response.
	ErrLimitReached = errors.New("sse: response size limit reached")
)

// SetHeaders sets the response headers required for an unbuffered event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	h.Set("Transfer-Encoding", "chunked")
}

// EncodeFrame serializes ev into a complete wire frame.
func EncodeFrame(ev event.Event) ([]byte, error) {
	if c, ok := ev.(event.Comment); ok {
		text := strings.ReplaceAll(c.Text, "\n", " ")
		return []byte(": " + text + "\n\n"), nil
	}

	payload, err := event.Marshal(ev)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// =============================================================================
// EMITTER
// =============================================================================

// Emitter writes events to a single streaming response.
//
// Emit and the heartbeat goroutine may run concurrently; writes are
// serialized. The byte counter is scoped to this response.
type Emitter struct {
	mu        sync.Mutex
	w         io.Writer
	flusher   http.Flusher
	limit     int64
	written   int64
	frames    int
	truncated bool
	err       error

	hbMu   sync.Mutex
	hbStop chan struct{}
	hbDone chan struct{}
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithLimit sets the per-response size ceiling in bytes.
// Values outside (0, HardCap] fall back to DefaultLimit.
func WithLimit(limit int64) EmitterOption {
	return func(e *Emitter) {
		if limit > 0 && limit <= HardCap {
			e.limit = limit
		}
	}
}

// NewEmitter wraps w for streaming. Headers must already be set.
func NewEmitter(w http.ResponseWriter, opts ...EmitterOption) (*Emitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrFlusherNotSupported
	}

	e := &Emitter{
		w:       w,
		flusher: flusher,
		limit:   DefaultLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Emit writes ev as one frame and flushes it.
//
// It returns false once the response can take no more frames: either the
// size ceiling was reached (a single truncation Error has then been written)
// or the client went away. Callers must stop emitting on false.
// Events that cannot be encoded are skipped.
func (e *Emitter) Emit(ev event.Event) bool {
	frame, err := EncodeFrame(ev)
	if err != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return !e.truncated && e.err == nil
	}
	return e.write(frame)
}

// EmitComment writes a ": text" comment frame.
func (e *Emitter) EmitComment(text string) bool {
	frame, _ := EncodeFrame(event.Comment{Text: text})
	return e.write(frame)
}

func (e *Emitter) write(frame []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.truncated || e.err != nil {
		return false
	}

	if e.written+int64(len(frame)) > e.limit {
		e.truncated = true
		notice, _ := EncodeFrame(event.Error{
			Message: fmt.Sprintf("response truncated after %d bytes", e.written),
			Code:    event.CodeResponseTruncated,
		})
		e.writeLocked(notice)
		return false
	}

	return e.writeLocked(frame)
}

func (e *Emitter) writeLocked(frame []byte) bool {
	n, err := e.w.Write(frame)
	e.written += int64(n)
	if err != nil {
		e.err = err
		return false
	}
	e.frames++
	e.flusher.Flush()
	return true
}

// Written returns the number of bytes written to this response.
func (e *Emitter) Written() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.written
}

// Frames returns the number of frames written, including the truncation notice.
func (e *Emitter) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Truncated reports whether the size ceiling was reached.
func (e *Emitter) Truncated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.truncated
}

// Err returns the write error that stopped the emitter, ErrLimitReached after
// truncation, or nil.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	if e.truncated {
		return ErrLimitReached
	}
	return nil
}

// =============================================================================
// HEARTBEAT
// =============================================================================

// StartHeartbeat emits a keepalive comment every interval until StopHeartbeat
// is called or the emitter stops accepting frames. Calling it while a
// heartbeat is running does nothing.
func (e *Emitter) StartHeartbeat(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	e.hbMu.Lock()
	defer e.hbMu.Unlock()
	if e.hbStop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	e.hbStop, e.hbDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !e.EmitComment(event.CommentKeepalive) {
					return
				}
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat and waits for its goroutine to exit, so
// no write can happen after it returns. Safe to call more than once.
func (e *Emitter) StopHeartbeat() {
	e.hbMu.Lock()
	stop, done := e.hbStop, e.hbDone
	e.hbStop, e.hbDone = nil, nil
	e.hbMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
