// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"goa.design/clue/log"

	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/producer"
	"github.com/staslianx/balli-sub009/internal/reconnect"
	"github.com/staslianx/balli-sub009/internal/sse"
)

// readBufferSize is the size of each body read.
const readBufferSize = 4096

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

// connect streams one answer into the hub, retrying under the reconnect
// policy until something has been delivered. It returns when the stream
// ends, fails for good, or ctx is done.
func (s *Session) connect(ctx context.Context, req producer.Request) {
	id := req.AnswerID

	body, err := json.Marshal(req)
	if err != nil {
		s.hub.Fail(id, fmt.Errorf("encode request: %w", err))
		return
	}

	ctrl := reconnect.New(s.opts.Reconnect)
	ctrl.OnReconnecting = func(attempt int, err error, delay time.Duration) {
		s.metrics.Reconnecting(ctx)
		log.Info(ctx,
			log.KV{K: "msg", V: "reconnecting"},
			log.KV{K: "attempt", V: attempt},
			log.KV{K: "delay_ms", V: delay.Milliseconds()},
			log.KV{K: "err", V: err.Error()},
		)
		if s.cb.OnReconnecting != nil {
			s.report(id, func() { s.cb.OnReconnecting(id, attempt) })
		}
	}
	ctrl.OnReconnected = func(attempt int) {
		log.Info(ctx, log.KV{K: "msg", V: "reconnected"}, log.KV{K: "attempt", V: attempt})
		if s.cb.OnReconnected != nil {
			s.report(id, func() { s.cb.OnReconnected(id, attempt) })
		}
	}

	err = ctrl.Run(ctx, func(ctx context.Context, connected func()) error {
		var delivered bool
		err := s.attempt(ctx, id, body, connected, &delivered)
		if err != nil && delivered {
			// Retries only happen before the first delivered event.
			return reconnect.Permanent(err)
		}
		return err
	})

	switch {
	case err == nil:
		s.hub.Close(id)
	case ctx.Err() != nil:
		// Cancelled or superseded: the accumulator exits on its own.
	default:
		log.Debug(ctx, log.KV{K: "msg", V: "stream_failed"}, log.KV{K: "err", V: err.Error()})
		s.hub.Fail(id, err)
	}
}

// attempt performs one request and pumps its body into the hub. delivered
// is set once an event other than a comment has been handed over.
func (s *Session) attempt(ctx context.Context, id string, body []byte, connected func(), delivered *bool) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	var timer *time.Timer
	if s.opts.ConnectTimeout > 0 {
		timer = time.AfterFunc(s.opts.ConnectTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.opts.ServerURL+StreamPath, bytes.NewReader(body))
	if err != nil {
		return reconnect.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if s.opts.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.opts.AuthToken)
	}

	resp, err := s.opts.HTTPClient.Do(httpReq)
	if timer != nil && !timer.Stop() && timedOut.Load() && ctx.Err() == nil {
		if err == nil {
			resp.Body.Close()
		}
		return ErrConnectTimeout
	}
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &reconnect.StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	connected()

	in := sse.NewIngestor(
		sse.WithDecodeThreshold(s.opts.DecodeThreshold),
		sse.WithMaxWithheld(s.opts.MaxWithheld),
	)
	buf := make([]byte, readBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			frames, ferr := in.Feed(buf[:n])
			s.dropped(ctx, "utf8", ferr)
			s.dispatch(ctx, id, frames, delivered)
		}
		if errors.Is(rerr, io.EOF) {
			frames, ferr := in.Close()
			s.dropped(ctx, "utf8", ferr)
			s.dispatch(ctx, id, frames, delivered)
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read stream: %w", rerr)
		}
	}
}

// dispatch parses frames and hands their events to the answer's accumulator.
// Malformed frames are dropped.
func (s *Session) dispatch(ctx context.Context, id string, frames []sse.Frame, delivered *bool) {
	for _, f := range frames {
		ev, err := sse.ParseFrame(f)
		if err != nil {
			s.dropped(ctx, "malformed", err)
			continue
		}
		if ev == nil {
			continue
		}
		if _, ok := ev.(event.Comment); !ok {
			*delivered = true
		}
		s.hub.Dispatch(id, ev)
	}
}

func (s *Session) dropped(ctx context.Context, reason string, err error) {
	if err == nil {
		return
	}
	s.metrics.FrameDropped(ctx, reason)
	log.Debug(ctx, log.KV{K: "msg", V: "frame_dropped"}, log.KV{K: "reason", V: reason}, log.KV{K: "err", V: err.Error()})
}
