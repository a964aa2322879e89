// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName scopes every instrument of this module.
const meterName = "github.com/staslianx/balli-sub009"

// =============================================================================
// SERVER SIDE
// =============================================================================

// Stats are the in-process totals served by the stats endpoint.
type Stats struct {
	Responses    int64 `json:"responses"`
	Truncated    int64 `json:"truncated"`
	Failed       int64 `json:"failed"`
	InFlight     int64 `json:"in_flight"`
	BytesWritten int64 `json:"bytes_written"`
	Frames       int64 `json:"frames"`
}

// Outcome describes a finished response.
type Outcome struct {
	Bytes     int64
	Frames    int
	Truncated bool
	Failed    bool
}

// StreamMetrics records server-side stream activity.
type StreamMetrics struct {
	responses metric.Int64Counter
	bytes     metric.Int64Counter
	inFlight  metric.Int64UpDownCounter
	duration  metric.Float64Histogram

	nResponses atomic.Int64
	nTruncated atomic.Int64
	nFailed    atomic.Int64
	nInFlight  atomic.Int64
	nBytes     atomic.Int64
	nFrames    atomic.Int64
}

// NewStreamMetrics creates the instruments on the global MeterProvider.
func NewStreamMetrics() *StreamMetrics {
	meter := otel.Meter(meterName + "/server")
	m := &StreamMetrics{}

	var err error
	if m.responses, err = meter.Int64Counter("balli.stream.responses",
		metric.WithDescription("Streamed responses by outcome")); err != nil {
		otel.Handle(err)
		m.responses = noop.Int64Counter{}
	}
	if m.bytes, err = meter.Int64Counter("balli.stream.bytes",
		metric.WithDescription("Bytes written to stream responses"), metric.WithUnit("By")); err != nil {
		otel.Handle(err)
		m.bytes = noop.Int64Counter{}
	}
	if m.inFlight, err = meter.Int64UpDownCounter("balli.stream.in_flight",
		metric.WithDescription("Responses currently streaming")); err != nil {
		otel.Handle(err)
		m.inFlight = noop.Int64UpDownCounter{}
	}
	if m.duration, err = meter.Float64Histogram("balli.stream.duration",
		metric.WithDescription("Response stream duration"), metric.WithUnit("s")); err != nil {
		otel.Handle(err)
		m.duration = noop.Float64Histogram{}
	}
	return m
}

// ResponseStarted marks a response in flight. The returned func must be
// called exactly once when the response ends.
// Thread-safe.
func (m *StreamMetrics) ResponseStarted(ctx context.Context) func(context.Context, Outcome) {
	start := time.Now()
	m.nInFlight.Add(1)
	m.inFlight.Add(ctx, 1)

	return func(ctx context.Context, out Outcome) {
		m.nInFlight.Add(-1)
		m.inFlight.Add(ctx, -1)

		m.nResponses.Add(1)
		m.nBytes.Add(out.Bytes)
		m.nFrames.Add(int64(out.Frames))

		result := "ok"
		switch {
		case out.Truncated:
			result = "truncated"
			m.nTruncated.Add(1)
		case out.Failed:
			result = "failed"
			m.nFailed.Add(1)
		}

		attrs := metric.WithAttributes(attribute.String("outcome", result))
		m.responses.Add(ctx, 1, attrs)
		m.bytes.Add(ctx, out.Bytes)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

// Snapshot returns the current totals.
// Thread-safe.
func (m *StreamMetrics) Snapshot() Stats {
	return Stats{
		Responses:    m.nResponses.Load(),
		Truncated:    m.nTruncated.Load(),
		Failed:       m.nFailed.Load(),
		InFlight:     m.nInFlight.Load(),
		BytesWritten: m.nBytes.Load(),
		Frames:       m.nFrames.Load(),
	}
}

// =============================================================================
// CLIENT SIDE
// =============================================================================

// ClientMetrics records client-side reconstruction activity.
type ClientMetrics struct {
	reconnects metric.Int64Counter
	dropped    metric.Int64Counter
	answers    metric.Int64Counter
}

// NewClientMetrics creates the instruments on the global MeterProvider.
func NewClientMetrics() *ClientMetrics {
	meter := otel.Meter(meterName + "/client")
	m := &ClientMetrics{}

	var err error
	if m.reconnects, err = meter.Int64Counter("balli.client.reconnects",
		metric.WithDescription("Reconnection attempts")); err != nil {
		otel.Handle(err)
		m.reconnects = noop.Int64Counter{}
	}
	if m.dropped, err = meter.Int64Counter("balli.client.frames_dropped",
		metric.WithDescription("Frames dropped as protocol errors")); err != nil {
		otel.Handle(err)
		m.dropped = noop.Int64Counter{}
	}
	if m.answers, err = meter.Int64Counter("balli.client.answers",
		metric.WithDescription("Finished answers by outcome")); err != nil {
		otel.Handle(err)
		m.answers = noop.Int64Counter{}
	}
	return m
}

// Reconnecting counts one retry.
func (m *ClientMetrics) Reconnecting(ctx context.Context) {
	m.reconnects.Add(ctx, 1)
}

// FrameDropped counts a frame discarded for reason.
func (m *ClientMetrics) FrameDropped(ctx context.Context, reason string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// AnswerFinished counts an answer by outcome ("complete", "synthesized",
// "failed", "cancelled").
func (m *ClientMetrics) AnswerFinished(ctx context.Context, outcome string) {
	m.answers.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
