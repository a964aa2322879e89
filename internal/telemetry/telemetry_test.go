// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/clue/log"
)

func TestLogContextJSON(t *testing.T) {
	var buf bytes.Buffer
	ctx := LogContext(context.Background(), LogOptions{Format: "json", Output: &buf})

	log.Info(ctx, log.KV{K: "msg", V: "server_start"}, log.KV{K: "addr", V: "127.0.0.1:8787"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "server_start", entry["msg"])
	assert.Equal(t, "127.0.0.1:8787", entry["addr"])
}

func TestLogContextDebug(t *testing.T) {
	var quiet, loud bytes.Buffer

	ctx := LogContext(context.Background(), LogOptions{Format: "json", Output: &quiet})
	log.Debug(ctx, log.KV{K: "msg", V: "hidden"})
	assert.NotContains(t, quiet.String(), "hidden")

	ctx = LogContext(context.Background(), LogOptions{Format: "terminal", Output: &loud, Debug: true})
	log.Debug(ctx, log.KV{K: "msg", V: "shown"})
	assert.Contains(t, loud.String(), "shown")
}

func TestStreamMetricsSnapshot(t *testing.T) {
	m := NewStreamMetrics()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			done := m.ResponseStarted(ctx)
			done(ctx, Outcome{Bytes: 100, Frames: 3, Truncated: i == 0, Failed: i == 1})
		}(i)
	}
	wg.Wait()

	open := m.ResponseStarted(ctx)
	stats := m.Snapshot()
	assert.Equal(t, Stats{
		Responses:    10,
		Truncated:    1,
		Failed:       1,
		InFlight:     1,
		BytesWritten: 1000,
		Frames:       30,
	}, stats)

	open(ctx, Outcome{})
	assert.Zero(t, m.Snapshot().InFlight)
}

func TestClientMetricsNoProvider(t *testing.T) {
	m := NewClientMetrics()
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.Reconnecting(ctx)
		m.FrameDropped(ctx, "malformed_frame")
		m.AnswerFinished(ctx, "complete")
	})
}
