// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staslianx/balli-sub009/internal/config"
	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/producer"
	"github.com/staslianx/balli-sub009/internal/sse"
	"github.com/staslianx/balli-sub009/internal/telemetry"
)

// =============================================================================
// HELPERS
// =============================================================================

func exampleScript() producer.Script {
	return producer.Script{
		Chunks:         []string{"The", " "},
		Complete:       event.Complete{Sources: []event.Source{{Title: "A", URL: "https://a.example"}}},
		TrailingChunks: []string{"answer."},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, p producer.Producer) (*Server, *httptest.Server) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	s := New(cfg, p)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postStream(t *testing.T, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/v1/answers/stream", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// readEvents decodes the whole SSE body, keepalives included.
func readEvents(t *testing.T, r io.Reader) []event.Event {
	t.Helper()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)

	in := sse.NewIngestor()
	frames, err := in.Feed(raw)
	require.NoError(t, err)
	rest, err := in.Close()
	require.NoError(t, err)

	var events []event.Event
	for _, f := range append(frames, rest...) {
		ev, err := sse.ParseFrame(f)
		require.NoError(t, err)
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func withoutKeepalives(events []event.Event) []event.Event {
	var out []event.Event
	for _, ev := range events {
		if c, ok := ev.(event.Comment); ok && c.IsKeepalive() {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// =============================================================================
// STREAM ENDPOINT
// =============================================================================

func TestStreamExampleScenario(t *testing.T) {
	s, ts := newTestServer(t, nil, producer.NewScripted(0, exampleScript()))

	resp := postStream(t, ts.URL, `{"question":"what?","answer_id":"a1"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "a1", resp.Header.Get("X-Answer-Id"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("X-Response-Id"), "resp-"))

	events := withoutKeepalives(readEvents(t, resp.Body))
	require.Len(t, events, 5)
	assert.Equal(t, event.Token{Content: "The"}, events[0])
	assert.Equal(t, event.Token{Content: " "}, events[1])
	assert.Equal(t, event.Comment{Text: event.CommentFlushTokens}, events[2], "flush precedes complete")
	require.IsType(t, event.Complete{}, events[3])
	assert.Len(t, events[3].(event.Complete).Sources, 1)
	assert.Equal(t, event.Token{Content: "answer."}, events[4])

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Responses)
	assert.Equal(t, int64(0), stats.InFlight)
	assert.Positive(t, stats.BytesWritten)
}

func TestStreamAssignsAnswerID(t *testing.T) {
	_, ts := newTestServer(t, nil, producer.NewScripted(0, exampleScript()))

	resp := postStream(t, ts.URL, `{"question":"what?"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Answer-Id"))
}

func TestStreamRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, nil, producer.NewScripted(0, exampleScript()))

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"question":`},
		{"empty question", `{"question":"   "}`},
		{"long answer id", `{"question":"q","answer_id":"` + strings.Repeat("x", 200) + `"}`},
		{"oversized", `{"question":"` + strings.Repeat("x", MaxQuestionLength+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postStream(t, ts.URL, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
		})
	}

	resp, err := http.Get(ts.URL + "/v1/answers/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStreamTruncatesAtLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Stream.SizeLimitBytes = 400

	chunks := make([]string, 100)
	for i := range chunks {
		chunks[i] = "word "
	}
	s, ts := newTestServer(t, cfg, producer.NewScripted(0, producer.Script{Chunks: chunks}))

	resp := postStream(t, ts.URL, `{"question":"q"}`, nil)
	events := withoutKeepalives(readEvents(t, resp.Body))
	require.NotEmpty(t, events)

	errorCount := 0
	for _, ev := range events {
		if _, ok := ev.(event.Error); ok {
			errorCount++
		}
	}
	assert.Equal(t, 1, errorCount, "exactly one truncation notice")

	last, ok := events[len(events)-1].(event.Error)
	require.True(t, ok, "truncation notice is the last frame")
	assert.Equal(t, event.CodeResponseTruncated, last.Code)
	assert.Equal(t, int64(1), s.Stats().Truncated)
}

func TestStreamProducerFailure(t *testing.T) {
	p := producer.Func(func(ctx context.Context, req producer.Request, emit producer.EmitFunc) error {
		if err := emit(producer.TextItem("partial")); err != nil {
			return err
		}
		return errors.New("model unavailable")
	})
	s, ts := newTestServer(t, nil, p)

	resp := postStream(t, ts.URL, `{"question":"q"}`, nil)
	events := withoutKeepalives(readEvents(t, resp.Body))
	require.Len(t, events, 2)
	assert.Equal(t, event.Token{Content: "partial"}, events[0])
	errEv, ok := events[1].(event.Error)
	require.True(t, ok)
	assert.Equal(t, event.CodeProducerFailed, errEv.Code)
	assert.NotContains(t, errEv.Message, "model unavailable")
	assert.Equal(t, int64(1), s.Stats().Failed)
}

func TestStreamHeartbeat(t *testing.T) {
	cfg := config.Default()
	cfg.Stream.HeartbeatMs = 20

	p := producer.Func(func(ctx context.Context, req producer.Request, emit producer.EmitFunc) error {
		select {
		case <-time.After(150 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := emit(producer.TextItem("late")); err != nil {
			return err
		}
		return emit(producer.EventItem(event.Complete{}))
	})
	_, ts := newTestServer(t, cfg, p)

	resp := postStream(t, ts.URL, `{"question":"q"}`, nil)
	events := readEvents(t, resp.Body)

	keepalives := 0
	for _, ev := range events {
		if c, ok := ev.(event.Comment); ok && c.IsKeepalive() {
			keepalives++
		}
	}
	assert.GreaterOrEqual(t, keepalives, 2)
	assert.IsType(t, event.Complete{}, events[len(events)-1])
}

func TestStreamClientDisconnectStopsProducer(t *testing.T) {
	stopped := make(chan error, 1)
	p := producer.Func(func(ctx context.Context, req producer.Request, emit producer.EmitFunc) error {
		for {
			if err := emit(producer.TextItem("x")); err != nil {
				stopped <- err
				return err
			}
			select {
			case <-ctx.Done():
				stopped <- ctx.Err()
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	})
	_, ts := newTestServer(t, nil, p)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/v1/answers/stream",
		strings.NewReader(`{"question":"q"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	buf := make([]byte, 64)
	_, err = resp.Body.Read(buf)
	require.NoError(t, err)
	cancel()
	resp.Body.Close()

	select {
	case err := <-stopped:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("producer kept running after the client left")
	}
}

// =============================================================================
// HEALTH AND STATS
// =============================================================================

func TestHandleHealth(t *testing.T) {
	s := New(nil, producer.NewDemo(0))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, Version, resp.Version)
}

func TestLoggingMiddlewareWritesEachRequest(t *testing.T) {
	var buf bytes.Buffer
	logCtx := telemetry.LogContext(context.Background(), telemetry.LogOptions{Format: "json", Output: &buf})
	h := New(nil, producer.NewDemo(0)).WithLogContext(logCtx).Handler()

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "request", entry["msg"])
		assert.Equal(t, "/health", entry["path"])
		assert.EqualValues(t, http.StatusOK, entry["status"])
	}
}

func TestHandleStats(t *testing.T) {
	_, ts := newTestServer(t, nil, producer.NewScripted(0, exampleScript()))

	resp := postStream(t, ts.URL, `{"question":"q"}`, nil)
	_, _ = io.Copy(io.Discard, resp.Body)

	statsResp, err := http.Get(ts.URL + "/v1/stream/stats")
	require.NoError(t, err)
	defer statsResp.Body.Close()

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(statsResp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.Responses)
	assert.Equal(t, sse.DefaultLimit, stats.SizeLimitBytes)
	assert.Positive(t, stats.Frames)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestAuthMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AuthToken = "s3cret"
	s, ts := newTestServer(t, cfg, producer.NewScripted(0, exampleScript()))

	resp := postStream(t, ts.URL, `{"question":"q"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postStream(t, ts.URL, `{"question":"q"}`, http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postStream(t, ts.URL, `{"question":"q"}`, http.Header{"Authorization": {"Bearer s3cret"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode, "health stays open")

	open := cfg.Clone()
	open.Server.AuthToken = ""
	s.ApplyConfig(open)
	resp = postStream(t, ts.URL, `{"question":"q"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reload disables auth")
}

func TestValidateBearerToken(t *testing.T) {
	assert.True(t, ValidateBearerToken("abc", "abc"))
	assert.False(t, ValidateBearerToken("abd", "abc"))
	assert.False(t, ValidateBearerToken("", ""))
	assert.False(t, ValidateBearerToken("abc", ""))
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimitPerMinute = 1
	cfg.Server.RateLimitBurst = 2
	_, ts := newTestServer(t, cfg, producer.NewDemo(0))

	codes := make([]int, 3)
	for i := range codes {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		codes[i] = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests {
			assert.Equal(t, "60", resp.Header.Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimiterUnlimited(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, rl.Allow("10.0.0.1"))
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per client")
}

func TestCORSOrigins(t *testing.T) {
	c := NewCORSConfig([]string{"http://localhost:*", "https://app.example.com"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:5173", true},
		{"http://localhost", true},
		{"http://localhost:abc", false},
		{"http://localhost.evil.com", false},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.isOriginAllowed(tt.origin), "origin %q", tt.origin)
	}
	assert.True(t, NewCORSConfig([]string{"*"}).isOriginAllowed("https://any"))
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, nil, producer.NewDemo(0))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/v1/answers/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestResponseWriterKeepsFlusher(t *testing.T) {
	var rw http.ResponseWriter = newResponseWriter(httptest.NewRecorder())
	_, ok := rw.(http.Flusher)
	assert.True(t, ok)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.5:1234", "", "", "203.0.113.5"},
		{"untrusted forwarder ignored", "203.0.113.5:1234", "198.51.100.1", "", "203.0.113.5"},
		{"trusted forwarder", "127.0.0.1:1234", "198.51.100.1, 10.0.0.1", "", "198.51.100.1"},
		{"trusted real ip", "10.1.2.3:1234", "", "198.51.100.2", "198.51.100.2"},
		{"invalid header", "127.0.0.1:1234", "not-an-ip", "", "127.0.0.1"},
		{"no port", "198.51.100.9", "", "", "198.51.100.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestServeAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	s := New(cfg, producer.NewDemo(0))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-done)
}
