// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/staslianx/balli-sub009/internal/config"
	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/producer"
	"github.com/staslianx/balli-sub009/internal/sse"
	"github.com/staslianx/balli-sub009/internal/telemetry"
)

// ============================================================================
// Constants
// ============================================================================

var (
	// Version is reported by the health endpoint.
	Version = "0.1.0"
)

const (
	// MaxRequestBodySize bounds the JSON body of a stream request.
	MaxRequestBodySize = 64 << 10

	// MaxQuestionLength bounds the question in bytes.
	MaxQuestionLength = 16 << 10
)

// StreamRequest is the body of POST /v1/answers/stream.
type StreamRequest struct {
	Question string `json:"question"`
	AnswerID string `json:"answer_id,omitempty"`
}

func (r *StreamRequest) validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return errors.New("question is required")
	}
	if len(r.Question) > MaxQuestionLength {
		return fmt.Errorf("question exceeds %d bytes", MaxQuestionLength)
	}
	if len(r.AnswerID) > 128 {
		return errors.New("answer_id exceeds 128 bytes")
	}
	return nil
}

// ============================================================================
// Server
// ============================================================================

// Server streams answers from a producer over SSE.
type Server struct {
	cfg      atomic.Pointer[config.Config]
	producer producer.Producer
	metrics  *telemetry.StreamMetrics
	logCtx   context.Context
	limiter  atomic.Pointer[RateLimiter]
	router   *http.ServeMux
	started  time.Time

	mu     sync.Mutex
	server *http.Server
}

// New creates a server for cfg that answers with p.
func New(cfg *config.Config, p producer.Producer) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		producer: p,
		metrics:  telemetry.NewStreamMetrics(),
		logCtx:   context.Background(),
		router:   http.NewServeMux(),
		started:  time.Now(),
	}
	s.ApplyConfig(cfg)
	s.setupRoutes()
	return s
}

// WithLogContext sets the base log context attached to every request.
func (s *Server) WithLogContext(ctx context.Context) *Server {
	if ctx != nil {
		s.logCtx = ctx
	}
	return s
}

// WithMetrics replaces the stream metrics.
func (s *Server) WithMetrics(m *telemetry.StreamMetrics) *Server {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Config returns the settings used for new responses.
func (s *Server) Config() *config.Config {
	return s.cfg.Load()
}

// ApplyConfig swaps the settings used for new responses. Streams already
// running keep the settings they started with. The listen address is not
// affected.
// Thread-safe.
func (s *Server) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	prev := s.cfg.Swap(cfg)
	if prev == nil ||
		prev.Server.RateLimitPerMinute != cfg.Server.RateLimitPerMinute ||
		prev.Server.RateLimitBurst != cfg.Server.RateLimitBurst {
		s.limiter.Store(NewRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst))
	}
}

// Stats returns the stream totals.
func (s *Server) Stats() telemetry.Stats {
	return s.metrics.Snapshot()
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /v1/answers/stream", s.handleAnswerStream)

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /v1/stream/stats", s.handleStats)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	cfg := s.Config()
	return Chain(
		LoggingMiddleware(s.logCtx),
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		CORSMiddleware(NewCORSConfig(cfg.Server.CORSOrigins)),
		s.rateLimit,
		AuthMiddleware(func() string { return s.Config().Server.AuthToken }),
	)(s.router)
}

// rateLimit applies the current limiter, which ApplyConfig may replace.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RateLimitMiddleware(s.limiter.Load())(next).ServeHTTP(w, r)
	})
}

// ============================================================================
// Stream Handler
// ============================================================================

func (s *Server) handleAnswerStream(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config()
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var body StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.AnswerID == "" {
		body.AnswerID = uuid.NewString()
	}
	responseID := "resp-" + uuid.NewString()

	ctx = log.With(ctx,
		log.KV{K: "answer_id", V: body.AnswerID},
		log.KV{K: "response_id", V: responseID},
	)

	sse.SetHeaders(w.Header())
	w.Header().Set("X-Answer-Id", body.AnswerID)
	w.Header().Set("X-Response-Id", responseID)

	em, err := sse.NewEmitter(w, sse.WithLimit(cfg.Stream.SizeLimitBytes))
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "stream_unsupported"})
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	finish := s.metrics.ResponseStarted(ctx)
	log.Debug(ctx, log.KV{K: "msg", V: "stream_started"})

	em.StartHeartbeat(cfg.Stream.Heartbeat())
	req := producer.Request{AnswerID: body.AnswerID, Question: body.Question}
	err = s.producer.Produce(ctx, req, func(it producer.Item) error {
		for _, ev := range it.Events() {
			if _, ok := ev.(event.Complete); ok {
				if !em.EmitComment(event.CommentFlushTokens) {
					return producer.ErrStopped
				}
			}
			if !em.Emit(ev) {
				return producer.ErrStopped
			}
		}
		return nil
	})
	em.StopHeartbeat()

	out := telemetry.Outcome{}
	switch {
	case err == nil, errors.Is(err, producer.ErrStopped):
	case ctx.Err() != nil:
		log.Debug(ctx, log.KV{K: "msg", V: "client_gone"})
	default:
		out.Failed = true
		log.Error(ctx, err, log.KV{K: "msg", V: "producer_failed"})
		em.Emit(event.Error{Message: "answer generation failed", Code: event.CodeProducerFailed})
	}

	out.Bytes = em.Written()
	out.Frames = em.Frames()
	out.Truncated = em.Truncated()
	if out.Truncated {
		log.Warn(ctx, log.KV{K: "msg", V: "stream_truncated"}, log.KV{K: "bytes", V: out.Bytes})
	}
	finish(context.WithoutCancel(ctx), out)

	log.Debug(ctx,
		log.KV{K: "msg", V: "stream_finished"},
		log.KV{K: "bytes", V: out.Bytes},
		log.KV{K: "frames", V: out.Frames},
	)
}

// ============================================================================
// Health and Stats
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	InFlight      int64  `json:"in_flight"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		InFlight:      s.metrics.Snapshot().InFlight,
	})
}

// StatsResponse is the body of GET /v1/stream/stats.
type StatsResponse struct {
	telemetry.Stats
	SizeLimitBytes int64 `json:"size_limit_bytes"`
	HeartbeatMs    int   `json:"heartbeat_ms"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config()
	writeJSON(w, http.StatusOK, StatsResponse{
		Stats:          s.metrics.Snapshot(),
		SizeLimitBytes: cfg.Stream.SizeLimitBytes,
		HeartbeatMs:    cfg.Stream.HeartbeatMs,
	})
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Config().Server.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: answer streams are long-lived and end through
		// the request context.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return s.logCtx },
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	log.Info(s.logCtx,
		log.KV{K: "msg", V: "server_start"},
		log.KV{K: "addr", V: ln.Addr().String()},
		log.KV{K: "version", V: Version},
	)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for open streams until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	log.Info(s.logCtx, log.KV{K: "msg", V: "server_shutdown"}, log.KV{K: "in_flight", V: s.Stats().InFlight})
	return srv.Shutdown(ctx)
}

// ============================================================================
// Helpers
// ============================================================================

// ErrorResponse is the JSON body of every non-stream error.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
