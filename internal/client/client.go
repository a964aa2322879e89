// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/staslianx/balli-sub009/internal/config"
	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/pacing"
	"github.com/staslianx/balli-sub009/internal/reconnect"
	"github.com/staslianx/balli-sub009/internal/stream"
	"github.com/staslianx/balli-sub009/internal/telemetry"
)

// StreamPath is the server endpoint answers are requested from.
const StreamPath = "/v1/answers/stream"

var (
	// ErrEmptyQuestion is returned by Ask for a blank question.
	ErrEmptyQuestion = errors.New("client: question is empty")

	// ErrClosed is returned by Ask after Close.
	ErrClosed = errors.New("client: session closed")

	// ErrConnectTimeout is returned when response headers do not arrive in time.
	ErrConnectTimeout = errors.New("client: timed out waiting for response headers")
)

// Options configures a Session.
type Options struct {
	// ServerURL is the base URL of the answer server.
	ServerURL string

	// AuthToken is sent as a bearer token when set.
	AuthToken string

	// HTTPClient performs the requests. It must not set a Timeout, which
	// would cut long answers short. Defaults to a client without one.
	HTTPClient *http.Client

	// ConnectTimeout bounds the wait for response headers (0 = none).
	ConnectTimeout time.Duration

	// IdleTimeout bounds the silence tolerated on an open stream.
	IdleTimeout time.Duration

	DecodeThreshold int
	MaxWithheld     int

	Reconnect reconnect.Config
	Pacing    pacing.Config

	// Metrics records client activity. Defaults to instruments on the
	// global MeterProvider.
	Metrics *telemetry.ClientMetrics
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ServerURL:       cfg.Client.ServerURL,
		AuthToken:       cfg.Server.AuthToken,
		ConnectTimeout:  cfg.Client.ConnectTimeout(),
		IdleTimeout:     cfg.Stream.IdleTimeout(),
		DecodeThreshold: cfg.Stream.DecodeThreshold,
		MaxWithheld:     cfg.Stream.MaxWithheldBytes,
		Reconnect:       cfg.Reconnect.Policy(),
		Pacing:          cfg.Pacing.Engine(),
	}
}

func (o Options) withDefaults() Options {
	if o.ServerURL == "" {
		o.ServerURL = config.Default().Client.ServerURL
	}
	o.ServerURL = strings.TrimRight(o.ServerURL, "/")
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Reconnect.MaxAttempts == 0 {
		o.Reconnect = reconnect.DefaultConfig()
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.NewClientMetrics()
	}
	return o
}

// Callbacks receive the progress of every answer in a session. Every field
// is optional.
//
// Callbacks for one answer are ordered: OnComplete or OnError is the last
// call for it and comes after its final OnDisplay. Different answers may be
// reported from different goroutines at the same time. Nothing is reported
// for an answer once it is cancelled.
type Callbacks struct {
	// OnToken receives each text chunk as it arrives.
	OnToken func(answerID, text string)

	// OnDisplay receives the growing paced prefix of the answer text.
	OnDisplay func(answerID, prefix string)

	// OnSourcesReady receives the merged source list whenever it changes.
	OnSourcesReady func(answerID string, sources []event.Source)

	OnStageProgress func(answerID string, stage event.StageProgress)

	// OnComplete receives the final answer once its text is fully displayed.
	OnComplete func(answerID string, result stream.Result)

	// OnError receives a failure. The partial text, if any, was displayed
	// before it.
	OnError func(answerID string, err error)

	// OnReconnecting runs before a retry with the upcoming attempt number.
	OnReconnecting func(answerID string, attempt int)

	// OnReconnected runs when a retry attempt connects.
	OnReconnected func(answerID string, attempt int)
}
