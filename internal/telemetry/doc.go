// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry sets up structured logging and stream metrics.
//
// Logging goes through goa.design/clue/log: LogContext builds the base
// context once and every package logs against a context derived from it.
//
// Metrics are OpenTelemetry instruments from the global MeterProvider, so
// nothing is exported until a provider is installed. StreamMetrics also
// keeps in-process totals for the stats endpoint.
//
// # Usage
//
//	ctx := telemetry.LogContext(context.Background(), telemetry.LogOptions{Debug: true})
//	log.Info(ctx, log.KV{K: "msg", V: "server_start"})
//
//	m := telemetry.NewStreamMetrics()
//	done := m.ResponseStarted(ctx)
//	defer done(ctx, telemetry.Outcome{Bytes: n})
package telemetry
