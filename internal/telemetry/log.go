// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"io"

	"goa.design/clue/log"
)

// LogOptions controls the base log context.
type LogOptions struct {
	// Format is "json", "terminal" or "auto" (terminal when stderr is a TTY).
	Format string
	Debug  bool
	// Output defaults to stderr.
	Output io.Writer
}

// LogContext returns ctx carrying a clue logger configured by opts.
func LogContext(ctx context.Context, opts LogOptions) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	// Entries are written as they happen; clue would otherwise hold Info
	// lines until the first Error.
	logOpts := []log.LogOption{
		log.WithFormat(formatFor(opts.Format)),
		log.WithDisableBuffering(func(context.Context) bool { return true }),
	}
	if opts.Output != nil {
		logOpts = append(logOpts, log.WithOutput(opts.Output))
	}
	if opts.Debug {
		logOpts = append(logOpts, log.WithDebug())
	}

	ctx = log.Context(ctx, logOpts...)
	if opts.Debug {
		log.Debugf(ctx, "debug logs enabled")
	}
	return ctx
}

func formatFor(name string) log.FormatFunc {
	switch name {
	case "json":
		return log.FormatJSON
	case "terminal":
		return log.FormatTerminal
	default:
		if log.IsTerminal() {
			return log.FormatTerminal
		}
		return log.FormatJSON
	}
}
