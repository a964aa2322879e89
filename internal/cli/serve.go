// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/staslianx/balli-sub009/internal/config"
	"github.com/staslianx/balli-sub009/internal/producer"
	"github.com/staslianx/balli-sub009/internal/server"
)

// shutdownTimeout bounds the wait for open streams on exit.
const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	host    string
	port    int
	delayMs int
	noWatch bool
}

func newServeCommand(a *app) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the answer stream server",
		Long: `Run the HTTP server that streams answers as server-sent events.

Answers come from the built-in demo producer. The config file is watched
and changes to limits, auth and rate limiting apply to new requests.`,
		Example: `  balli serve
  balli serve --port 9090 --delay 40`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, a, opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().IntVar(&opts.delayMs, "delay", -1, "demo producer delay per chunk in ms (overrides server.producer_delay_ms)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

// apply copies flag overrides onto cfg.
func (o serveOptions) apply(cfg *config.Config) *config.Config {
	cfg = cfg.Clone()
	if o.host != "" {
		cfg.Server.Host = o.host
	}
	if o.port > 0 {
		cfg.Server.Port = o.port
	}
	if o.delayMs >= 0 {
		cfg.Server.ProducerDelayMs = o.delayMs
	}
	return cfg
}

func runServe(cmd *cobra.Command, a *app, opts serveOptions) error {
	cfg := opts.apply(a.cfg)
	if err := cfg.Validate(); err != nil {
		return &CommandError{Command: "serve", Action: "start", Reason: "invalid configuration", Err: err}
	}

	ctx, stop := signal.NotifyContext(a.logCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, producer.NewDemo(cfg.Server.ProducerDelay())).WithLogContext(a.logCtx)

	if path := a.watchPath(); path != "" && !opts.noWatch {
		go func() {
			err := config.Watch(ctx, path,
				func(next *config.Config) {
					srv.ApplyConfig(opts.apply(next))
					log.Info(ctx, log.KV{K: "msg", V: "config_reloaded"}, log.KV{K: "path", V: path})
				},
				func(err error) {
					log.Error(ctx, err, log.KV{K: "msg", V: "config_reload_failed"}, log.KV{K: "path", V: path})
				},
			)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error(ctx, err, log.KV{K: "msg", V: "config_watch_stopped"})
			}
		}()
	}

	if !a.json {
		fmt.Fprintf(a.out, "%s listening on %s\n", TitleStyle.Render("balli serve"), cfg.Server.Addr())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if err != nil {
			return &CommandError{Command: "serve", Action: "listen", Reason: cfg.Server.Addr(), Err: err}
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(a.logCtx, log.KV{K: "msg", V: "shutting_down"})
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(a.logCtx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return &CommandError{Command: "serve", Action: "shutdown", Reason: "open streams did not finish", Err: err}
	}
	return <-errc
}
