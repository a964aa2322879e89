// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/staslianx/balli-sub009/internal/client"
	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/export"
	"github.com/staslianx/balli-sub009/internal/stream"
	"github.com/staslianx/balli-sub009/internal/ui/answer"
)

type askOptions struct {
	viewer     string
	serverURL  string
	saveDir    string
	saveFormat string
}

func newAskCommand(a *app) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Stream one answer",
		Long: `Ask the server a question and show the answer as it streams.

On a terminal the answer is shown in a live view; press esc to cancel.
Otherwise the text is written incrementally to stdout.`,
		Example: `  balli ask "What is a glycemic index?"
  balli ask --viewer plain "What is a glycemic index?" > answer.txt
  balli ask --json "What is a glycemic index?"
  balli ask --save answers --save-format json "What is a glycemic index?"`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return &UsageError{Err: client.ErrEmptyQuestion}
			}
			return runAsk(cmd.Context(), a, opts, question)
		},
	}
	cmd.Flags().StringVar(&opts.viewer, "viewer", "", "output: auto, tui or plain (overrides client.viewer)")
	cmd.Flags().StringVar(&opts.serverURL, "server", "", "server URL (overrides client.server_url)")
	cmd.Flags().StringVar(&opts.saveDir, "save", "", "also save the finished answer into this directory")
	cmd.Flags().StringVar(&opts.saveFormat, "save-format", export.FormatMarkdown, "format for --save: markdown or json")
	return cmd
}

// sessionOptions builds client options from the config and flag overrides.
func (a *app) sessionOptions(serverURL string) client.Options {
	opts := client.OptionsFromConfig(a.cfg)
	if serverURL != "" {
		opts.ServerURL = serverURL
	}
	return opts
}

func runAsk(ctx context.Context, a *app, opts askOptions, question string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sopts := a.sessionOptions(opts.serverURL)

	var exporter export.Exporter
	if opts.saveDir != "" {
		var err error
		if exporter, err = export.ForFormat(opts.saveFormat, nil); err != nil {
			return &UsageError{Err: err}
		}
	}
	save := func(res *stream.Result) error {
		if exporter == nil || res == nil {
			return nil
		}
		return a.saveAnswer(exporter, opts.saveDir, question, *res)
	}

	if a.json {
		return askJSON(ctx, a, sopts, question, save)
	}

	viewer := opts.viewer
	if viewer == "" {
		viewer = a.cfg.Client.Viewer
	}
	switch viewer {
	case ViewerAuto, ViewerTUI, ViewerPlain:
	default:
		return &UsageError{Err: fmt.Errorf("unknown viewer %q (want auto, tui or plain)", viewer)}
	}

	if chooseViewer(viewer, a.in, a.out) == ViewerTUI {
		return askTUI(ctx, a, sopts, question, save)
	}
	return askPlain(ctx, a, sopts, question, save)
}

// saveAnswer writes a finished answer into dir. The path goes to stderr so
// stdout stays the answer itself.
func (a *app) saveAnswer(exporter export.Exporter, dir, question string, res stream.Result) error {
	path, err := export.ExportToFile(export.FromResult(question, res, time.Now()), exporter, &export.Options{
		OutputDir:       dir,
		IncludeMetadata: true,
	})
	if err != nil {
		return &CommandError{Command: "ask", Action: "save", Reason: dir, Err: err}
	}
	fmt.Fprintf(a.errOut, "%s saved %s\n", PassStyle.Render("[OK]"), path)
	return nil
}

// outcome captures how an answer ended.
type outcome struct {
	mu     sync.Mutex
	result *stream.Result
	err    error
}

// wrap records the end of every answer before calling cb.
func (o *outcome) wrap(cb client.Callbacks) client.Callbacks {
	onComplete, onError := cb.OnComplete, cb.OnError
	cb.OnComplete = func(id string, res stream.Result) {
		o.mu.Lock()
		o.result, o.err = &res, nil
		o.mu.Unlock()
		if onComplete != nil {
			onComplete(id, res)
		}
	}
	cb.OnError = func(id string, err error) {
		o.mu.Lock()
		o.result, o.err = nil, err
		o.mu.Unlock()
		if onError != nil {
			onError(id, err)
		}
	}
	return cb
}

func (o *outcome) get() (*stream.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result, o.err
}

// waitAnswer blocks until the answer ends, cancelling it on interrupt.
func waitAnswer(ctx context.Context, s *client.Session, id string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	select {
	case <-s.Done(id):
		return nil
	case <-ctx.Done():
		s.Cancel(id)
		return errCancelled
	}
}

func askPlain(ctx context.Context, a *app, opts client.Options, question string, save func(*stream.Result) error) error {
	var conOpts []answer.ConsoleOption
	if w := terminalWidth(a.out); w > 0 {
		conOpts = append(conOpts, answer.WithConsoleWidth(w))
	}
	var out outcome
	s := client.NewSession(a.logCtx, opts, out.wrap(answer.NewConsole(a.out, conOpts...).Callbacks()))
	defer s.Close()

	id, err := s.Ask(ctx, question, client.AskOptions{})
	if err != nil {
		return err
	}
	if err := waitAnswer(ctx, s, id); err != nil {
		return err
	}
	res, err := out.get()
	if err != nil {
		return err
	}
	return save(res)
}

func askTUI(ctx context.Context, a *app, opts client.Options, question string, save func(*stream.Result) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := uuid.NewString()
	var s *client.Session
	// Cancel waits for running callbacks, which may be blocked sending to
	// the program; run it off the event loop.
	m := answer.New(id, question, func() { go s.Cancel(id) },
		answer.WithTheme(viewerTheme()),
		answer.WithWidth(terminalWidth(a.out)),
	)
	progOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(a.out)}
	if a.in != os.Stdin {
		progOpts = append(progOpts, tea.WithInput(a.in))
	}
	p := tea.NewProgram(m, progOpts...)

	s = client.NewSession(a.logCtx, opts, answer.Callbacks(p.Send))
	defer s.Close()

	if _, err := s.Ask(ctx, question, client.AskOptions{AnswerID: id}); err != nil {
		return err
	}
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("answer view: %w", err)
	}

	fm, ok := final.(answer.Model)
	if !ok {
		return nil
	}
	switch fm.Status() {
	case answer.StatusFailed:
		return fm.Err()
	case answer.StatusCancelled:
		return errCancelled
	}
	if res, ok := fm.Result(); ok {
		return save(&res)
	}
	return nil
}

// AskResult is the ask command's JSON payload.
type AskResult struct {
	AnswerID    string         `json:"answer_id"`
	Question    string         `json:"question"`
	Text        string         `json:"text"`
	Sources     []event.Source `json:"sources"`
	Summary     string         `json:"summary,omitempty"`
	Metadata    event.Metadata `json:"metadata,omitempty"`
	Synthesized bool           `json:"synthesized"`
}

func askJSON(ctx context.Context, a *app, opts client.Options, question string, save func(*stream.Result) error) error {
	var out outcome
	s := client.NewSession(a.logCtx, opts, out.wrap(client.Callbacks{}))
	defer s.Close()

	id, err := s.Ask(ctx, question, client.AskOptions{})
	if err != nil {
		return err
	}
	if err := waitAnswer(ctx, s, id); err != nil {
		return err
	}
	res, err := out.get()
	if err != nil {
		return err
	}
	if res == nil {
		return errCancelled
	}
	if err := save(res); err != nil {
		return err
	}
	sources := res.Sources
	if sources == nil {
		sources = []event.Source{}
	}
	return writeJSONResponse(a.out, NewJSONResponse("ask", AskResult{
		AnswerID:    id,
		Question:    question,
		Text:        res.Text,
		Sources:     sources,
		Summary:     res.Summary,
		Metadata:    res.Metadata,
		Synthesized: res.Synthesized,
	}))
}
