// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/staslianx/balli-sub009/internal/client"
	"github.com/staslianx/balli-sub009/internal/config"
	"github.com/staslianx/balli-sub009/internal/stream"
	"github.com/staslianx/balli-sub009/internal/ui/answer"
)

const chatPrompt = "balli> "

func newChatCommand(a *app) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long: `Start an interactive prompt. Each question streams its answer below the
prompt; asking again supersedes an answer still in flight.

Ctrl+C cancels the current answer. Ctrl+C at the prompt, Ctrl+D, /quit or
/exit leave the session.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), a, serverURL)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (overrides client.server_url)")
	return cmd
}

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of chat input.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// historyInput reads from a terminal with line editing and history.
type historyInput struct {
	line        *liner.State
	historyFile string
}

func newHistoryInput() *historyInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	h := &historyInput{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(h.historyFile); err == nil {
		h.line.ReadHistory(f)
		f.Close()
	}
	return h
}

func (h *historyInput) ReadInput(prompt string) (string, error) {
	input, err := h.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		h.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history (0600) and restores the terminal.
func (h *historyInput) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(h.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			h.line.WriteHistory(f)
			f.Close()
		}
	}
	h.line.Close()
}

// plainInput reads lines from a pipe without echoing a prompt.
type plainInput struct {
	scanner *bufio.Scanner
}

func (p *plainInput) ReadInput(string) (string, error) {
	if p.scanner.Scan() {
		return p.scanner.Text(), nil
	}
	if err := p.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (p *plainInput) Close() {}

func newLineReader(in io.Reader) lineReader {
	if in == os.Stdin && isTerminal(in) && liner.TerminalSupported() {
		return newHistoryInput()
	}
	return &plainInput{scanner: bufio.NewScanner(in)}
}

// =============================================================================
// SESSION
// =============================================================================

// chatStats counts how the session's answers ended.
type chatStats struct {
	mu        sync.Mutex
	asked     int
	completed int
	failed    int
	cancelled int
}

func (s *chatStats) add(field *int) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

func (s *chatStats) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%d asked, %d completed, %d failed, %d cancelled", s.asked, s.completed, s.failed, s.cancelled)
}

func runChat(ctx context.Context, a *app, serverURL string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var stats chatStats
	cb := answer.NewConsole(a.out).Callbacks()
	onComplete, onError := cb.OnComplete, cb.OnError
	cb.OnComplete = func(id string, res stream.Result) {
		stats.add(&stats.completed)
		onComplete(id, res)
	}
	cb.OnError = func(id string, err error) {
		stats.add(&stats.failed)
		onError(id, err)
	}

	s := client.NewSession(a.logCtx, a.sessionOptions(serverURL), cb)
	defer s.Close()

	input := newLineReader(a.in)
	defer input.Close()

	// Interrupts cancel the answer in flight instead of ending the process.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	fmt.Fprintln(a.out, MutedStyle.Render("Type a question, /help for commands."))
	for {
		line, err := input.ReadInput(chatPrompt)
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read input: %w", err)
			}
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleSlashCommand(a, s, line); quit {
				break
			}
			continue
		}

		stats.add(&stats.asked)
		id, err := s.Ask(ctx, line, client.AskOptions{Supersede: true})
		if err != nil {
			fmt.Fprintf(a.errOut, "%s %v\n", ErrorStyle.Render("[ERROR]"), err)
			continue
		}

		select {
		case <-s.Done(id):
		case sig := <-sigs:
			if s.Cancel(id) {
				stats.add(&stats.cancelled)
				fmt.Fprintln(a.out, "\n"+WarningStyle.Render("[Cancelled]"))
			}
			if sig == syscall.SIGTERM {
				return errCancelled
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	fmt.Fprintln(a.out, MutedStyle.Render("Session: "+stats.String()))
	return nil
}

// handleSlashCommand runs a /command and reports whether to leave.
func handleSlashCommand(a *app, s *client.Session, line string) bool {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/quit", "/exit", "/q":
		return true
	case "/cancel":
		ids := s.CancelAll()
		fmt.Fprintf(a.out, "Cancelled %d answer(s).\n", len(ids))
	case "/help", "/?":
		fmt.Fprintln(a.out, "  /cancel   cancel answers in flight")
		fmt.Fprintln(a.out, "  /quit     leave the session")
	default:
		fmt.Fprintf(a.errOut, "%s unknown command %s (try /help)\n", WarningStyle.Render("[WARN]"), line)
	}
	return false
}
