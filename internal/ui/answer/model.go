// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/stream"
	"github.com/staslianx/balli-sub009/internal/ui/styles"
)

// Status is the phase of the answer shown by the model.
type Status int

const (
	StatusWaiting Status = iota // no text yet
	StatusStreaming
	StatusReconnecting
	StatusComplete
	StatusFailed
	StatusCancelled
)

// Done reports whether the answer has ended.
func (s Status) Done() bool {
	return s >= StatusComplete
}

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusStreaming:
		return "streaming"
	case StatusReconnecting:
		return "reconnecting"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Model shows one answer as it streams.
type Model struct {
	theme   *styles.Theme
	spinner spinner.Model

	answerID string
	question string
	cancel   func()

	text    string
	sources []event.Source
	stage   event.StageProgress
	attempt int

	status Status
	result stream.Result
	err    error

	width int
}

// Option customizes a Model.
type Option func(*Model)

// WithTheme replaces the terminal-detected theme.
func WithTheme(t *styles.Theme) Option {
	return func(m *Model) { m.theme = t }
}

// WithWidth sets the initial wrap width, before the first resize.
func WithWidth(w int) Option {
	return func(m *Model) { m.width = w }
}

// New creates a model for the answer with the given id. cancel runs when the
// user aborts; it may be nil.
func New(answerID, question string, cancel func(), opts ...Option) Model {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	m := Model{
		spinner:  s,
		answerID: answerID,
		question: question,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.theme == nil {
		m.theme = styles.NewTheme()
	}
	m.spinner.Style = m.theme.Stage
	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update applies stream messages and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.status.Done() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case DisplayMsg:
		if !m.accepts(msg.AnswerID) {
			return m, nil
		}
		m.text = msg.Text
		m.status = StatusStreaming

	case SourcesMsg:
		if m.accepts(msg.AnswerID) {
			m.sources = msg.Sources
		}

	case StageMsg:
		if m.accepts(msg.AnswerID) && msg.Stage.Sequence >= m.stage.Sequence {
			m.stage = msg.Stage
		}

	case ReconnectingMsg:
		if m.accepts(msg.AnswerID) {
			m.status = StatusReconnecting
			m.attempt = msg.Attempt
		}

	case ReconnectedMsg:
		if m.accepts(msg.AnswerID) {
			m.status = StatusWaiting
			if m.text != "" {
				m.status = StatusStreaming
			}
		}

	case CompleteMsg:
		if !m.accepts(msg.AnswerID) {
			return m, nil
		}
		m.result = msg.Result
		m.text = msg.Result.Text
		if len(msg.Result.Sources) > 0 {
			m.sources = msg.Result.Sources
		}
		m.status = StatusComplete
		return m, tea.Quit

	case ErrorMsg:
		if !m.accepts(msg.AnswerID) {
			return m, nil
		}
		m.err = msg.Err
		m.status = StatusFailed
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		if !m.status.Done() {
			if m.cancel != nil {
				m.cancel()
			}
			m.status = StatusCancelled
		}
		return m, tea.Quit
	case "q":
		if m.status.Done() {
			return m, tea.Quit
		}
	}
	return m, nil
}

// accepts reports whether a message belongs to this model's answer.
func (m Model) accepts(id string) bool {
	return !m.status.Done() && (m.answerID == "" || id == m.answerID)
}

// Status returns the answer's phase.
func (m Model) Status() Status {
	return m.status
}

// Text returns the text shown so far.
func (m Model) Text() string {
	return m.text
}

// Result returns the final answer once the status is StatusComplete.
func (m Model) Result() (stream.Result, bool) {
	return m.result, m.status == StatusComplete
}

// Err returns the failure once the status is StatusFailed.
func (m Model) Err() error {
	return m.err
}
