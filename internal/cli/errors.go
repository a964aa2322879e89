// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/staslianx/balli-sub009/internal/client"
	"github.com/staslianx/balli-sub009/internal/config"
	"github.com/staslianx/balli-sub009/internal/reconnect"
	"github.com/staslianx/balli-sub009/internal/stream"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitNetworkError = 5
	// ExitAnswerError means the server failed or cut the answer short.
	ExitAnswerError  = 6
	ExitTimeoutError = 8
	ExitCancelled    = 130
)

// errCancelled is returned when the user aborts an answer.
var errCancelled = errors.New("cancelled")

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a command failure with context.
type CommandError struct {
	Command string
	Action  string
	Reason  string
	Err     error
	// Code overrides the exit code derived from Err.
	Code int
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError is a bad flag or argument.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// usageArgs marks positional argument errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ce *CommandError
	if errors.As(err, &ce) && ce.Code != 0 {
		return ce.Code
	}

	var (
		usage     *UsageError
		status    *reconnect.StatusError
		exhausted *reconnect.ExhaustedError
		invalid   config.ValidateErrors
		streamErr *stream.Error
	)
	switch {
	case errors.Is(err, errCancelled):
		return ExitCancelled
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &invalid):
		return ExitConfigError
	case errors.As(err, &status) && (status.StatusCode == http.StatusUnauthorized || status.StatusCode == http.StatusForbidden):
		return ExitAuthError
	case errors.Is(err, client.ErrConnectTimeout), errors.Is(err, stream.ErrIdleTimeout):
		return ExitTimeoutError
	case errors.As(err, &exhausted), errors.As(err, &status):
		return ExitNetworkError
	case errors.As(err, &streamErr):
		return ExitAnswerError
	default:
		return ExitGeneralError
	}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON in JSON mode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		resp := NewJSONErrorResponse("", err)
		resp.ErrorType = errorType(err)
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	if errors.Is(err, errCancelled) {
		fmt.Fprintln(w, MutedStyle.Render("Cancelled."))
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

func errorType(err error) string {
	switch ExitCode(err) {
	case ExitUsageError:
		return "usage_error"
	case ExitConfigError:
		return "config_error"
	case ExitAuthError:
		return "auth_error"
	case ExitNetworkError:
		return "network_error"
	case ExitAnswerError:
		return "answer_error"
	case ExitTimeoutError:
		return "timeout_error"
	case ExitCancelled:
		return "cancelled"
	default:
		return "error"
	}
}
