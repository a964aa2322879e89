// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staslianx/balli-sub009/internal/client"
	"github.com/staslianx/balli-sub009/internal/config"
	"github.com/staslianx/balli-sub009/internal/event"
	"github.com/staslianx/balli-sub009/internal/producer"
	"github.com/staslianx/balli-sub009/internal/reconnect"
	"github.com/staslianx/balli-sub009/internal/server"
	"github.com/staslianx/balli-sub009/internal/stream"
)

// =============================================================================
// HELPERS
// =============================================================================

const testConfig = `
[pacing]
base_delay_ms = -1
space_delay_ms = -1
punctuation_delay_ms = -1

[reconnect]
max_attempts = 1

[client]
viewer = "plain"

[logging]
format = "json"
`

// writeConfig creates a config file with instant pacing and no retries.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BALLI_CONFIG_DIR", dir)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig+extra), 0o600))
	return path
}

func exampleScript() producer.Script {
	return producer.Script{
		Chunks:         []string{"The", " "},
		Complete:       event.Complete{Sources: []event.Source{{Title: "A", URL: "https://a.example"}}},
		TrailingChunks: []string{"answer."},
	}
}

func startServer(t *testing.T, token string) string {
	t.Helper()
	cfg := config.Default()
	cfg.Server.AuthToken = token
	ts := httptest.NewServer(server.New(cfg, producer.NewScripted(0, exampleScript())).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// run executes the command line with args and returns stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand(newApp())
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

// =============================================================================
// ASK
// =============================================================================

func TestAskPlain(t *testing.T) {
	cfgPath := writeConfig(t, "")
	url := startServer(t, "")

	out, _, err := run(t, "", "--config", cfgPath, "ask", "--server", url, "What", "is", "GI?")
	require.NoError(t, err)
	assert.Contains(t, out, "The answer.")
	assert.Contains(t, out, "Sources")
	assert.Contains(t, out, "https://a.example")
}

func TestAskJSON(t *testing.T) {
	cfgPath := writeConfig(t, "")
	url := startServer(t, "")

	out, _, err := run(t, "", "--config", cfgPath, "--json", "ask", "--server", url, "What is GI?")
	require.NoError(t, err)

	var resp struct {
		Success bool      `json:"success"`
		Command string    `json:"command"`
		Data    AskResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ask", resp.Command)
	assert.Equal(t, "The answer.", resp.Data.Text)
	assert.Equal(t, "What is GI?", resp.Data.Question)
	assert.NotEmpty(t, resp.Data.AnswerID)
	require.Len(t, resp.Data.Sources, 1)
	assert.Equal(t, "https://a.example", resp.Data.Sources[0].URL)
}

func TestAskAuthFailure(t *testing.T) {
	cfgPath := writeConfig(t, "")
	url := startServer(t, "secret")

	_, _, err := run(t, "", "--config", cfgPath, "ask", "--server", url, "q")
	require.Error(t, err)
	assert.Equal(t, ExitAuthError, ExitCode(err))
}

func TestAskUsageErrors(t *testing.T) {
	cfgPath := writeConfig(t, "")

	_, _, err := run(t, "", "--config", cfgPath, "ask")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = run(t, "", "--config", cfgPath, "ask", "  ")
	assert.ErrorIs(t, err, client.ErrEmptyQuestion)
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = run(t, "", "--config", cfgPath, "ask", "--viewer", "fancy", "q")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

// =============================================================================
// CHAT
// =============================================================================

func TestChatPiped(t *testing.T) {
	cfgPath := writeConfig(t, "")
	url := startServer(t, "")

	out, errOut, err := run(t, "first question\n/help\n/bogus\nsecond question\n/quit\nignored\n",
		"--config", cfgPath, "chat", "--server", url)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "The answer."))
	assert.Contains(t, out, "/cancel")
	assert.Contains(t, errOut, "unknown command /bogus")
	assert.Contains(t, out, "Session: 2 asked, 2 completed, 0 failed, 0 cancelled")
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigSetGet(t *testing.T) {
	cfgPath := writeConfig(t, "")

	out, _, err := run(t, "", "--config", cfgPath, "config", "set", "stream.heartbeat_ms", "5000")
	require.NoError(t, err)
	assert.Contains(t, out, "stream.heartbeat_ms = 5000")

	out, _, err = run(t, "", "--config", cfgPath, "config", "get", "stream.heartbeat_ms")
	require.NoError(t, err)
	assert.Equal(t, "5000\n", out)

	loaded, err := config.LoadFromPath(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 5000, loaded.Stream.HeartbeatMs)
	assert.Equal(t, -1, loaded.Pacing.BaseDelayMs, "other values survive the rewrite")
}

func TestConfigSetRejectsInvalid(t *testing.T) {
	cfgPath := writeConfig(t, "")

	_, _, err := run(t, "", "--config", cfgPath, "config", "set", "stream.heartbeat_ms", "10")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))

	_, _, err = run(t, "", "--config", cfgPath, "config", "set", "no.such_key", "1")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestConfigSecretsAreMasked(t *testing.T) {
	cfgPath := writeConfig(t, "\n[server]\nauth_token = \"hunter2\"\n")

	out, _, err := run(t, "", "--config", cfgPath, "config", "get", "server.auth_token")
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]\n", out)

	out, _, err = run(t, "", "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.toml")
	t.Setenv("BALLI_CONFIG_DIR", dir)

	require.NoError(t, config.SaveTOML(config.Default(), path))
	_, _, err := run(t, "", "--config", path, "config", "init")
	require.Error(t, err, "existing file is not overwritten")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	out, _, err := run(t, "", "--config", path, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	loaded, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Stream.HeartbeatMs, loaded.Stream.HeartbeatMs)
}

func TestConfigKeys(t *testing.T) {
	cfgPath := writeConfig(t, "")
	out, _, err := run(t, "", "--config", cfgPath, "config", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "stream.idle_timeout_ms")
	assert.Contains(t, out, "reconnect.max_attempts")
}

// =============================================================================
// DOCTOR
// =============================================================================

func TestDoctorPasses(t *testing.T) {
	cfgPath := writeConfig(t, "")
	url := startServer(t, "")

	out, _, err := run(t, "", "--config", cfgPath, "--json", "doctor", "--server", url)
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Checks []struct {
				Name   string `json:"name"`
				Status string `json:"status"`
			} `json:"checks"`
			Failed int `json:"failed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Zero(t, resp.Data.Failed)
	names := make([]string, 0, len(resp.Data.Checks))
	for _, c := range resp.Data.Checks {
		names = append(names, c.Name)
		assert.Equal(t, "pass", c.Status, c.Name)
	}
	assert.Equal(t, []string{"config", "server", "auth", "timeouts"}, names)
}

func TestDoctorReportsFailures(t *testing.T) {
	cfgPath := writeConfig(t, "")
	url := startServer(t, "secret")

	out, _, err := run(t, "", "--config", cfgPath, "doctor", "--server", url)
	require.Error(t, err)
	assert.Contains(t, out, "rejected the configured token")
	assert.Contains(t, out, "1 failed")

	out, _, err = run(t, "", "--config", cfgPath, "doctor", "--server", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, out, "unreachable")
}

// =============================================================================
// ERRORS AND VERSION
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"cancelled", errCancelled, ExitCancelled},
		{"usage", &UsageError{Err: errors.New("bad")}, ExitUsageError},
		{"config", config.ValidateErrors{{Field: "server.port", Message: "bad"}}, ExitConfigError},
		{"auth", &reconnect.StatusError{StatusCode: 401}, ExitAuthError},
		{"server", &reconnect.ExhaustedError{Attempts: 3, Last: &reconnect.StatusError{StatusCode: 502}}, ExitNetworkError},
		{"timeout", fmt.Errorf("attempt: %w", client.ErrConnectTimeout), ExitTimeoutError},
		{"truncated", &stream.Error{Code: event.CodeResponseTruncated}, ExitAnswerError},
		{"explicit", &CommandError{Command: "x", Action: "y", Reason: "z", Code: ExitConfigError}, ExitConfigError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestDisplayErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, &reconnect.StatusError{StatusCode: 401, Body: "unauthorized"}, true)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "auth_error", resp.ErrorType)
	require.NotNil(t, resp.Error)
}

func TestVersion(t *testing.T) {
	cfgPath := writeConfig(t, "")
	out, _, err := run(t, "", "--config", cfgPath, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "balli "+Version)

	out, _, err = run(t, "", "--config", cfgPath, "--json", "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "`+Version+`"`)
}

func TestAskSave(t *testing.T) {
	cfgPath := writeConfig(t, "")
	url := startServer(t, "")
	dir := filepath.Join(t.TempDir(), "answers")

	_, errOut, err := run(t, "", "--config", cfgPath, "ask", "--server", url, "--save", dir, "--save-format", "json", "What is GI?")
	require.NoError(t, err)
	assert.Contains(t, errOut, "saved "+dir)

	matches, err := filepath.Glob(filepath.Join(dir, "answer_What_is_GI-_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"text": "The answer."`)

	_, _, err = run(t, "", "--config", cfgPath, "ask", "--server", url, "--save", dir, "--save-format", "html", "q")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestViewerThemeHonorsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	th := viewerTheme()
	assert.Equal(t, "Done.", th.Complete.Render("Done."))
}
