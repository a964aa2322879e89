// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/staslianx/balli-sub009/internal/config"
	"github.com/staslianx/balli-sub009/internal/server"
)

// doctorTimeout bounds each network check.
const doctorTimeout = 3 * time.Second

// CheckStatus is the result of one health check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	default:
		return "fail"
	}
}

// Symbol returns the styled marker for the status.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return PassStyle.Render("[OK]")
	case CheckWarn:
		return WarningStyle.Render("[!!]")
	default:
		return ErrorStyle.Render("[XX]")
	}
}

// HealthCheck is one diagnostic.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"-"`
	Message string      `json:"message"`
	Fix     string      `json:"fix,omitempty"`
}

// MarshalJSON adds the status as text.
func (c HealthCheck) MarshalJSON() ([]byte, error) {
	type plain HealthCheck
	return json.Marshal(struct {
		plain
		Status string `json:"status"`
	}{plain(c), c.Status.String()})
}

// Render formats the check for the terminal.
func (c *HealthCheck) Render() string {
	out := fmt.Sprintf("%s %-10s %s", c.Status.Symbol(), c.Name, c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		out += "\n" + MutedStyle.Render("     -> "+c.Fix)
	}
	return out
}

// DoctorReport is the doctor command's JSON payload.
type DoctorReport struct {
	Checks []*HealthCheck `json:"checks"`
	Passed int            `json:"passed"`
	Warned int            `json:"warned"`
	Failed int            `json:"failed"`
}

func newDoctorCommand(a *app) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag"},
		Short:   "Check the config and the configured server",
		Long: `Run diagnostics:

  config     the loaded configuration is valid
  server     the server answers /health
  auth       the configured token is accepted
  timeouts   the client idle timeout outlasts the server heartbeat`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			report := runChecks(ctx, a.cfg, a.sessionOptions(serverURL).ServerURL)
			if a.json {
				if err := writeJSONResponse(a.out, NewJSONResponse("doctor", report)); err != nil {
					return err
				}
			} else {
				printReport(a, report)
			}
			if report.Failed > 0 {
				return &CommandError{Command: "doctor", Action: "check", Reason: fmt.Sprintf("%d check(s) failed", report.Failed)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (overrides client.server_url)")
	return cmd
}

func printReport(a *app, r DoctorReport) {
	fmt.Fprintln(a.out, TitleStyle.Render("balli doctor"))
	fmt.Fprintln(a.out, MutedStyle.Render(strings.Repeat("=", 41)))
	for _, c := range r.Checks {
		fmt.Fprintln(a.out, c.Render())
	}
	fmt.Fprintln(a.out, MutedStyle.Render(strings.Repeat("-", 41)))

	parts := []string{fmt.Sprintf("%d passed", r.Passed)}
	if r.Warned > 0 {
		parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d warning", r.Warned)))
	}
	if r.Failed > 0 {
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", r.Failed)))
	}
	fmt.Fprintln(a.out, strings.Join(parts, ", "))
}

// runChecks runs every check. Checks that need the server are skipped
// once it is unreachable.
func runChecks(ctx context.Context, cfg *config.Config, serverURL string) DoctorReport {
	serverURL = strings.TrimRight(serverURL, "/")
	hc := &http.Client{Timeout: doctorTimeout}

	checks := []*HealthCheck{checkConfig(cfg)}
	health := checkServer(ctx, hc, serverURL)
	checks = append(checks, health)
	if health.Status == CheckPass {
		auth, stats := checkAuth(ctx, hc, serverURL, cfg.Server.AuthToken)
		checks = append(checks, auth)
		if stats != nil {
			checks = append(checks, checkTimeouts(cfg, stats))
		}
	}

	r := DoctorReport{Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case CheckPass:
			r.Passed++
		case CheckWarn:
			r.Warned++
		default:
			r.Failed++
		}
	}
	return r
}

func checkConfig(cfg *config.Config) *HealthCheck {
	c := &HealthCheck{Name: "config"}
	if err := cfg.Validate(); err != nil {
		c.Status = CheckFail
		c.Message = err.Error()
		c.Fix = "balli config show, then balli config set <key> <value>"
		return c
	}
	c.Message = "configuration is valid"
	return c
}

func checkServer(ctx context.Context, hc *http.Client, serverURL string) *HealthCheck {
	c := &HealthCheck{Name: "server"}
	var health server.HealthResponse
	status, err := getJSON(ctx, hc, serverURL+"/health", "", &health)
	switch {
	case err != nil:
		c.Status = CheckFail
		c.Message = fmt.Sprintf("%s unreachable: %v", serverURL, err)
		c.Fix = "start it with: balli serve"
	case status != http.StatusOK:
		c.Status = CheckFail
		c.Message = fmt.Sprintf("%s/health returned %d", serverURL, status)
	default:
		c.Message = fmt.Sprintf("%s is %s (version %s, %d in flight)", serverURL, health.Status, health.Version, health.InFlight)
	}
	return c
}

func checkAuth(ctx context.Context, hc *http.Client, serverURL, token string) (*HealthCheck, *server.StatsResponse) {
	c := &HealthCheck{Name: "auth"}
	var stats server.StatsResponse
	status, err := getJSON(ctx, hc, serverURL+"/v1/stream/stats", token, &stats)
	switch {
	case err != nil:
		c.Status = CheckFail
		c.Message = err.Error()
		return c, nil
	case status == http.StatusUnauthorized:
		c.Status = CheckFail
		c.Message = "the server rejected the configured token"
		c.Fix = "balli config set server.auth_token <token>"
		return c, nil
	case status != http.StatusOK:
		c.Status = CheckWarn
		c.Message = fmt.Sprintf("stats endpoint returned %d", status)
		return c, nil
	}
	if token == "" {
		c.Message = "server does not require a token"
	} else {
		c.Message = "token accepted"
	}
	return c, &stats
}

func checkTimeouts(cfg *config.Config, stats *server.StatsResponse) *HealthCheck {
	c := &HealthCheck{Name: "timeouts"}
	idle := cfg.Stream.IdleTimeout()
	heartbeat := time.Duration(stats.HeartbeatMs) * time.Millisecond
	if heartbeat > 0 && idle <= heartbeat {
		c.Status = CheckWarn
		c.Message = fmt.Sprintf("idle timeout %s does not outlast the server heartbeat %s", idle, heartbeat)
		c.Fix = fmt.Sprintf("balli config set stream.idle_timeout_ms %d", 2*heartbeat.Milliseconds())
		return c
	}
	c.Message = fmt.Sprintf("idle timeout %s, server heartbeat %s", idle, heartbeat)
	return c
}

// getJSON fetches url and decodes a 200 body into v.
func getJSON(ctx context.Context, hc *http.Client, url, token string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", url, err)
	}
	return resp.StatusCode, nil
}
