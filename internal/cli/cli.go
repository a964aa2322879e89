// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/staslianx/balli-sub009/internal/config"
	"github.com/staslianx/balli-sub009/internal/telemetry"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// app holds what every command shares: the streams, the loaded config and
// the log context.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfgPath string
	debug   bool
	json    bool

	cfg    *config.Config
	logCtx context.Context
}

func newApp() *app {
	return &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp())
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "balli",
		Short:         "Stream answers over server-sent events",
		Long:          "balli serves answers as server-sent event streams and rebuilds them client-side as smoothly paced text.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.in = cmd.InOrStdin()
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			return a.loadConfig(cmd.Context())
		},
	}
	root.SetVersionTemplate("balli {{.Version}}\n")
	root.Version = Version

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgPath, "config", "c", "", "config file (default is ~/.balli/config.toml)")
	flags.BoolVar(&a.debug, "debug", false, "enable debug logs")
	flags.BoolVar(&a.json, "json", false, "machine-readable output")

	root.AddCommand(
		newServeCommand(a),
		newAskCommand(a),
		newChatCommand(a),
		newDoctorCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)
	return root
}

// loadConfig loads the config file and builds the log context.
func (a *app) loadConfig(ctx context.Context) error {
	var (
		cfg *config.Config
		err error
	)
	if a.cfgPath != "" {
		cfg, err = config.LoadFromPath(a.cfgPath)
		if err != nil {
			return &CommandError{Command: "config", Action: "load", Reason: a.cfgPath, Err: err, Code: ExitConfigError}
		}
	} else {
		cfg, err = config.Load()
		if err != nil {
			if cfg == nil {
				return &CommandError{Command: "config", Action: "load", Reason: "default config", Err: err, Code: ExitConfigError}
			}
			fmt.Fprintf(a.errOut, "%s %v (using defaults)\n", WarningStyle.Render("[WARN]"), err)
		}
	}
	if a.debug {
		cfg.Logging.Debug = true
	}
	a.cfg = cfg

	if ctx == nil {
		ctx = context.Background()
	}
	a.logCtx = telemetry.LogContext(ctx, telemetry.LogOptions{
		Format: cfg.Logging.Format,
		Debug:  cfg.Logging.Debug,
		Output: a.errOut,
	})
	return nil
}

// watchPath returns the config file a running server should watch.
func (a *app) watchPath() string {
	if a.cfgPath != "" {
		return a.cfgPath
	}
	for _, resolve := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON} {
		if p, err := resolve(); err == nil {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := VersionInfo{
				Version:   Version,
				GitCommit: GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if a.json {
				return writeJSONResponse(a.out, NewJSONResponse("version", info))
			}
			fmt.Fprintf(a.out, "balli %s\n", info.Version)
			fmt.Fprintf(a.out, "  commit:   %s\n", info.GitCommit)
			fmt.Fprintf(a.out, "  built:    %s\n", info.BuildDate)
			fmt.Fprintf(a.out, "  go:       %s\n", info.GoVersion)
			fmt.Fprintf(a.out, "  platform: %s\n", info.Platform)
			return nil
		},
	}
}

// VersionInfo is the version command's JSON payload.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return ExitSuccess
	}
	jsonMode, _ := root.PersistentFlags().GetBool("json")
	DisplayError(root.ErrOrStderr(), err, jsonMode)
	if errors.Is(err, errCancelled) {
		return ExitCancelled
	}
	return ExitCode(err)
}
