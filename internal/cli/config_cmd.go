// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/staslianx/balli-sub009/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
		Example: `  balli config show
  balli config get stream.heartbeat_ms
  balli config set pacing.base_delay_ms 20
  balli config init`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(*cobra.Command, []string) error {
				if a.json {
					return writeJSONResponse(a.out, NewJSONResponse("config show", redacted(a.cfg)))
				}
				fmt.Fprintln(a.out, a.cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one value",
			Args:  usageArgs(cobra.ExactArgs(1)),
			RunE: func(_ *cobra.Command, args []string) error {
				v, err := a.cfg.Get(args[0])
				if err != nil {
					return &UsageError{Err: err}
				}
				v = maskIfSecret(args[0], v)
				if a.json {
					return writeJSONResponse(a.out, NewJSONResponse("config get", map[string]any{"key": args[0], "value": v}))
				}
				fmt.Fprintln(a.out, formatValue(v))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one value and save the config file",
			Long:  "Change one value and save the config file. List values are comma separated.",
			Args:  usageArgs(cobra.ExactArgs(2)),
			RunE: func(_ *cobra.Command, args []string) error {
				return configSet(a, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(*cobra.Command, []string) error {
				path, err := a.savePath()
				if err != nil {
					return err
				}
				_, statErr := os.Stat(path)
				if a.json {
					return writeJSONResponse(a.out, NewJSONResponse("config path", map[string]any{"path": path, "exists": statErr == nil}))
				}
				fmt.Fprintln(a.out, path)
				return nil
			},
		},
		newConfigInitCommand(a),
		&cobra.Command{
			Use:   "keys",
			Short: "List every config key",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(*cobra.Command, []string) error {
				keys := config.GetAllKeys()
				if a.json {
					return writeJSONResponse(a.out, NewJSONResponse("config keys", keys))
				}
				for _, k := range keys {
					fmt.Fprintln(a.out, KeyStyle.Render(k))
				}
				return nil
			},
		},
	)
	return cmd
}

func newConfigInitCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(*cobra.Command, []string) error {
			path, err := a.savePath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &CommandError{Command: "config", Action: "init", Reason: path + " exists (use --force to overwrite)", Code: ExitUsageError}
			}
			if err := saveConfig(config.Default(), path); err != nil {
				return &CommandError{Command: "config", Action: "init", Reason: path, Err: err, Code: ExitConfigError}
			}
			fmt.Fprintf(a.out, "%s wrote %s\n", PassStyle.Render("[OK]"), path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

// savePath is where config changes are written.
func (a *app) savePath() (string, error) {
	if a.cfgPath != "" {
		return a.cfgPath, nil
	}
	if p := a.watchPath(); p != "" {
		return p, nil
	}
	return config.ConfigPathTOML()
}

func saveConfig(cfg *config.Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func configSet(a *app, key, raw string) error {
	next := a.cfg.Clone()

	if err := next.Set(key, raw); err != nil {
		return &UsageError{Err: fmt.Errorf("set %s: %w", key, err)}
	}
	if err := next.Validate(); err != nil {
		return &CommandError{Command: "config", Action: "set", Reason: key, Err: err, Code: ExitConfigError}
	}

	path, err := a.savePath()
	if err != nil {
		return err
	}
	if err := saveConfig(next, path); err != nil {
		return &CommandError{Command: "config", Action: "save", Reason: path, Err: err, Code: ExitConfigError}
	}
	a.cfg = next

	v, _ := next.Get(key)
	if a.json {
		return writeJSONResponse(a.out, NewJSONResponse("config set", map[string]any{"key": key, "value": maskIfSecret(key, v), "path": path}))
	}
	fmt.Fprintf(a.out, "%s %s = %s\n", PassStyle.Render("[OK]"), KeyStyle.Render(key), formatValue(maskIfSecret(key, v)))
	return nil
}

// maskIfSecret hides secret values.
func maskIfSecret(key string, v any) any {
	if s, ok := v.(string); ok && s != "" && strings.HasSuffix(key, "token") {
		return "[REDACTED]"
	}
	return v
}

func redacted(cfg *config.Config) any {
	var out map[string]any
	if err := json.Unmarshal([]byte(cfg.String()), &out); err != nil {
		return cfg.String()
	}
	return out
}

func formatValue(v any) string {
	if list, ok := v.([]string); ok {
		return strings.Join(list, ",")
	}
	return fmt.Sprint(v)
}
