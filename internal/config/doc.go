// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// balli-stream.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (BALLI_*)
//   - ~/.balli/config.toml
//   - ~/.balli/config.json
//   - Built-in defaults
//
// BALLI_CONFIG_DIR replaces ~/.balli.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	srv := server.New(cfg)
//
// Hot reload:
//
//	go config.Watch(ctx, path, func(cfg *config.Config) {
//	    srv.ApplyConfig(cfg)
//	}, nil)
package config
