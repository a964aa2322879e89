// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the balli command line.
//
// Commands:
//
//	balli serve                 Run the answer stream server
//	balli ask <question>        Stream one answer (TUI on a terminal, plain otherwise)
//	                            --save DIR writes it as Markdown or JSON
//	balli chat                  Interactive prompt; each question supersedes the last
//	balli doctor                Check the config and the configured server
//	balli config show|get|set|path|init|keys
//	balli version
//
// Global flags:
//
//	--config <path>   Config file (default: ~/.balli/config.toml)
//	--debug           Enable debug logs
//	--json            Machine-readable output where supported
//
// Exit codes are listed in errors.go.
package cli
