// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the config loader and the
// answer renderers.
//
//   - AtomicWriteFile: write-then-rename so a saved config is never torn
//   - TruncateWidth: terminal cell width aware text fitting
//   - Indent, Delta: helpers for incremental console output
package util
