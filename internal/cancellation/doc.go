// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cancellation tracks one cancellation token per in-flight answer so
// concurrent answers can be torn down independently.
package cancellation
