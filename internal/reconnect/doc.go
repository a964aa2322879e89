// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconnect retries dropped streaming connections with bounded
// attempts and exponential backoff.
//
// Only transport failures are retried. Protocol level errors carried inside
// the stream never reach this package, and an operation can opt out of
// retries by returning Permanent(err).
//
// # Usage
//
//	err := reconnect.RunWithRetry(ctx, func(ctx context.Context, connected func()) error {
//	    resp, err := open(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    connected()
//	    return consume(resp.Body)
//	}, 5, onReconnecting, onReconnected)
//
// When attempts run out the returned error is an *ExhaustedError wrapping the
// last failure.
package reconnect
