// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconnect

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config controls retry behavior.
type Config struct {
	// MaxAttempts counts the first attempt. Values below 1 mean a single attempt.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the delay after every retry.
	Multiplier float64

	// Jitter randomizes each delay by up to this fraction in either direction.
	Jitter float64
}

// DefaultConfig returns the retry policy used by the streaming client.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := c.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(c.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if c.MaxBackoff > 0 && delay > float64(c.MaxBackoff) {
		delay = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		delay += delay * c.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter needs no crypto rand
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Operation is one connection attempt. It calls connected once the
// connection is established; returning nil also counts as connected.
type Operation func(ctx context.Context, connected func()) error

// Controller runs operations under a retry policy.
type Controller struct {
	cfg Config

	// OnReconnecting runs before each retry with the upcoming attempt number.
	OnReconnecting func(attempt int, err error, delay time.Duration)

	// OnReconnected runs once when a retry attempt connects.
	OnReconnected func(attempt int)

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Controller for cfg.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg, sleep: sleepContext}
}

// Config returns the controller's retry policy.
func (c *Controller) Config() Config {
	return c.cfg
}

// Run executes op until it succeeds, fails permanently, the context ends or
// attempts run out. Exhaustion returns *ExhaustedError.
func (c *Controller) Run(ctx context.Context, op Operation) error {
	attempts := c.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	start := time.Now()
	var last error

	for attempt := 1; attempt <= attempts; attempt++ {
		var once sync.Once
		connected := func() {
			once.Do(func() {
				if attempt > 1 && c.OnReconnected != nil {
					c.OnReconnected(attempt)
				}
			})
		}

		err := op(ctx, connected)
		if err == nil {
			connected()
			return nil
		}
		last = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := c.cfg.Backoff(attempt)
		if c.OnReconnecting != nil {
			c.OnReconnecting(attempt+1, err, delay)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &ExhaustedError{
		Attempts: attempts,
		Elapsed:  time.Since(start),
		Last:     last,
	}
}

// RunWithRetry runs op with the default backoff and maxAttempts attempts.
// Either callback may be nil.
func RunWithRetry(ctx context.Context, op Operation, maxAttempts int,
	onReconnecting func(attempt int, err error, delay time.Duration),
	onReconnected func(attempt int)) error {
	cfg := DefaultConfig()
	cfg.MaxAttempts = maxAttempts

	c := New(cfg)
	c.OnReconnecting = onReconnecting
	c.OnReconnected = onReconnected
	return c.Run(ctx, op)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
