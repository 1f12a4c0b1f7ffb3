// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"time"
)

// RetryConfig bounds the retries Execute performs when a handler fails
// with a retryable *ToolError. Argument errors and unknown tools are
// never retried.
//
// # Fields
//
//   - MaxAttempts: Total attempts including the first. Values below 1
//     behave as 1 (single shot, no retries).
//   - InitialBackoff: Wait before the first retry.
//   - BackoffFactor: Multiplier applied to the wait after each retry.
//   - MaxBackoff: Ceiling on the wait between attempts. Zero means
//     uncapped.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffFactor  float64
	MaxBackoff     time.Duration
}

// DefaultRetryConfig gives upstream stores three attempts with waits
// doubling from one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		BackoffFactor:  2.0,
		MaxBackoff:     4 * time.Second,
	}
}

// runWithRetry executes fn until it succeeds, fails with an error that
// is not a retryable *ToolError, or exhausts cfg.MaxAttempts. It
// returns the result, the number of attempts made, and the last error.
//
// The wait between attempts grows by BackoffFactor up to MaxBackoff
// and aborts as soon as ctx is done, so the caller's per-call deadline
// bounds the whole loop, waits included.
func runWithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (any, error)) (any, int, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		te := AsToolError(err)
		if te == nil || !te.Retryable {
			return nil, attempt, err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, cfg.BackoffFactor, cfg.MaxBackoff)
	}
	return nil, attempts, lastErr
}

// nextBackoff scales the current wait by factor, capped at max.
func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	if factor <= 1 {
		return current
	}
	next := time.Duration(float64(current) * factor)
	if max > 0 && next > max {
		return max
	}
	return next
}
