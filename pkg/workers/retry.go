// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package workers provides the fixed-delay retry helper pkg/fetch uses for
// a single in-flight download attempt (spec.md's SUPPLEMENTED FEATURES:
// retry within one fetch, not across Scheduler runs — that back-off is
// pkg/schedule's job), adapted from the teacher's pkg/util/workers.
package workers

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures Retry's fixed-delay backoff.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryConfig matches spec.md's SUPPLEMENTED FEATURES note: up to 3
// attempts, fixed delay, for a single in-flight fetch (not across Scheduler
// runs — that back-off is pkg/schedule's job).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Delay: 5 * time.Second}
}

// Retry calls fn until it succeeds or MaxAttempts is exhausted, sleeping
// Delay between attempts (fixed, not exponential — the teacher's
// iptoasn.Fetcher.Fetch retry loop, not its workers.Retry exponential one).
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(cfg.Delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
