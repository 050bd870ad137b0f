// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package schedule implements the per-feed next-run decision (spec.md
// §4.3): configured period plus a small long-period grace "slack", and a
// failure back-off that halves the effective period for transient streaks
// and penalizes sustained failure linearly.
package schedule

import (
	"math"
	"time"
)

// DefaultFailureThreshold is F₀ in spec.md §4.3: up to this many
// consecutive failures are treated as transient.
const DefaultFailureThreshold = 10

// Decision is the Scheduler's verdict for one feed this run.
type Decision struct {
	ShouldRun       bool
	EffectivePeriod time.Duration
	NextAllowedAt   time.Time
}

// Slack returns the grace window added to period when period exceeds 30
// minutes: min(10min, ceil((P+50min)/100)). Preserved verbatim per spec.md
// §9 — this formula is policy, not protocol, but behavioral compatibility
// is required.
func Slack(period time.Duration) time.Duration {
	if period <= 30*time.Minute {
		return 0
	}
	minutes := period.Minutes()
	slackMinutes := math.Ceil((minutes + 50) / 100)
	if slackMinutes > 10 {
		slackMinutes = 10
	}
	return time.Duration(slackMinutes) * time.Minute
}

// EffectivePeriod applies the slack and failure policy of spec.md §4.3 to
// the configured period.
func EffectivePeriod(period time.Duration, consecutiveFailures, failureThreshold int) time.Duration {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	effective := period + Slack(period)

	switch {
	case consecutiveFailures <= 0:
		// unchanged
	case consecutiveFailures <= failureThreshold:
		// ceiling-halve: try again soon while a transient is likely.
		effective = (effective + 1) / 2
	default:
		effective = effective * time.Duration(consecutiveFailures-failureThreshold)
	}
	return effective
}

// Decide evaluates whether feed is due to run, given now, its configured
// period, the last time it was checked, and its consecutive failure count.
// ignoreLastChecked bypasses the timer entirely (the --recheck flag,
// documented in spec.md §6 as unsafe for automated runs).
func Decide(now, lastChecked time.Time, period time.Duration, consecutiveFailures, failureThreshold int, ignoreLastChecked bool) Decision {
	effective := EffectivePeriod(period, consecutiveFailures, failureThreshold)
	nextAllowed := lastChecked.Add(effective)

	if ignoreLastChecked || lastChecked.IsZero() {
		return Decision{ShouldRun: true, EffectivePeriod: effective, NextAllowedAt: nextAllowed}
	}

	elapsed := now.Sub(lastChecked)
	return Decision{
		ShouldRun:       elapsed >= effective,
		EffectivePeriod: effective,
		NextAllowedAt:   nextAllowed,
	}
}
