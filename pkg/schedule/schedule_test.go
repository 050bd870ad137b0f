// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlack(t *testing.T) {
	assert.Equal(t, time.Duration(0), Slack(30*time.Minute))
	assert.Equal(t, time.Duration(0), Slack(10*time.Minute))
	assert.Equal(t, 2*time.Minute, Slack(60*time.Minute))
	assert.Equal(t, 10*time.Minute, Slack(2000*time.Minute))
}

func TestEffectivePeriodNoFailures(t *testing.T) {
	got := EffectivePeriod(60*time.Minute, 0, DefaultFailureThreshold)
	assert.Equal(t, 60*time.Minute+Slack(60*time.Minute), got)
}

func TestEffectivePeriodTransientHalves(t *testing.T) {
	full := 60*time.Minute + Slack(60*time.Minute)
	got := EffectivePeriod(60*time.Minute, 5, DefaultFailureThreshold)
	assert.LessOrEqual(t, got, (full+1)/2)
}

func TestEffectivePeriodSustainedPenalty(t *testing.T) {
	// scenario 4: IGNORE_REPEATING_DOWNLOAD_ERRORS=10, P=60.
	got11 := EffectivePeriod(60*time.Minute, 11, 10)
	assert.GreaterOrEqual(t, got11, 60*time.Minute)

	got20 := EffectivePeriod(60*time.Minute, 20, 10)
	assert.GreaterOrEqual(t, got20, 600*time.Minute)
}

func TestDecideRespectsElapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// period 60: t=30min -> skipped; t=60min+slack (62min) -> run.
	d30 := Decide(start.Add(30*time.Minute), start, 60*time.Minute, 0, DefaultFailureThreshold, false)
	assert.False(t, d30.ShouldRun)

	d60 := Decide(start.Add(60*time.Minute+Slack(60*time.Minute)), start, 60*time.Minute, 0, DefaultFailureThreshold, false)
	assert.True(t, d60.ShouldRun)
}

func TestDecideIgnoreLastChecked(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Decide(start.Add(time.Minute), start, 60*time.Minute, 0, DefaultFailureThreshold, true)
	assert.True(t, d.ShouldRun)
}

func TestDecideZeroLastCheckedAlwaysRuns(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Decide(now, time.Time{}, 60*time.Minute, 0, DefaultFailureThreshold, false)
	assert.True(t, d.ShouldRun)
}
