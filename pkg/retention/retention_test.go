// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipsetkeeper/pkg/ipset"
)

func TestUpdateRetentionScenario(t *testing.T) {
	// spec.md §8 scenario 6: S1={a,b} at t=0, S2={b,c} at t=3600s.
	tracker := NewTracker(t.TempDir())
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	s1 := ipset.ParseTokens([]string{"1.1.1.1", "2.2.2.2"}) // a, b
	st1, err := tracker.Update(t0, s1)
	require.NoError(t, err)
	assert.Equal(t, t0, st1.Started)
	assert.True(t, st1.Incomplete)
	assert.Equal(t, 2, st1.Current.Sum())

	s2 := ipset.ParseTokens([]string{"2.2.2.2", "3.3.3.3"}) // b, c
	st2, err := tracker.Update(t1, s2)
	require.NoError(t, err)

	// "a" rotated out after 1 hour.
	assert.Equal(t, 1, st2.Past.Sum())
	assert.Equal(t, 1, st2.Past[1])

	// "b" (age 1h) and "c" (age 0h) remain current.
	assert.Equal(t, 2, st2.Current.Sum())
	assert.Equal(t, 1, st2.Current[1])
	assert.Equal(t, 1, st2.Current[0])
}

func TestUpdateIsNoOpWhenNotNewer(t *testing.T) {
	tracker := NewTracker(t.TempDir())
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := ipset.ParseTokens([]string{"1.1.1.1"})

	first, err := tracker.Update(t0, s)
	require.NoError(t, err)

	second, err := tracker.Update(t0, s) // same timestamp, not newer
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCurrentHistogramAlwaysMatchesLatestPopulation(t *testing.T) {
	tracker := NewTracker(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s0 := ipset.ParseTokens([]string{"1.1.1.1"}) // a, observed at started
	_, err := tracker.Update(base, s0)
	require.NoError(t, err)

	s1 := ipset.ParseTokens([]string{"1.1.1.1", "2.2.2.2"}) // a stays, b joins
	st1, err := tracker.Update(base.Add(time.Hour), s1)
	require.NoError(t, err)
	assert.Equal(t, int(s1.UniqueCount()), st1.Current.Sum())
	assert.True(t, st1.Incomplete, "the founding cohort (a) has not yet rotated out")

	s2 := ipset.ParseTokens([]string{"1.1.1.1"}) // b leaves, strictly after started
	st2, err := tracker.Update(base.Add(2*time.Hour), s2)
	require.NoError(t, err)
	assert.Equal(t, int(s2.UniqueCount()), st2.Current.Sum())
	assert.Equal(t, 1, st2.Past.Sum(), "b's departure is counted since it joined after started")
	assert.True(t, st2.Incomplete, "a, the founding member, is still present")
}
