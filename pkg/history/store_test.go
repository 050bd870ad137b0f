// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipsetkeeper/pkg/ipset"
)

func mustSet(tokens ...string) *ipset.Set {
	return ipset.ParseTokens(tokens)
}

func TestKeepAndUnionSince(t *testing.T) {
	store := NewStore(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Keep("demo", base, mustSet("1.1.1.0/24")))
	require.NoError(t, store.Keep("demo", base.Add(30*time.Minute), mustSet("2.2.2.0/24")))
	require.NoError(t, store.Keep("demo", base.Add(2*24*time.Hour), mustSet("3.3.3.0/24")))

	now := base.Add(2*24*time.Hour + time.Minute)

	unionDay, err := store.UnionSince("demo", 24*time.Hour, now)
	require.NoError(t, err)
	assert.True(t, unionDay.Equal(mustSet("3.3.3.0/24")))

	unionWeek, err := store.UnionSince("demo", 7*24*time.Hour, now)
	require.NoError(t, err)
	assert.True(t, unionWeek.Equal(mustSet("1.1.1.0/24", "2.2.2.0/24", "3.3.3.0/24")))
}

func TestKeepIsIdempotentOnDuplicateTimestamp(t *testing.T) {
	store := NewStore(t.TempDir())
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Keep("demo", ts, mustSet("1.1.1.1")))
	require.NoError(t, store.Keep("demo", ts, mustSet("9.9.9.9"))) // ignored: entry already present

	union, err := store.UnionSince("demo", time.Hour, ts.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, union.Equal(mustSet("1.1.1.1")))
}

func TestCleanupRemovesOldEntries(t *testing.T) {
	store := NewStore(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Keep("demo", base, mustSet("1.1.1.1")))
	require.NoError(t, store.Keep("demo", base.Add(10*24*time.Hour), mustSet("2.2.2.2")))

	now := base.Add(10 * 24 * time.Hour)
	require.NoError(t, store.Cleanup("demo", 7*24*time.Hour, now))

	entries, err := store.entries("demo")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, base.Add(10*24*time.Hour).Unix(), entries[0].Unix())
}
