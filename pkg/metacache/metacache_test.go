// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package metacache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipsetkeeper/pkg/model"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), ".cache"))
	require.NoError(t, err)
	assert.Empty(t, c.Feeds())
}

func TestPutSaveReloadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".cache")
	c, err := Open(path)
	require.NoError(t, err)

	c.Put("demo", model.SetState{Version: 3, EntryCount: 10})
	require.NoError(t, c.Save())

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reloaded.Get("demo").Version)
	assert.Equal(t, 10, reloaded.Get("demo").EntryCount)
}

func TestSaveKeepsPreviousVersionAsOld(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".cache")
	c, err := Open(path)
	require.NoError(t, err)

	c.Put("demo", model.SetState{Version: 1})
	require.NoError(t, c.Save())

	c.Put("demo", model.SetState{Version: 2})
	require.NoError(t, c.Save())

	old, err := Open(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, int64(1), old.Get("demo").Version)
}

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := model.SetState{LastProcessed: now.Add(-time.Hour)}
	stale := model.SetState{LastProcessed: now.Add(-8 * 24 * time.Hour)}

	assert.False(t, IsStale(fresh, now))
	assert.True(t, IsStale(stale, now))
}
