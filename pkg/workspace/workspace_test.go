// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package workspace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesUniqueRootPerCall(t *testing.T) {
	base := t.TempDir()

	a, err := New(base)
	require.NoError(t, err)
	b, err := New(base)
	require.NoError(t, err)

	assert.NotEqual(t, a.Root, b.Root)
	assert.DirExists(t, a.Root)
	assert.DirExists(t, b.Root)
}

func TestFeedDirCreatesSubdirectory(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	dir, err := w.FeedDir("blocklist")
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestCleanupRemovesEverything(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = w.FeedDir("blocklist")
	require.NoError(t, err)

	require.NoError(t, w.Cleanup())
	_, err = os.Stat(w.Root)
	assert.True(t, os.IsNotExist(err))
}
