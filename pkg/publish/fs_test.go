// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package publish

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSPublishSetsMtimeFromSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist")
	src := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, FSPublish(path, []byte("1.2.3.0/24\n"), src))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, src, info.ModTime(), time.Second)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.0/24\n", string(data))
}

func TestFSPublishLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist")
	require.NoError(t, FSPublish(path, []byte("x"), time.Time{}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestPreserveErrorWritesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, PreserveError(dir, "blocklist", []byte("bad data"), at))

	data, err := os.ReadFile(filepath.Join(dir, "blocklist-"+"1767225600"))
	require.NoError(t, err)
	assert.Equal(t, "bad data", string(data))
}
