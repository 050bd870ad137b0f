// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipsetkeeper/pkg/model"
)

const sampleYAML = `
settings:
  base_dir: /data/ipsetkeeper
  parallel_dns_queries: 4
feeds:
  - name: spamhaus_drop
    source_url: https://example.invalid/drop.txt
    update_period: 30m
    representation: net
    history_windows: ["24h", "720h"]
    parser_chain:
      - name: strip-hash-comments
    accept_empty: false
  - name: blocklist_split
    source_url: https://example.invalid/mixed.txt
    representation: split
`

func TestLoadParsesFeedsAndDerivesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	reg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/ipsetkeeper", reg.Settings.BaseDir)
	assert.Equal(t, "/data/ipsetkeeper/cache", reg.Settings.CacheDir)
	assert.Equal(t, 4, reg.Settings.ParallelDNSQueries)

	require.Len(t, reg.Feeds, 2)
	assert.Equal(t, "spamhaus_drop", reg.Feeds[0].Name)
	assert.Equal(t, model.RepNet, reg.Feeds[0].Representation)
	require.Len(t, reg.Feeds[0].HistoryWindows, 2)

	assert.Equal(t, model.RepSplit, reg.Feeds[1].Representation)
	assert.Equal(t, model.FetcherHTTP, reg.Feeds[1].Fetcher.Kind)
}

func TestLoadRejectsFeedWithoutName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feeds:\n  - source_url: x\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("settings:\n  base_dir: /from/file\n"), 0o644))

	t.Setenv("BASE_DIR", "/from/env")

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", reg.Settings.BaseDir)
}
