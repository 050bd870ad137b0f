// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipsetkeeper/pkg/model"
)

func TestProcessSplitRepresentations(t *testing.T) {
	def := model.FeedDefinition{
		Name:           "demo",
		Family:         model.FamilyV4,
		Representation: model.RepSplit,
	}
	ipDef, netDef := def.SplitPeers()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens := []string{"1.2.3.4", "10.0.0.0/24"}

	ipResult, err := Process(ipDef, tokens, now, now, 1, nil)
	require.NoError(t, err)
	assert.Contains(t, string(ipResult.Snapshot), "1.2.3.4")
	assert.NotContains(t, string(ipResult.Snapshot), "10.0.0.0/24")

	netResult, err := Process(netDef, tokens, now, now, 1, nil)
	require.NoError(t, err)
	assert.Contains(t, string(netResult.Snapshot), "10.0.0.0/24")
	assert.NotContains(t, string(netResult.Snapshot), "1.2.3.4")
}

func TestProcessEmptyRejectedByDefault(t *testing.T) {
	def := model.FeedDefinition{Name: "demo", Family: model.FamilyV4, Representation: model.RepBoth}
	now := time.Now()
	_, err := Process(def, nil, now, now, 1, nil)
	assert.ErrorIs(t, err, model.ErrEmptyRejected)
}

func TestProcessAcceptEmptyPublishesHeaderOnly(t *testing.T) {
	def := model.FeedDefinition{Name: "demo", Family: model.FamilyV4, Representation: model.RepBoth, AcceptEmpty: true}
	now := time.Now()
	result, err := Process(def, nil, now, now, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Entries)
	assert.True(t, result.Changed)
}

func TestProcessIdempotentAcrossRegeneration(t *testing.T) {
	def := model.FeedDefinition{Name: "demo", Family: model.FamilyV4, Representation: model.RepBoth}
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	tokens := []string{"1.2.3.4", "5.6.7.8"}

	first, err := Process(def, tokens, t1, t1, 1, nil)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := Process(def, tokens, t1, t2, 1, first.Snapshot)
	require.NoError(t, err)
	assert.False(t, second.Changed, "same tokens republished later must be idempotent despite a different generated timestamp")
}
