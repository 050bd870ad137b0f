// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixReduce_NoopBelowMinEntries(t *testing.T) {
	s := NewSet(Range{Start: 0x0A000000, End: 0x0A0000FF})
	reduced := s.PrefixReduce(DefaultReduceFactor, DefaultReduceMinEntries)
	assert.True(t, s.Equal(reduced))
}

func TestPrefixReduce_PromotesSiblingsAboveMinEntries(t *testing.T) {
	var ranges []Range
	base := uint32(0x0A000000)
	// Every other /24, so the eight blocks stay eight separate entries.
	for i := uint32(0); i < 8; i++ {
		start := base + i*512
		ranges = append(ranges, Range{Start: start, End: start + 255})
	}
	s := NewSet(ranges...)

	entriesBefore, ipsBefore := s.Count()
	assert.Equal(t, 8, entriesBefore)

	reduced := s.PrefixReduce(100, 1)
	entriesAfter, ipsAfter := reduced.Count()

	assert.True(t, entriesAfter <= entriesBefore)
	assert.True(t, ipsAfter >= ipsBefore) // reduction only ever grows coverage
	assert.True(t, reduced.Intersect(s).Equal(s)) // superset property
}

func TestPrefixReduce_RespectsGrowthFactor(t *testing.T) {
	// Two /24s separated by a gap cannot be promoted to a shared /23 within a
	// tiny growth factor, since the sibling-adjacency check already rules
	// out non-adjacent blocks regardless of factor.
	s := NewSet(
		Range{Start: 0x0A000000, End: 0x0A0000FF},
		Range{Start: 0x0A000300, End: 0x0A0003FF},
	)
	reduced := s.PrefixReduce(0, 1)
	assert.True(t, s.Equal(reduced))
}
