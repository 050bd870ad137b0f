// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeMergesAdjacentAndOverlapping(t *testing.T) {
	s := NewSet(
		Range{Start: 10, End: 20},
		Range{Start: 21, End: 30}, // adjacent to previous
		Range{Start: 15, End: 25}, // overlaps both
		Range{Start: 100, End: 110},
	)
	assert.Equal(t, []Range{{Start: 10, End: 30}, {Start: 100, End: 110}}, s.Ranges())
}

func TestUnion(t *testing.T) {
	a := NewSet(Range{Start: 0, End: 10})
	b := NewSet(Range{Start: 11, End: 20})
	c := NewSet(Range{Start: 100, End: 110})
	assert.Equal(t, []Range{{Start: 0, End: 20}, {Start: 100, End: 110}}, a.Union(b, c).Ranges())
}

func TestIntersect(t *testing.T) {
	a := NewSet(Range{Start: 0, End: 20})
	b := NewSet(Range{Start: 10, End: 30})
	assert.Equal(t, []Range{{Start: 10, End: 20}}, a.Intersect(b).Ranges())
}

func TestDifference(t *testing.T) {
	a := NewSet(Range{Start: 0, End: 20})
	b := NewSet(Range{Start: 10, End: 15})
	got := a.Difference(b)
	assert.Equal(t, []Range{{Start: 0, End: 9}, {Start: 16, End: 20}}, got.Ranges())
}

func TestSymmetricDifference(t *testing.T) {
	a := NewSet(Range{Start: 0, End: 10})
	b := NewSet(Range{Start: 5, End: 15})
	got := a.SymmetricDifference(b)
	assert.Equal(t, []Range{{Start: 0, End: 4}, {Start: 11, End: 15}}, got.Ranges())
}

func TestEqual(t *testing.T) {
	a := NewSet(Range{Start: 0, End: 10}, Range{Start: 20, End: 30})
	b := NewSet(Range{Start: 20, End: 30}, Range{Start: 0, End: 10})
	assert.True(t, a.Equal(b))

	c := NewSet(Range{Start: 0, End: 11})
	assert.False(t, a.Equal(c))
}

func TestCanonicalizeIdempotent(t *testing.T) {
	a := NewSet(Range{Start: 0, End: 255})
	cidrs := a.ToCIDRList()
	reparsed := ParseTokens([]string{FormatCIDR(cidrs[0])})
	assert.True(t, a.Equal(reparsed))
}
