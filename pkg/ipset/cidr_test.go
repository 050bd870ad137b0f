// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeToCIDRs(t *testing.T) {
	tests := []struct {
		name  string
		r     Range
		want  []string
	}{
		{
			name: "exact /24",
			r:    Range{Start: 0x0A000000, End: 0x0A0000FF},
			want: []string{"10.0.0.0/24"},
		},
		{
			name: "single host",
			r:    Range{Start: 0x0A000005, End: 0x0A000005},
			want: []string{"10.0.0.5/32"},
		},
		{
			name: "unaligned range needs several CIDRs",
			r:    Range{Start: 0x0A000001, End: 0x0A000006},
			want: []string{"10.0.0.1/32", "10.0.0.2/31", "10.0.0.4/31", "10.0.0.6/32"},
		},
		{
			name: "two adjacent /24s",
			r:    Range{Start: 0x0A000000, End: 0x0A0001FF},
			want: []string{"10.0.0.0/23"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cidrs := RangeToCIDRs(tt.r)
			got := make([]string, len(cidrs))
			for i, c := range cidrs {
				got[i] = FormatCIDR(c)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCIDRToRangeRoundTrip(t *testing.T) {
	r := Range{Start: 0x0A000000, End: 0x0A0000FF}
	cidrs := RangeToCIDRs(r)
	assert.Len(t, cidrs, 1)

	back, err := CIDRToRange(cidrs[0])
	assert.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestSetCount(t *testing.T) {
	s := NewSet(Range{Start: 0x0A000000, End: 0x0A0000FF}, Range{Start: 0x0B000000, End: 0x0B000000})
	entries, ips := s.Count()
	assert.Equal(t, 2, entries)
	assert.Equal(t, uint64(257), ips)
}
