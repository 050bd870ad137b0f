// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		name    string
		tok     string
		want    Range
		wantErr bool
	}{
		{name: "bare address", tok: "1.2.3.4", want: Range{Start: 0x01020304, End: 0x01020304}},
		{name: "cidr", tok: "10.0.0.0/24", want: Range{Start: 0x0A000000, End: 0x0A0000FF}},
		{name: "dash range", tok: "10.0.0.5-10.0.0.9", want: Range{Start: 0x0A000005, End: 0x0A000009}},
		{name: "dotted mask", tok: "10.0.0.0/255.255.255.0", want: Range{Start: 0x0A000000, End: 0x0A0000FF}},
		{name: "zero-prefixed octet rejected", tok: "01.2.3.4", wantErr: true},
		{name: "mask below one rejected", tok: "1.2.3.4/0", wantErr: true},
		{name: "garbage", tok: "not-an-ip", wantErr: true},
		{name: "reversed range rejected", tok: "10.0.0.9-10.0.0.5", wantErr: true},
		{name: "octet out of range", tok: "1.2.3.256", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseToken(tt.tok)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTokens_DropsInvalidSilently(t *testing.T) {
	s := ParseTokens([]string{"1.2.3.4", "garbage", "0.0.0.0/0", "10.0.0.0/24"})
	entries, ips := s.Count()
	assert.Equal(t, 2, entries) // "1.2.3.4/32" and "10.0.0.0/24"; garbage and /0 dropped
	assert.Equal(t, uint64(1+256), ips)
}
