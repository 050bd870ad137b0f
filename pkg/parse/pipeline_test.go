// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipsetkeeper/pkg/ipset"
)

func TestPipelineStripsCommentsAndBlankLines(t *testing.T) {
	p := NewPipeline(StripHashComments, TrimEmptyLines)
	lines, err := p.Run([]byte("1.2.3.4 # evil\n\n# pure comment\n5.6.7.8\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.3.4", "5.6.7.8"}, lines)
}

func TestPipelineDottedMaskConversion(t *testing.T) {
	p := NewPipeline(DottedMaskToBitmask, TrimEmptyLines)
	lines, err := p.Run([]byte("10.0.0.0/255.255.255.0\n10.0.1.0/24\n10.0.2.0/24\n"))
	require.NoError(t, err)

	set := ipset.ParseTokens(lines)
	cidrs := set.ToCIDRList()
	require.Len(t, cidrs, 3)
	for _, c := range cidrs {
		ones, _ := c.Mask.Size()
		assert.Equal(t, 24, ones)
	}
}

func TestPipelineCollapsesFourSiblingTwentyFours(t *testing.T) {
	p := NewPipeline(TrimEmptyLines)
	lines, err := p.Run([]byte("10.0.0.0/24\n10.0.1.0/24\n10.0.2.0/24\n10.0.3.0/24\n"))
	require.NoError(t, err)

	set := ipset.ParseTokens(lines)
	cidrs := set.ToCIDRList()
	require.Len(t, cidrs, 1)
	assert.Equal(t, "10.0.0.0/22", ipset.FormatCIDR(cidrs[0]))
}

func TestValidityFilterDropsZeroAndSlashZero(t *testing.T) {
	p := NewPipeline(TrimEmptyLines)
	lines, err := p.Run([]byte("0.0.0.0\n1.2.3.0/0\n5.6.7.8\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"5.6.7.8"}, lines)
}

func TestSnortRuleExtractor(t *testing.T) {
	p := NewPipeline(SnortRuleExtractor)
	lines, err := p.Run([]byte("alert ip [1.2.3.4,5.6.7.0/24] any -> $HOME_NET any (msg:\"x\")\nnot-a-rule\n"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.2.3.4", "5.6.7.0/24"}, lines)
}

func TestXMLField(t *testing.T) {
	p := NewPipeline(XMLField("ip"))
	lines, err := p.Run([]byte("<item><title>bad host</title><ip>9.9.9.9</ip></item>"))
	require.NoError(t, err)
	assert.Equal(t, []string{"9.9.9.9"}, lines)
}
