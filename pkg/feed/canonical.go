// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package feed

import (
	"bufio"
	"bytes"
	"strings"

	"ipsetkeeper/pkg/ipset"
	"ipsetkeeper/pkg/model"
)

// HashKindFor returns the ipset hash kind implied by a representation:
// "ip" feeds hash individual addresses, everything else hashes CIDR nets.
func HashKindFor(rep model.Representation) string {
	if rep == model.RepIP {
		return "ip"
	}
	return "net"
}

// bodyLines renders the representation-filtered body of a canonical
// snapshot: for RepIP, every address in s as a bare "a.b.c.d" line
// (CIDRs Expanded per spec.md §3 — deliberately not re-merged, since
// Set.Union's adjacency-merge would collapse runs of hosts back into
// ranges); for RepNet, only CIDRs with mask < 32; for RepBoth (and
// anything else), the minimal CIDR decomposition including /32s.
func bodyLines(s *ipset.Set, rep model.Representation) []string {
	switch rep {
	case model.RepIP:
		ips := s.HostMaterialize()
		out := make([]string, len(ips))
		for i, ip := range ips {
			out[i] = ip.String()
		}
		return out
	case model.RepNet:
		var out []string
		for _, c := range s.ToCIDRList() {
			ones, _ := c.Mask.Size()
			if ones < 32 {
				out = append(out, ipset.FormatCIDR(c))
			}
		}
		return out
	default:
		var out []string
		for _, c := range s.ToCIDRList() {
			out = append(out, ipset.FormatCIDR(c))
		}
		return out
	}
}

// KernelElements renders the element strings a KernelAdapter should load
// for s under rep, applying PrefixReduce first when rep hashes CIDR nets
// (spec.md §4.9): a RepIP feed hashes individual addresses and is never
// reduced, since reduction only makes sense for range coverage.
func KernelElements(s *ipset.Set, rep model.Representation, factor, minEntries int) []string {
	if rep == model.RepIP {
		return bodyLines(s, rep)
	}
	return bodyLines(s.PrefixReduce(factor, minEntries), rep)
}

// CountFor returns the (entries, ips) pair spec.md §3 tracks for a
// representation-filtered body: entries is the number of rendered lines,
// ips is the population those lines cover (not the full set's population
// for RepNet, which excludes single-address coverage).
func CountFor(s *ipset.Set, rep model.Representation) (entries int, ips uint64) {
	lines := bodyLines(s, rep)
	entries = len(lines)
	if rep == model.RepNet {
		for _, c := range s.ToCIDRList() {
			ones, bits := c.Mask.Size()
			if ones < 32 {
				ips += uint64(1) << uint(bits-ones)
			}
		}
		return entries, ips
	}
	return entries, s.UniqueCount()
}

// RenderCanonical renders the full canonical snapshot: header block,
// blank line, then one representation-filtered entry per line, sorted
// ascending.
func RenderCanonical(s *ipset.Set, rep model.Representation, meta HeaderMeta) []byte {
	// bodyLines already yields lines in integer-ascending start-address
	// order (from Set.ToCIDRList/HostMaterialize, both range-ordered); a
	// textual sort here would corrupt that across differing octet widths
	// (e.g. "10." sorts before "9." lexically but not numerically), so the
	// order is taken as-is rather than re-sorted.
	lines := bodyLines(s, rep)

	var buf bytes.Buffer
	buf.WriteString(RenderHeader(meta))
	buf.WriteByte('\n')
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ParseCanonical parses a previously rendered canonical snapshot back into
// a Set, ignoring header/comment lines. Round-tripping through
// RenderCanonical then ParseCanonical then RenderCanonical again with the
// same meta is the identity on the body, which is the property spec.md §8
// calls out: "parsing [the canonical form] and re-emitting it is the
// identity."
func ParseCanonical(data []byte) (*ipset.Set, error) {
	var tokens []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ipset.ParseTokens(tokens), nil
}
