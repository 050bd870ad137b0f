// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipset

import (
	"encoding/binary"
	"fmt"
	"net"
)

// IPToUint32 converts a 4-byte IPv4 address to its big-endian uint32 form.
func IPToUint32(ip net.IP) (uint32, error) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, ErrIPv6Unsupported
	}
	return binary.BigEndian.Uint32(v4), nil
}

// Uint32ToIP converts a big-endian uint32 back to a 4-byte net.IP.
func Uint32ToIP(n uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, n)
	return ip
}

// CIDRToRange converts a parsed CIDR to its covered Range.
func CIDRToRange(ipnet *net.IPNet) (Range, error) {
	start, err := IPToUint32(ipnet.IP)
	if err != nil {
		return Range{}, err
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return Range{}, ErrIPv6Unsupported
	}
	hostBits := uint(bits - ones)
	end := start + (uint32(1)<<hostBits - 1)
	return Range{Start: start, End: end}, nil
}

// RangeToCIDRs decomposes a Range into the minimal list of CIDR blocks that
// exactly cover it. The alignment search — the largest prefix length that
// both starts on a power-of-two boundary and does not overrun the range end
// — is the teacher's rangeToCIDRsV4 algorithm (trailing-zero-bit count on
// the running start address).
func RangeToCIDRs(r Range) []*net.IPNet {
	var out []*net.IPNet
	start, end := r.Start, r.End
	for start <= end {
		maxTrailingZeros := 32
		if start != 0 {
			maxTrailingZeros = trailingZeros32(start)
		}

		prefixLen := 32
		for pl := 32 - maxTrailingZeros; pl <= 32; pl++ {
			blockSize := uint32(1) << uint(32-pl)
			blockEnd := start + blockSize - 1
			if blockEnd <= end {
				prefixLen = pl
				break
			}
		}

		out = append(out, &net.IPNet{
			IP:   Uint32ToIP(start),
			Mask: net.CIDRMask(prefixLen, 32),
		})

		blockSize := uint32(1) << uint(32-prefixLen)
		next := start + blockSize
		if next <= start {
			// wrapped past 255.255.255.255 (a /0 block wraps to start
			// itself); the block we just emitted was the last one possible.
			break
		}
		start = next
	}
	return out
}

func trailingZeros32(n uint32) int {
	count := 0
	for n&1 == 0 {
		count++
		n >>= 1
	}
	return count
}

// FormatCIDR renders a CIDR in canonical "a.b.c.d/m" form, masking the IP to
// its network address first so callers never need to pre-normalize.
func FormatCIDR(ipnet *net.IPNet) string {
	ip := ipnet.IP.Mask(ipnet.Mask)
	ones, _ := ipnet.Mask.Size()
	return fmt.Sprintf("%s/%d", ip.String(), ones)
}

// ToCIDRList emits the minimal CIDR decomposition of every range in the
// set, in ascending address order.
func (s *Set) ToCIDRList() []*net.IPNet {
	var out []*net.IPNet
	for _, r := range s.Ranges() {
		out = append(out, RangeToCIDRs(r)...)
	}
	return out
}

// Count returns (entries, ips): the number of CIDRs in the canonical CIDR
// emission and the total address population.
func (s *Set) Count() (entries int, ips uint64) {
	for _, r := range s.Ranges() {
		ips += r.Count()
	}
	entries = len(s.ToCIDRList())
	return entries, ips
}
