// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipset

import "net"

// HostMaterialize expands the set to individual addresses. The caller is
// responsible for bounding how large a set it calls this on — a /8 expands
// to sixteen million entries.
func (s *Set) HostMaterialize() []net.IP {
	var out []net.IP
	for _, r := range s.Ranges() {
		for v := r.Start; ; v++ {
			out = append(out, Uint32ToIP(v))
			if v == r.End {
				break
			}
		}
	}
	return out
}

// UniqueCount returns the population count of the set — the "ips" half of
// the Count() contract, kept here as a narrower accessor for callers that
// only need it.
func (s *Set) UniqueCount() uint64 {
	_, ips := s.Count()
	return ips
}
