// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipset

import "sort"

// canonicalize sorts s.ranges and merges overlapping or adjacent ranges in
// place. Called after any bulk mutation so every exported Set is always
// already canonical.
func (s *Set) canonicalize() {
	if len(s.ranges) == 0 {
		return
	}
	sort.Slice(s.ranges, func(i, j int) bool {
		return s.ranges[i].Start < s.ranges[j].Start
	})

	merged := s.ranges[:1]
	for _, r := range s.ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End || r.Start == last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	s.ranges = merged
}

// Union returns the canonical union of sets, including s itself.
func (s *Set) Union(others ...*Set) *Set {
	var all []Range
	all = append(all, s.Ranges()...)
	for _, o := range others {
		all = append(all, o.Ranges()...)
	}
	return NewSet(all...)
}

// Intersect returns the canonical intersection of s and other.
func (s *Set) Intersect(other *Set) *Set {
	var out []Range
	a, b := s.Ranges(), other.Ranges()
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := max32(a[i].Start, b[j].Start)
		end := min32(a[i].End, b[j].End)
		if start <= end {
			out = append(out, Range{Start: start, End: end})
		}
		if a[i].End < b[j].End {
			i++
		} else {
			j++
		}
	}
	return NewSet(out...)
}

// Difference returns the ranges in s that are not covered by any of others
// (s minus the union of others).
func (s *Set) Difference(others ...*Set) *Set {
	subtract := (&Set{}).Union(others...)
	var out []Range
	sub := subtract.Ranges()
	j := 0
	for _, r := range s.Ranges() {
		start := r.Start
		for start <= r.End {
			for j < len(sub) && sub[j].End < start {
				j++
			}
			if j >= len(sub) || sub[j].Start > r.End {
				out = append(out, Range{Start: start, End: r.End})
				break
			}
			if sub[j].Start > start {
				out = append(out, Range{Start: start, End: sub[j].Start - 1})
			}
			if sub[j].End == ^uint32(0) {
				start = r.End + 1 // force exit: subtractor covers to the top of the space
				break
			}
			start = sub[j].End + 1
		}
	}
	return NewSet(out...)
}

// SymmetricDifference returns the addresses present in exactly one of s and
// other.
func (s *Set) SymmetricDifference(other *Set) *Set {
	return s.Difference(other).Union(other.Difference(s))
}

// Equal reports structural equality of the canonical range lists.
func (s *Set) Equal(other *Set) bool {
	a, b := s.Ranges(), other.Ranges()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
