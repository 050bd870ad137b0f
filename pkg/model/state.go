// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package model

import "time"

// SetState is the mutable per-feed state persisted between runs by the
// metadata cache (pkg/metacache). It must always satisfy:
//
//	IntervalMin <= IntervalAvg <= IntervalMax
//	EntryCountMin <= EntryCount <= EntryCountMax
//	IPCountMin    <= IPCount    <= IPCountMax
//	LastChecked >= LastProcessed >= LastSourceTimestamp
//	ConsecutiveFailures >= 0
type SetState struct {
	Enabled bool // an empty marker snapshot timestamped to the epoch exists

	LastSourceTimestamp time.Time // mtime of the current source snapshot
	LastChecked         time.Time
	LastProcessed        time.Time

	ConsecutiveFailures int
	Version             int64 // monotonically non-decreasing across runs

	EntryCount int
	IPCount    int64

	EntryCountMin int
	EntryCountMax int
	IPCountMin    int64
	IPCountMax    int64

	IntervalAvg time.Duration
	IntervalMin time.Duration
	IntervalMax time.Duration

	ClockSkewSeconds int64 // non-negative; how far the source timestamp is ahead of local time

	LastPublishFailure string // non-empty if the last publish attempt failed
}

// Touch records a freshly observed entry/IP count, widening the historical
// min/max and refreshing the observed-interval average. It is the single
// mutation path the orchestrator calls after a successful process, so the
// SetState invariants in the doc comment above stay true by construction.
func (s *SetState) Touch(now time.Time, entries int, ips int64) {
	if s.LastProcessed.IsZero() || entries < s.EntryCountMin {
		s.EntryCountMin = entries
	}
	if entries > s.EntryCountMax {
		s.EntryCountMax = entries
	}
	if s.LastProcessed.IsZero() || ips < s.IPCountMin {
		s.IPCountMin = ips
	}
	if ips > s.IPCountMax {
		s.IPCountMax = ips
	}
	s.EntryCount = entries
	s.IPCount = ips

	if !s.LastProcessed.IsZero() {
		observed := now.Sub(s.LastProcessed)
		if s.IntervalMin == 0 || observed < s.IntervalMin {
			s.IntervalMin = observed
		}
		if observed > s.IntervalMax {
			s.IntervalMax = observed
		}
		if s.IntervalAvg == 0 {
			s.IntervalAvg = observed
		} else {
			s.IntervalAvg = (s.IntervalAvg + observed) / 2
		}
	}
	s.LastProcessed = now
}

// FeedState names a node in the orchestrator's per-feed state machine
// (spec.md §4.10). States are strings so logs and metadata are
// self-describing without a lookup table.
type FeedState string

const (
	StateUnknown         FeedState = "Unknown"
	StateDisabled        FeedState = "Disabled"
	StateSkippedNotDue   FeedState = "Skipped(NotDue)"
	StateSkippedNotReq   FeedState = "Skipped(NotRequested)"
	StateFetching        FeedState = "Fetching"
	StateFetchOK         FeedState = "Fetched(Ok)"
	StateFetchNotModified FeedState = "Fetched(NotModified)"
	StateFetchFailed     FeedState = "Fetched(Failed)"
	StateParsing         FeedState = "Parsing"
	StateParseOK         FeedState = "Parsed(Ok)"
	StateParseEmpty      FeedState = "Parsed(EmptyRejected)"
	StateParseInvalid    FeedState = "Parsed(Invalid)"
	StateDiffing         FeedState = "Diffing"
	StateDiffSame        FeedState = "Diffed(Same)"
	StateDiffChanged     FeedState = "Diffed(Changed)"
	StatePublishing      FeedState = "Publishing"
	StatePublished       FeedState = "Published"
	StatePublishFailed   FeedState = "PublishFailed"
	StateHistoryUpdated  FeedState = "HistoryUpdated"
	StateRetentionUpdated FeedState = "RetentionUpdated"
	StateDone            FeedState = "Done"
)

// Terminal reports whether a state is a run-ending state for its feed: no
// further transitions are expected this run.
func (s FeedState) Terminal() bool {
	switch s {
	case StateDisabled, StateSkippedNotDue, StateSkippedNotReq,
		StateFetchNotModified, StateDone, StateFetchFailed,
		StateParseEmpty, StateParseInvalid, StatePublishFailed:
		return true
	}
	return false
}
