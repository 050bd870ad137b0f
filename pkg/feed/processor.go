// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package feed

import (
	"bufio"
	"bytes"
	"sort"
	"strings"
	"time"

	"ipsetkeeper/pkg/ipset"
	"ipsetkeeper/pkg/model"
)

// Result is what Process hands back to the orchestrator for one feed (or
// split peer, or windowed aggregate) after canonicalization.
type Result struct {
	Set      *ipset.Set
	Snapshot []byte
	Entries  int
	IPs      uint64
	Changed  bool // false => idempotent; publisher must not be invoked
}

// Process canonicalizes a parsed token stream into a Result, applying the
// feed's representation policy and detecting idempotence against the
// previously published canonical snapshot, per spec.md §4.5.
//
// An empty token stream fails with model.ErrEmptyRejected unless the feed
// is marked AcceptEmpty, matching spec.md §4.4's emptiness rule (checked
// here, at the boundary between the parser pipeline and the set processor,
// since it is this component that decides whether an empty canonical form
// is an acceptable outcome).
func Process(def model.FeedDefinition, tokens []string, sourceMtime, now time.Time, version int64, prevCanonical []byte) (Result, error) {
	if len(tokens) == 0 && !def.AcceptEmpty {
		return Result{}, model.ErrEmptyRejected
	}

	set := ipset.ParseTokens(tokens)
	entries, ips := CountFor(set, def.Representation)

	meta := HeaderMeta{
		Name:          def.Name,
		Family:        def.Family,
		HashKind:      HashKindFor(def.Representation),
		Description:   def.Description,
		Maintainer:    def.Maintainer,
		URL:           def.IntendedUse,
		SourceURL:     def.SourceURL,
		SourceMtime:   sourceMtime,
		Category:      def.Category,
		Version:       version,
		GeneratedAt:   now,
		PeriodMinutes: int(def.UpdatePeriod / time.Minute),
		Entries:       entries,
		IPs:           ips,
	}
	snapshot := RenderCanonical(set, def.Representation, meta)

	// With no previously published snapshot every result counts as a
	// change, so a first run publishes even a header-only snapshot.
	changed := prevCanonical == nil || bodyOf(snapshot) != bodyOf(prevCanonical)

	return Result{
		Set:      set,
		Snapshot: snapshot,
		Entries:  entries,
		IPs:      ips,
		Changed:  changed,
	}, nil
}

// ProcessWindow canonicalizes the union of history snapshots for a
// windowed aggregate (spec.md §4.5's "<name>_<window>" feeds), which skips
// the emptiness check — an aggregate window legitimately may have nothing
// in it yet.
func ProcessWindow(def model.FeedDefinition, window time.Duration, union *ipset.Set, now time.Time, version int64, prevCanonical []byte) Result {
	entries, ips := CountFor(union, def.Representation)
	meta := HeaderMeta{
		Name:        def.Name + "_" + WindowSuffix(window),
		Family:      def.Family,
		HashKind:    HashKindFor(def.Representation),
		Description: def.Description,
		Maintainer:  def.Maintainer,
		SourceURL:   def.SourceURL,
		Category:    def.Category,
		Version:     version,
		GeneratedAt: now,
		Window:      window,
		Entries:     entries,
		IPs:         ips,
	}
	snapshot := RenderCanonical(union, def.Representation, meta)
	changed := bodyOf(snapshot) != bodyOf(prevCanonical)
	return Result{Set: union, Snapshot: snapshot, Entries: entries, IPs: ips, Changed: changed}
}

// bodyOf extracts and re-sorts the non-header, non-blank lines of a
// rendered canonical snapshot, so idempotence comparisons ignore the
// header's volatile version/generated-time fields and depend only on
// content.
func bodyOf(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		l := strings.TrimSpace(sc.Text())
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
