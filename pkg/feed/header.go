// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package feed implements the set processor (spec.md §4.5): representation
// policy (ip/net/both/split), canonical-form rendering with its descriptive
// header, idempotence detection, and windowed-history composition.
package feed

import (
	"fmt"
	"strings"
	"time"

	"ipsetkeeper/pkg/model"
)

// HeaderMeta carries everything spec.md §6 requires in a canonical
// snapshot's header comment.
type HeaderMeta struct {
	Name          string
	Family        model.Family
	HashKind      string // "net" (CIDR hash) or "ip" (single-address hash)
	Description   string
	Maintainer    string
	URL           string
	SourceURL     string
	SourceMtime   time.Time
	Category      string
	Version       int64
	GeneratedAt   time.Time
	PeriodMinutes int
	Window        time.Duration // zero for a primary (non-windowed) feed
	Entries       int
	IPs           uint64
}

// RenderHeader renders the "#"-prefixed header block spec.md §6 specifies,
// one field per line, grounded on the canonical snapshot's textual form
// already defined by the IP-range engine's CIDR emission (pkg/ipset),
// which this package wraps with the descriptive preamble.
func RenderHeader(m HeaderMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# name: %s\n", m.Name)
	fmt.Fprintf(&b, "# family: %s hash:%s\n", m.Family, m.HashKind)
	if m.Description != "" {
		fmt.Fprintf(&b, "# description: %s\n", m.Description)
	}
	if m.Maintainer != "" {
		fmt.Fprintf(&b, "# maintainer: %s\n", m.Maintainer)
	}
	if m.URL != "" {
		fmt.Fprintf(&b, "# url: %s\n", m.URL)
	}
	if m.SourceURL != "" {
		fmt.Fprintf(&b, "# source: %s\n", m.SourceURL)
	}
	if !m.SourceMtime.IsZero() {
		fmt.Fprintf(&b, "# sourcemtime: %s\n", m.SourceMtime.UTC().Format(time.RFC1123))
	}
	if m.Category != "" {
		fmt.Fprintf(&b, "# category: %s\n", m.Category)
	}
	fmt.Fprintf(&b, "# version: %d\n", m.Version)
	fmt.Fprintf(&b, "# generated: %s\n", m.GeneratedAt.UTC().Format(time.RFC1123))
	if m.PeriodMinutes > 0 {
		fmt.Fprintf(&b, "# period: %d minutes\n", m.PeriodMinutes)
	}
	if m.Window > 0 {
		fmt.Fprintf(&b, "# window: %s\n", WindowSuffix(m.Window))
	}
	fmt.Fprintf(&b, "# entries: %d ips: %d\n", m.Entries, m.IPs)
	return b.String()
}

// WindowSuffix humanizes a window duration into the "<name>_<window>"
// suffix spec.md §4.5 specifies: round hour/day multiples collapse to
// "1h"/"6h"/"1d"/"7d"/"30d"; anything else gets a composite suffix
// concatenating the non-zero day/hour/minute components, e.g. 90 minutes
// becomes "1h30m" rather than being truncated to a single unit.
func WindowSuffix(d time.Duration) string {
	minutes := int64(d / time.Minute)
	days := minutes / (24 * 60)
	minutes -= days * 24 * 60
	hours := minutes / 60
	minutes -= hours * 60

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd", days)
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%dh", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dm", minutes)
	}
	if b.Len() == 0 {
		return "0m"
	}
	return b.String()
}
