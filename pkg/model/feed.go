// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package model

import "time"

// Representation controls what the canonical snapshot of a feed contains.
type Representation string

const (
	RepIP    Representation = "ip"    // single addresses only, CIDRs expanded
	RepNet   Representation = "net"   // CIDRs with mask < 32 only
	RepBoth  Representation = "both"  // any CIDR, including /32
	RepSplit Representation = "split" // spawns <name>_ip and <name>_net
)

// FetcherKind selects the downloader strategy for a feed's source.
type FetcherKind string

const (
	FetcherHTTP      FetcherKind = "http"      // conditional GET
	FetcherLocal     FetcherKind = "local"     // local file treated as the "server"
	FetcherComposite FetcherKind = "composite" // reuses another feed's fetched snapshot
)

// Family is the address family a feed operates over. Only v4 is implemented;
// the field exists so a future v6 engine has somewhere to register.
type Family string

const (
	FamilyV4 Family = "v4"
)

// FeedDefinition is immutable for the duration of a run. It is the
// configuration-derived description of one maintained set.
type FeedDefinition struct {
	Name string // unique, stable; also the published set name

	SourceURL string // URL or local path, depending on FetcherOptions.Kind
	Fetcher   FetcherOptions

	UpdatePeriod   time.Duration   // configured period (minutes, stored as a duration)
	HistoryWindows []time.Duration // durations to union into <name>_<window> aggregates

	Family         Family
	Representation Representation
	ParserChain    []ParserStep

	Category string
	Maintainer string
	License    string
	Description string
	IntendedUse string

	AcceptEmpty bool // an empty parsed stream is not treated as a failure
}

// FetcherOptions configures the strategy a Downloader uses to retrieve a
// feed's source bytes.
type FetcherOptions struct {
	Kind FetcherKind

	// CompositeOf names another feed whose fetched snapshot this feed reuses,
	// when Kind == FetcherComposite.
	CompositeOf string

	UserAgent     string
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// ParserStep names one transformer in a feed's parser chain. The concrete
// transformer implementations live in pkg/parse; FeedDefinition only
// carries the name and arguments so configuration stays declarative.
type ParserStep struct {
	Name string
	Args map[string]string
}

// SplitPeers returns the two derived FeedDefinitions for a feed configured
// with RepSplit, sharing the parent's source and parser chain but each
// locked to a single representation.
func (f FeedDefinition) SplitPeers() (ip, net FeedDefinition) {
	ip = f
	ip.Name = f.Name + "_ip"
	ip.Representation = RepIP

	net = f
	net.Name = f.Name + "_net"
	net.Representation = RepNet

	return ip, net
}
