// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package fetch implements the Downloader (spec.md §4.2): conditional HTTP
// GET honoring the server's Last-Modified, a local-file adapter, and a
// composite adapter that reuses another feed's already-fetched bytes.
package fetch

import (
	"context"
	"time"
)

// Error is a sentinel error type, comparable with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrUnknownFetcher Error = "unknown fetcher kind"
	ErrMissingLocal   Error = "local source path does not exist"
	ErrMalformedURL   Error = "malformed source URL"
	ErrEmptyRejected  Error = "empty body and feed does not accept-empty"
	ErrCompositeMiss  Error = "composite source feed has not been fetched this run"
)

// Outcome is the three-valued result of a fetch attempt (spec.md §4.2).
type Outcome int

const (
	OK Outcome = iota
	NotModified
	Failed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "OK"
	case NotModified:
		return "NotModified"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Result is what a Fetcher returns for one attempt.
type Result struct {
	Outcome Outcome

	// Body holds the new bytes when Outcome == OK. Empty on NotModified
	// (callers keep using the previous snapshot) and on Failed.
	Body []byte

	// Mtime is the snapshot timestamp to assign: the server's Last-Modified
	// header, or now when absent, per spec.md §4.2.
	Mtime time.Time

	// ErrorCode is a stable short string identifying the failure class
	// (dns, tcp, tls, http_status, timeout, malformed_url, empty_body,
	// local_missing, composite_miss, read), present only when Outcome ==
	// Failed. Logs key on this rather than the free-form error text.
	ErrorCode string
}

// Request carries what a Fetcher needs to decide whether the source has
// changed.
type Request struct {
	Source string // URL or local path, per FetcherOptions.Kind

	// PreviousMtime is the mtime of the feed's current snapshot, used as
	// the conditional-GET If-Modified-Since value. Zero if there is no
	// prior snapshot.
	PreviousMtime time.Time

	// PreviousBody, when non-nil, lets an HTTP fetcher detect a 2xx
	// response whose bytes are unchanged (spec.md §4.2's "or a 2xx body
	// whose bytes equal the current snapshot" NotModified case).
	PreviousBody []byte

	AcceptEmpty bool

	UserAgent      string
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// Fetcher retrieves a feed's source bytes.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Result, error)
}
