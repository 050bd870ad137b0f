// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package fetch

import (
	"bytes"
	"context"
	"os"
	"time"
)

// LocalFetcher treats a configured filesystem path as the "server": it
// succeeds whenever the path exists and fails (ErrorCode "local_missing")
// when it does not, per spec.md §4.2.
type LocalFetcher struct{}

// Fetch implements Fetcher.
func (LocalFetcher) Fetch(_ context.Context, req Request) (Result, error) {
	info, err := os.Stat(req.Source)
	if err != nil {
		return Result{Outcome: Failed, ErrorCode: "local_missing"}, err
	}

	mtime := info.ModTime()
	if !req.PreviousMtime.IsZero() && !mtime.After(req.PreviousMtime) {
		return Result{Outcome: NotModified}, nil
	}

	body, err := os.ReadFile(req.Source)
	if err != nil {
		return Result{Outcome: Failed, ErrorCode: "read"}, err
	}
	if len(body) == 0 && !req.AcceptEmpty {
		return Result{Outcome: Failed, ErrorCode: "empty_body"}, ErrEmptyRejected
	}
	if req.PreviousBody != nil && bytes.Equal(body, req.PreviousBody) {
		return Result{Outcome: NotModified}, nil
	}

	if mtime.IsZero() {
		mtime = time.Now()
	}
	return Result{Outcome: OK, Body: body, Mtime: mtime}, nil
}

// CompositeFetcher reuses a sibling feed's already-fetched bytes this run,
// avoiding a second hit to a shared upstream provider (spec.md §4.2,
// "shared-source optimization"). Source must be serialized with its
// primary per spec.md §5's parallelism constraint (2).
type CompositeFetcher struct {
	// Fetched maps feed name -> the Result that feed's primary fetch
	// produced this run. The orchestrator populates this before invoking
	// a composite feed.
	Fetched map[string]Result
}

// Fetch implements Fetcher. req.Source names the primary feed.
func (c CompositeFetcher) Fetch(_ context.Context, req Request) (Result, error) {
	primary, ok := c.Fetched[req.Source]
	if !ok {
		return Result{Outcome: Failed, ErrorCode: "composite_miss"}, ErrCompositeMiss
	}
	return primary, nil
}
