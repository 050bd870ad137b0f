// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package history implements the per-feed history archive (spec.md §4.6):
// an immutable, time-indexed collection of binary-form snapshots used to
// compose windowed unions and bounded by the longest configured window.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"ipsetkeeper/pkg/ipset"
)

// dirPerm/filePerm restrict the archive to its owner, per spec.md §6.
const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Store is the on-disk history archive rooted at BaseDir, laid out as
// BaseDir/<feed>/<unix-seconds>.set (spec.md §6).
type Store struct {
	BaseDir string
}

// NewStore returns a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{BaseDir: baseDir}
}

func (s *Store) feedDir(feed string) string {
	return filepath.Join(s.BaseDir, feed)
}

func (s *Store) entryPath(feed string, ts time.Time) string {
	return filepath.Join(s.feedDir(feed), strconv.FormatInt(ts.Unix(), 10)+".set")
}

// Keep writes a new archive entry for feed at ts if one is not already
// present (spec.md §4.6's Keep operation is a no-op on a duplicate
// timestamp, since two fetches landing in the same second carry identical
// provenance).
func (s *Store) Keep(feed string, ts time.Time, set *ipset.Set) error {
	if err := os.MkdirAll(s.feedDir(feed), dirPerm); err != nil {
		return fmt.Errorf("history: mkdir %s: %w", feed, err)
	}
	path := s.entryPath(feed, ts)
	if _, err := os.Stat(path); err == nil {
		return nil // already present
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("history: create %s: %w", path, err)
	}
	if err := set.WriteBinary(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("history: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("history: close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("history: rename %s: %w", path, err)
	}
	return os.Chtimes(path, ts, ts)
}

// entries lists the archive entries for feed, oldest first.
func (s *Store) entries(feed string) ([]time.Time, error) {
	dirEntries, err := os.ReadDir(s.feedDir(feed))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: readdir %s: %w", feed, err)
	}

	var out []time.Time
	for _, de := range dirEntries {
		name := de.Name()
		if !strings.HasSuffix(name, ".set") {
			continue
		}
		sec, err := strconv.ParseInt(strings.TrimSuffix(name, ".set"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, time.Unix(sec, 0).UTC())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// UnionSince returns the union of every archive entry for feed newer than
// now-since, per spec.md §4.6.
func (s *Store) UnionSince(feed string, since time.Duration, now time.Time) (*ipset.Set, error) {
	cutoff := now.Add(-since)
	entries, err := s.entries(feed)
	if err != nil {
		return nil, err
	}

	result := &ipset.Set{}
	for _, ts := range entries {
		if !ts.After(cutoff) {
			continue
		}
		f, err := os.Open(s.entryPath(feed, ts))
		if err != nil {
			return nil, fmt.Errorf("history: open %s@%d: %w", feed, ts.Unix(), err)
		}
		set, err := ipset.ReadBinary(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("history: read %s@%d: %w", feed, ts.Unix(), err)
		}
		result = result.Union(set)
	}
	return result, nil
}

// Cleanup deletes archive entries older than now-maxWindow, per spec.md
// §4.6 — retention is bounded by the longest configured window across all
// of a feed's windowed aggregates.
func (s *Store) Cleanup(feed string, maxWindow time.Duration, now time.Time) error {
	cutoff := now.Add(-maxWindow)
	entries, err := s.entries(feed)
	if err != nil {
		return err
	}
	for _, ts := range entries {
		if ts.Before(cutoff) {
			if err := os.Remove(s.entryPath(feed, ts)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("history: remove %s@%d: %w", feed, ts.Unix(), err)
			}
		}
	}
	return nil
}
