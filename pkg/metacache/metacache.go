// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package metacache implements the metadata cache (spec.md §4.8): the
// single self-describing document persisting every feed's SetState between
// runs, loaded once at start and rewritten atomically whenever it changes.
package metacache

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"ipsetkeeper/pkg/model"
)

// Error is a sentinel error type, comparable with ==.
type Error string

func (e Error) Error() string { return string(e) }

const ErrCorruptCache Error = "corrupt metadata cache document"

// document is the on-disk shape: a schema tag plus the per-feed state map,
// self-describing per spec.md §4.8.
type document struct {
	Schema int                        `msgpack:"schema"`
	States map[string]*model.SetState `msgpack:"states"`
}

const currentSchema = 1

// Cache is the in-memory, disk-backed SetState store for one run. Safe for
// concurrent use by multiple feed workers (spec.md §5's L2 per-feed
// mutex: one Cache, one mutex, narrow Get/Put API).
type Cache struct {
	path string
	mu   sync.Mutex
	doc  document
}

// Open loads the cache document at path, or returns an empty Cache if the
// file does not yet exist (first run).
func Open(path string) (*Cache, error) {
	c := &Cache{path: path, doc: document{Schema: currentSchema, States: map[string]*model.SetState{}}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metacache: read %s: %w", path, err)
	}

	var doc document
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCache, err)
	}
	if doc.States == nil {
		doc.States = map[string]*model.SetState{}
	}
	c.doc = doc
	return c, nil
}

// Get returns a copy of feed's SetState, or the zero value if unknown.
func (c *Cache) Get(feed string) model.SetState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.doc.States[feed]; ok {
		return *s
	}
	return model.SetState{}
}

// Put replaces feed's SetState. Callers hold the only reference to state
// going forward; Put copies it in.
func (c *Cache) Put(feed string, state model.SetState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := state
	c.doc.States[feed] = &s
}

// Delete removes feed's entry entirely, used by --cleanup (spec.md §6) for
// retired feeds.
func (c *Cache) Delete(feed string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.doc.States, feed)
}

// Feeds returns every feed name currently tracked.
func (c *Cache) Feeds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.doc.States))
	for name := range c.doc.States {
		out = append(out, name)
	}
	return out
}

// Save rewrites the cache document atomically: tmp + rename, keeping the
// previous version as a sibling ".old" file, per spec.md §4.8.
func (c *Cache) Save() error {
	c.mu.Lock()
	data, err := msgpack.Marshal(c.doc)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("metacache: marshal: %w", err)
	}

	if _, err := os.Stat(c.path); err == nil {
		if err := copyFile(c.path, c.path+".old"); err != nil {
			return fmt.Errorf("metacache: preserve previous version: %w", err)
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("metacache: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("metacache: rename %s: %w", c.path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

// StaleThreshold is spec.md §7's default for the "DATA ARE TOO OLD"
// warning: a feed whose last successful publication exceeds this age gets
// flagged, but the run continues.
const StaleThreshold = 7 * 24 * time.Hour

// IsStale reports whether state's last processed time is older than
// StaleThreshold relative to now.
func IsStale(state model.SetState, now time.Time) bool {
	if state.LastProcessed.IsZero() {
		return false
	}
	return now.Sub(state.LastProcessed) > StaleThreshold
}
