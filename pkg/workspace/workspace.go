// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package workspace manages the per-run scratch directory spec.md §6's
// TMP_DIR describes: every run gets its own uniquely named subdirectory,
// used for in-flight fetch/parse output before a feed's result is promoted
// into history/lib/dist, and removed in full once the run finishes.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is one run's scratch directory.
type Workspace struct {
	Root string
}

// New creates a fresh, uniquely named directory under baseDir and returns
// a Workspace rooted there.
func New(baseDir string) (*Workspace, error) {
	root := filepath.Join(baseDir, uuid.New().String())
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("workspace: mkdir %s: %w", root, err)
	}
	return &Workspace{Root: root}, nil
}

// FeedDir returns (creating if necessary) this run's scratch subdirectory
// for one feed's intermediate fetch/parse output.
func (w *Workspace) FeedDir(feed string) (string, error) {
	dir := filepath.Join(w.Root, feed)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("workspace: mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// Cleanup removes the entire workspace tree. Safe to call even if some
// feed directories were never created.
func (w *Workspace) Cleanup() error {
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("workspace: remove %s: %w", w.Root, err)
	}
	return nil
}
