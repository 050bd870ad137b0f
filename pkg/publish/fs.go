// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// FSPublish writes data to path atomically (tmp + rename) and sets its
// mtime to sourceMtime, so a published feed file's timestamp reflects the
// upstream source's Last-Modified rather than the moment it was written
// (spec.md §4.9).
func FSPublish(path string, data []byte, sourceMtime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("publish: mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("publish: write %s: %w", tmp, err)
	}
	if !sourceMtime.IsZero() {
		if err := os.Chtimes(tmp, sourceMtime, sourceMtime); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("publish: chtimes %s: %w", tmp, err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish: rename %s: %w", path, err)
	}
	return nil
}

// PreserveError copies data into errorsDir/<feed>-<unixnow>, the failed
// attempt an operator can inspect after a feed's processing blows up
// partway through (spec.md §4.9 / §6's ERRORS_DIR).
func PreserveError(errorsDir, feed string, data []byte, at time.Time) error {
	if err := os.MkdirAll(errorsDir, dirPerm); err != nil {
		return fmt.Errorf("publish: mkdir %s: %w", errorsDir, err)
	}
	name := fmt.Sprintf("%s-%d", feed, at.Unix())
	path := filepath.Join(errorsDir, name)
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("publish: write %s: %w", path, err)
	}
	return nil
}
