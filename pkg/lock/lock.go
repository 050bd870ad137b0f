// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package lock implements the whole-run advisory exclusive lock spec.md
// §5's L1 names: one flock(2)'d file guarding the entire run, so a second
// invocation fails fast with a distinct "already running" error instead of
// racing the first over history/metacache/kernel state.
package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"ipsetkeeper/pkg/model"
)

// ErrAlreadyRunning is model.ErrAlreadyRunning, returned by Acquire when
// another run currently holds the lock. cmd/ipsetkeeper maps this to
// spec.md §6's exit code 1.
const ErrAlreadyRunning = model.ErrAlreadyRunning

// Lock holds an open, flock'd file descriptor for the lifetime of one run.
type Lock struct {
	f *os.File
}

// Acquire opens (creating if necessary) the file at path and takes a
// non-blocking exclusive flock on it, grounded on grimm-is-glacic's
// acquireSingleInstanceLock. The file is never removed; only the lock on
// it is released, by Release.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("lock: flock %s: %w", path, err)
	}

	return &Lock{f: f}, nil
}

// Release drops the flock and closes the underlying file.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("lock: unlock: %w", err)
	}
	return l.f.Close()
}
