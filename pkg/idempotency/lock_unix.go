// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

//go:build unix

package idempotency

import (
	"fmt"
	"os"
	"syscall"
)

// dirLock serializes cross-process access to the store directory with an
// exclusive flock on a sentinel file.
type dirLock struct {
	path string
	file *os.File
}

func newDirLock(path string) *dirLock {
	return &dirLock{path: path}
}

// Acquire takes the exclusive lock, blocking until it is available.
func (l *dirLock) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("flock: %w", err)
	}
	l.file = f
	return nil
}

// Release drops the lock. Safe to call when Acquire failed.
func (l *dirLock) Release() {
	if l.file == nil {
		return
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}
