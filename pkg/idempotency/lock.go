// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

//go:build !unix

package idempotency

// dirLock is a no-op on platforms without flock; the in-process mutex still
// serializes access within one process.
type dirLock struct{}

func newDirLock(path string) *dirLock { return &dirLock{} }

func (l *dirLock) Acquire() error { return nil }

func (l *dirLock) Release() {}
