// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	opts.DisablePruner = true
	s, err := NewStore(t.TempDir(), zaptest.NewLogger(t), opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStoreReplaysResult(t *testing.T) {
	s := newTestStore(t, Options{})
	args := map[string]interface{}{"path": "/tmp/out.txt", "content": "hello"}

	_, ok := s.Lookup("write", args, "sess-1")
	assert.False(t, ok)

	s.Save("write", args, "sess-1", map[string]interface{}{"status": "ok"})

	rec, ok := s.Lookup("write", args, "sess-1")
	require.True(t, ok)
	assert.Equal(t, "write", rec.ToolName)
	assert.Equal(t, map[string]interface{}{"status": "ok"}, rec.Result)
}

func TestStoreKeyVariesWithArgsAndSession(t *testing.T) {
	a := map[string]interface{}{"path": "a"}
	b := map[string]interface{}{"path": "b"}

	assert.NotEqual(t, Key("write", a, ""), Key("write", b, ""))
	assert.NotEqual(t, Key("write", a, "s1"), Key("write", a, "s2"))
	assert.Equal(t, Key("write", a, "s1"), Key("write", a, "s1"))
	assert.Contains(t, Key("write", a, ""), "write-")
}

func TestStoreRecordsFailures(t *testing.T) {
	s := newTestStore(t, Options{})
	args := map[string]interface{}{"path": "/etc/protected"}

	s.Save("delete_file", args, "", map[string]interface{}{
		"status": "error",
		"error":  "permission denied",
	})

	rec, ok := s.Lookup("delete_file", args, "")
	require.True(t, ok)
	res, ok := rec.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "error", res["status"])
}

func TestStoreTTLExpiry(t *testing.T) {
	s := newTestStore(t, Options{TTL: time.Millisecond})
	args := map[string]interface{}{"x": 1}

	s.Save("write", args, "", "done")
	time.Sleep(5 * time.Millisecond)

	_, ok := s.Lookup("write", args, "")
	assert.False(t, ok)
}

func TestStorePrune(t *testing.T) {
	s := newTestStore(t, Options{TTL: time.Millisecond})
	s.Save("write", map[string]interface{}{"x": 1}, "", "a")
	s.Save("write", map[string]interface{}{"x": 2}, "", "b")
	time.Sleep(5 * time.Millisecond)

	s.Prune()
	assert.Empty(t, s.readAllLocked())
}

func TestStoreInvalidation(t *testing.T) {
	s := newTestStore(t, Options{})
	s.Save("write", map[string]interface{}{"x": 1}, "s1", "a")
	s.Save("write", map[string]interface{}{"x": 2}, "s2", "b")
	s.Save("delete_file", map[string]interface{}{"x": 3}, "s1", "c")

	assert.Equal(t, 2, s.InvalidateTool("write"))
	_, ok := s.Lookup("delete_file", map[string]interface{}{"x": 3}, "s1")
	assert.True(t, ok)

	assert.Equal(t, 1, s.InvalidateSession("s1"))
	assert.Equal(t, 0, s.Clear())
}

func TestStoreDisabled(t *testing.T) {
	s := newTestStore(t, Options{Disabled: true})
	args := map[string]interface{}{"x": 1}

	s.Save("write", args, "", "done")
	_, ok := s.Lookup("write", args, "")
	assert.False(t, ok)
	assert.False(t, s.Enabled())
}
