// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weft-labs/weft/pkg/types"
)

func TestStageCacheHit(t *testing.T) {
	c := NewStageCache(zaptest.NewLogger(t))
	cfg := &types.CacheConfig{Enabled: true, TTLMs: 60_000}
	inputs := map[string]interface{}{"x": "hello", "n": 2}

	res := c.Get("analyze", inputs, cfg)
	assert.False(t, res.Hit)
	assert.Equal(t, MissNoEntry, res.Reason)

	c.Put("analyze", inputs, cfg, map[string]interface{}{"y": "HELLO"}, 1234)

	res = c.Get("analyze", inputs, cfg)
	require.True(t, res.Hit)
	assert.Equal(t, int64(1234), res.SavedTimeMs)

	out := CachedStageOutput("analyze", "p1", res.Entry)
	assert.True(t, out.Success)
	assert.Equal(t, int64(0), out.DurationMs)
	assert.Equal(t, true, out.Metadata["cached"])
	assert.Equal(t, int64(1234), out.Metadata["originalDuration_ms"])
	assert.Equal(t, "HELLO", out.Outputs["y"])
}

func TestStageCacheInputsChanged(t *testing.T) {
	c := NewStageCache(zaptest.NewLogger(t))
	cfg := &types.CacheConfig{Enabled: true, TTLMs: 60_000}

	c.Put("s", map[string]interface{}{"x": 1}, cfg, map[string]interface{}{"r": 1}, 10)

	res := c.Get("s", map[string]interface{}{"x": 2}, cfg)
	assert.False(t, res.Hit)
	assert.Equal(t, MissInputsChanged, res.Reason)
}

func TestStageCacheKeyInputsRestriction(t *testing.T) {
	c := NewStageCache(zaptest.NewLogger(t))
	cfg := &types.CacheConfig{Enabled: true, TTLMs: 60_000, CacheKeyInputs: []string{"stable"}}

	c.Put("s", map[string]interface{}{"stable": "a", "volatile": 1}, cfg, map[string]interface{}{"r": 1}, 10)

	// Changing an input outside cache_key_inputs still hits.
	res := c.Get("s", map[string]interface{}{"stable": "a", "volatile": 999}, cfg)
	assert.True(t, res.Hit)

	res = c.Get("s", map[string]interface{}{"stable": "b", "volatile": 1}, cfg)
	assert.False(t, res.Hit)
	assert.Equal(t, MissInputsChanged, res.Reason)
}

func TestStageCacheTTLExpiry(t *testing.T) {
	c := NewStageCache(zaptest.NewLogger(t))
	cfg := &types.CacheConfig{Enabled: true, TTLMs: 1}
	inputs := map[string]interface{}{"x": 1}

	c.Put("s", inputs, cfg, map[string]interface{}{"r": 1}, 10)
	time.Sleep(5 * time.Millisecond)

	res := c.Get("s", inputs, cfg)
	assert.False(t, res.Hit)
	assert.Equal(t, MissExpired, res.Reason)

	// Lazy eviction removed the entry.
	res = c.Get("s", inputs, cfg)
	assert.Equal(t, MissNoEntry, res.Reason)
}

func TestStageCacheFileDependencyChange(t *testing.T) {
	dir := t.TempDir()
	dep := filepath.Join(dir, "schema.sql")
	require.NoError(t, os.WriteFile(dep, []byte("create table t(x int)"), 0o644))

	c := NewStageCache(zaptest.NewLogger(t))
	cfg := &types.CacheConfig{Enabled: true, TTLMs: 60_000, FileDependencies: []string{dep}}
	inputs := map[string]interface{}{"x": 1}

	c.Put("s", inputs, cfg, map[string]interface{}{"r": 1}, 10)
	assert.True(t, c.Get("s", inputs, cfg).Hit)

	require.NoError(t, os.WriteFile(dep, []byte("create table t(x int, y int)"), 0o644))

	res := c.Get("s", inputs, cfg)
	assert.False(t, res.Hit)
	assert.Equal(t, MissFileDeps, res.Reason)
}

func TestStageKeyDeterministic(t *testing.T) {
	k1 := StageKey("s", "hash", []string{"a", "b"})
	k2 := StageKey("s", "hash", []string{"a", "b"})
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
	assert.NotEqual(t, k1, StageKey("s2", "hash", []string{"a", "b"}))
}
