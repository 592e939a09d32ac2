// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package cache provides the process-wide stage output cache and the dry-run
// plan cache. Both are safe for concurrent use; concurrent misses on the
// same key may compute twice, which is intentional.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weft-labs/weft/pkg/types"
)

// Miss reasons reported by StageCache.Get.
const (
	MissNoEntry       = "no_entry"
	MissExpired       = "expired"
	MissInputsChanged = "inputs_changed"
	MissFileDeps      = "file_dep_changed"
)

// StageEntry is one cached stage result.
type StageEntry struct {
	Key                string
	InputsHash         string
	Fingerprints       []string
	Outputs            map[string]interface{}
	OriginalDurationMs int64
	CreatedAt          time.Time
	TTL                time.Duration
}

func (e *StageEntry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// LookupResult reports a cache probe.
type LookupResult struct {
	Hit         bool
	Entry       *StageEntry
	Reason      string
	SavedTimeMs int64
}

// StageCache skips re-execution of deterministic stages. Entries are keyed
// by stage id plus the hash of resolved inputs and file-dependency
// fingerprints; expired entries are evicted lazily on lookup.
type StageCache struct {
	mu      sync.RWMutex
	entries map[string]*StageEntry
	logger  *zap.Logger
}

// NewStageCache creates an empty stage cache.
func NewStageCache(logger *zap.Logger) *StageCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageCache{
		entries: make(map[string]*StageEntry),
		logger:  logger,
	}
}

// Get probes the cache for a stage. Misses carry a reason; hits carry the
// entry and the time the caller is about to save.
func (c *StageCache) Get(stageID string, resolvedInputs map[string]interface{}, cfg *types.CacheConfig) LookupResult {
	inputsHash := hashInputs(resolvedInputs, cfg)
	fingerprints := fingerprintFiles(cfg)

	c.mu.RLock()
	entry, ok := c.entries[stageID]
	c.mu.RUnlock()

	if !ok {
		return LookupResult{Reason: MissNoEntry}
	}
	if entry.expired(time.Now()) {
		c.mu.Lock()
		delete(c.entries, stageID)
		c.mu.Unlock()
		return LookupResult{Reason: MissExpired}
	}
	if entry.InputsHash != inputsHash {
		return LookupResult{Reason: MissInputsChanged}
	}
	if !equalStrings(entry.Fingerprints, fingerprints) {
		return LookupResult{Reason: MissFileDeps}
	}

	c.logger.Debug("stage cache hit",
		zap.String("stage", stageID),
		zap.Int64("saved_ms", entry.OriginalDurationMs))
	return LookupResult{Hit: true, Entry: entry, SavedTimeMs: entry.OriginalDurationMs}
}

// Put stores a successful stage result. Only successful outputs belong in
// the cache; callers enforce that.
func (c *StageCache) Put(stageID string, resolvedInputs map[string]interface{}, cfg *types.CacheConfig, outputs map[string]interface{}, originalDurationMs int64) {
	ttl := time.Duration(0)
	if cfg != nil && cfg.TTLMs > 0 {
		ttl = time.Duration(cfg.TTLMs) * time.Millisecond
	}
	inputsHash := hashInputs(resolvedInputs, cfg)
	fingerprints := fingerprintFiles(cfg)

	entry := &StageEntry{
		Key:                StageKey(stageID, inputsHash, fingerprints),
		InputsHash:         inputsHash,
		Fingerprints:       fingerprints,
		Outputs:            outputs,
		OriginalDurationMs: originalDurationMs,
		CreatedAt:          time.Now(),
		TTL:                ttl,
	}

	c.mu.Lock()
	c.entries[stageID] = entry
	c.mu.Unlock()
}

// Invalidate drops a stage's entry.
func (c *StageCache) Invalidate(stageID string) {
	c.mu.Lock()
	delete(c.entries, stageID)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *StageCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*StageEntry)
	c.mu.Unlock()
}

// CachedStageOutput converts a cache hit into the stage output the executor
// returns: zero duration, cached metadata, and the stored outputs.
func CachedStageOutput(stageID, prompt string, entry *StageEntry) *types.StageOutput {
	return &types.StageOutput{
		Stage:      stageID,
		Prompt:     prompt,
		Success:    true,
		Outputs:    entry.Outputs,
		DurationMs: 0,
		Metadata: map[string]interface{}{
			"cached":              true,
			"originalDuration_ms": entry.OriginalDurationMs,
		},
	}
}

// StageKey derives the 128-bit hex cache key from the stage id, input hash
// and file fingerprints.
func StageKey(stageID, inputsHash string, fingerprints []string) string {
	h := sha256.New()
	h.Write([]byte(stageID))
	h.Write([]byte(inputsHash))
	for _, fp := range fingerprints {
		h.Write([]byte(fp))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// hashInputs digests the resolved inputs, restricted to cache_key_inputs
// when configured.
func hashInputs(inputs map[string]interface{}, cfg *types.CacheConfig) string {
	selected := inputs
	if cfg != nil && len(cfg.CacheKeyInputs) > 0 {
		selected = make(map[string]interface{}, len(cfg.CacheKeyInputs))
		for _, k := range cfg.CacheKeyInputs {
			if v, ok := inputs[k]; ok {
				selected[k] = v
			}
		}
	}
	return hex.EncodeToString(hashSortedJSON(selected))[:32]
}

// hashSortedJSON renders a mapping with sorted keys and digests it, so hash
// stability does not depend on map iteration order.
func hashSortedJSON(m map[string]interface{}) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		b, err := json.Marshal(m[k])
		if err != nil {
			b = []byte(fmt.Sprintf("%v", m[k]))
		}
		fmt.Fprintf(h, "%s=%s;", k, b)
	}
	return h.Sum(nil)
}

// fingerprintFiles digests each declared file dependency's content. Missing
// files fingerprint as "absent" so their later appearance invalidates.
func fingerprintFiles(cfg *types.CacheConfig) []string {
	if cfg == nil || len(cfg.FileDependencies) == 0 {
		return nil
	}
	paths := append([]string(nil), cfg.FileDependencies...)
	sort.Strings(paths)

	fps := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fps = append(fps, p+":absent")
			continue
		}
		sum := sha256.Sum256(data)
		fps = append(fps, p+":"+hex.EncodeToString(sum[:8]))
	}
	return fps
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String summarizes cache state for diagnostics.
func (c *StageCache) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for k := range c.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return fmt.Sprintf("stage-cache[%s]", strings.Join(names, ","))
}
