// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weft-labs/weft/pkg/types"
)

const (
	// DefaultDryRunTTL bounds how long a dry-run plan stays consumable.
	DefaultDryRunTTL = 5 * time.Minute

	// dryRunMaxEntries triggers LRU eviction of the oldest ~10%.
	dryRunMaxEntries = 50
)

// transientFlags never participate in the dry-run cache key.
var transientFlags = map[string]bool{
	"dryRun":   true,
	"dry-run":  true,
	"verbose":  true,
	"quiet":    true,
	"progress": true,
}

// DryRunEntry is a pre-computed plan written by a dry run and consumed once
// by the next real execution of the same command and arguments.
type DryRunEntry struct {
	CommandName string
	CommandHash string
	CreatedAt   time.Time
	TTL         time.Duration

	PlannedStages      []string
	AnalysisOutputs    map[string]interface{}
	PrecomputedOutputs map[string]map[string]interface{}
	PreloadedPrompts   map[string]*types.PromptDefinition
	PreloadedAgent     *types.AgentDefinition
	PreresolvedInputs  map[string]map[string]interface{}
	ResolvedArgs       map[string]interface{}
	PipelineValidated  bool
}

func (e *DryRunEntry) expired(now time.Time) bool {
	ttl := e.TTL
	if ttl <= 0 {
		ttl = DefaultDryRunTTL
	}
	return now.Sub(e.CreatedAt) > ttl
}

// DryRunCache is the process-lifetime store of dry-run plans.
type DryRunCache struct {
	mu      sync.Mutex
	entries map[string]*DryRunEntry
	logger  *zap.Logger
}

// NewDryRunCache creates an empty dry-run cache.
func NewDryRunCache(logger *zap.Logger) *DryRunCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunCache{
		entries: make(map[string]*DryRunEntry),
		logger:  logger,
	}
}

// Key derives the cache key from the command name, positional args, and the
// non-volatile flags.
func Key(commandName string, args []interface{}, flags map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(commandName))
	for _, a := range args {
		b, _ := json.Marshal(a)
		h.Write(b)
		h.Write([]byte{';'})
	}

	keys := make([]string, 0, len(flags))
	for k := range flags {
		if transientFlags[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b, _ := json.Marshal(flags[k])
		fmt.Fprintf(h, "%s=%s;", k, b)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// CommandHash digests the parts of a command definition whose change
// invalidates a cached plan.
func CommandHash(def *types.CommandDefinition) string {
	h := sha256.New()
	h.Write([]byte(def.Name))
	h.Write([]byte(def.Model))
	h.Write([]byte(def.AgentRole))
	b, _ := json.Marshal(def.Pipeline)
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Put stores a plan, evicting the oldest entries when the cache is full.
func (c *DryRunCache) Put(key string, entry *DryRunEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= dryRunMaxEntries {
		c.evictOldestLocked()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	c.entries[key] = entry
	c.logger.Debug("dry-run plan cached",
		zap.String("command", entry.CommandName),
		zap.Int("planned_stages", len(entry.PlannedStages)))
}

// Consume returns the entry for key and removes it: plans are one-shot. The
// entry is discarded (and reported absent) when expired or when the command
// definition hash no longer matches.
func (c *DryRunCache) Consume(key, commandHash string) (*DryRunEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	delete(c.entries, key)

	if entry.expired(time.Now()) {
		c.logger.Debug("dry-run plan expired", zap.String("command", entry.CommandName))
		return nil, false
	}
	if entry.CommandHash != commandHash {
		c.logger.Debug("dry-run plan stale: command definition changed",
			zap.String("command", entry.CommandName))
		return nil, false
	}
	return entry, true
}

// Peek reports whether a live entry exists without consuming it.
func (c *DryRunCache) Peek(key, commandHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return ok && !entry.expired(time.Now()) && entry.CommandHash == commandHash
}

// Len returns the number of stored plans.
func (c *DryRunCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked removes the oldest ~10% of entries by CreatedAt.
func (c *DryRunCache) evictOldestLocked() {
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.CreatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	n := len(all) / 10
	if n < 1 {
		n = 1
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}
