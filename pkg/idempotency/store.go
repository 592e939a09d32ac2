// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package idempotency persists results of side-effecting tools so replayed
// calls return the prior result instead of reapplying the effect.
//
// Records live as one small JSON document per key under a directory guarded
// by a file lock. Writes are best-effort: a failure to cache never fails the
// tool call itself.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultTTL bounds how long a record stays replayable.
	DefaultTTL = 24 * time.Hour

	// maxRecords caps the store; oldest-first eviction runs past it.
	maxRecords = 10_000

	// pruneSchedule drives the periodic expired-record sweep.
	pruneSchedule = "@every 5m"
)

// Record is one persisted tool result.
type Record struct {
	Key       string      `json:"key"`
	ToolName  string      `json:"tool_name"`
	ArgsHash  string      `json:"args_hash"`
	Result    interface{} `json:"result"`
	SessionID string      `json:"session_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (r *Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Options configures a Store.
type Options struct {
	// TTL for new records; zero selects DefaultTTL.
	TTL time.Duration

	// Disabled bypasses both lookup and store.
	Disabled bool

	// DisablePruner skips the background cron sweep (tests).
	DisablePruner bool
}

// Store is the process-global idempotency store.
type Store struct {
	dir     string
	ttl     time.Duration
	logger  *zap.Logger
	cron    *cron.Cron
	mu      sync.Mutex
	lock    *dirLock
	enabled bool
}

// NewStore opens (creating if needed) the store rooted at dir and starts the
// periodic pruner.
func NewStore(dir string, logger *zap.Logger, opts Options) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create idempotency dir: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		dir:     dir,
		ttl:     ttl,
		logger:  logger,
		lock:    newDirLock(filepath.Join(dir, ".lock")),
		enabled: !opts.Disabled,
	}

	if !opts.DisablePruner && s.enabled {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(pruneSchedule, s.Prune); err != nil {
			return nil, fmt.Errorf("schedule idempotency pruner: %w", err)
		}
		s.cron.Start()
	}
	return s, nil
}

// Close stops the pruner.
func (s *Store) Close() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Enabled reports whether the store participates in tool execution.
func (s *Store) Enabled() bool {
	return s.enabled
}

// Key derives the record key: tool name prefix plus a 128-bit digest of
// (tool, sorted args, session).
func Key(tool string, args map[string]interface{}, sessionID string) string {
	h := sha256.New()
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write([]byte(ArgsHash(args)))
	if sessionID != "" {
		h.Write([]byte{0})
		h.Write([]byte(sessionID))
	}
	return tool + "-" + hex.EncodeToString(h.Sum(nil))[:32]
}

// ArgsHash digests the sorted-JSON rendering of the arguments. It guards
// against key collisions: a record only replays when its args hash matches.
func ArgsHash(args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		b, err := json.Marshal(args[k])
		if err != nil {
			b = []byte(fmt.Sprintf("%v", args[k]))
		}
		fmt.Fprintf(h, "%s=%s;", k, b)
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Lookup returns the live record for a call, pruning an expired one lazily.
// Records whose args hash does not match the recomputed value are ignored.
func (s *Store) Lookup(tool string, args map[string]interface{}, sessionID string) (*Record, bool) {
	if !s.enabled {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(tool, args, sessionID)
	path := s.recordPath(key)

	if err := s.lock.Acquire(); err != nil {
		s.logger.Warn("idempotency lock unavailable", zap.Error(err))
		return nil, false
	}
	defer s.lock.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("corrupt idempotency record", zap.String("path", path), zap.Error(err))
		_ = os.Remove(path)
		return nil, false
	}
	if rec.expired(time.Now()) {
		_ = os.Remove(path)
		return nil, false
	}
	if rec.ArgsHash != ArgsHash(args) {
		// Hash collision on the key; do not replay someone else's result.
		s.logger.Warn("idempotency args hash mismatch, ignoring record",
			zap.String("tool", tool), zap.String("key", key))
		return nil, false
	}
	return &rec, true
}

// Save persists a tool result, success or failure alike, so a failing
// destructive operation is not silently retried. Failures to persist are
// logged and swallowed.
func (s *Store) Save(tool string, args map[string]interface{}, sessionID string, result interface{}) {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec := Record{
		Key:       Key(tool, args, sessionID),
		ToolName:  tool,
		ArgsHash:  ArgsHash(args),
		Result:    result,
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.lock.Acquire(); err != nil {
		s.logger.Warn("idempotency lock unavailable", zap.Error(err))
		return
	}
	defer s.lock.Release()

	data, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		s.logger.Warn("marshal idempotency record", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.recordPath(rec.Key), data, 0o644); err != nil {
		s.logger.Warn("write idempotency record", zap.Error(err))
		return
	}
	s.enforceCapLocked()
}

// InvalidateTool removes every record for a tool.
func (s *Store) InvalidateTool(tool string) int {
	return s.removeMatching(func(rec *Record) bool { return rec.ToolName == tool })
}

// InvalidateSession removes every record for a session.
func (s *Store) InvalidateSession(sessionID string) int {
	return s.removeMatching(func(rec *Record) bool { return rec.SessionID == sessionID })
}

// Clear removes every record.
func (s *Store) Clear() int {
	return s.removeMatching(func(*Record) bool { return true })
}

// Prune removes expired records. Called lazily during reads and periodically
// by the cron sweep.
func (s *Store) Prune() {
	now := time.Now()
	n := s.removeMatching(func(rec *Record) bool { return rec.expired(now) })
	if n > 0 {
		s.logger.Debug("pruned idempotency records", zap.Int("count", n))
	}
}

func (s *Store) removeMatching(match func(*Record) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Acquire(); err != nil {
		return 0
	}
	defer s.lock.Release()

	removed := 0
	for _, rec := range s.readAllLocked() {
		if match(&rec.record) {
			if os.Remove(rec.path) == nil {
				removed++
			}
		}
	}
	return removed
}

type diskRecord struct {
	path   string
	record Record
}

func (s *Store) readAllLocked() []diskRecord {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var out []diskRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, diskRecord{path: path, record: rec})
	}
	return out
}

// enforceCapLocked evicts oldest records past the hard cap.
func (s *Store) enforceCapLocked() {
	all := s.readAllLocked()
	if len(all) <= maxRecords {
		return
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].record.CreatedAt.Before(all[j].record.CreatedAt)
	})
	for _, rec := range all[:len(all)-maxRecords] {
		_ = os.Remove(rec.path)
	}
}

func (s *Store) recordPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}
