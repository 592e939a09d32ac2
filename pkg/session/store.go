// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package session persists run transcripts to SQLite so later stages (and the
// query_session tool) can search earlier messages.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/weft-labs/weft/internal/sqlitedriver"
)

// Store is a SQLite-backed session transcript store.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// Open creates or opens the transcript database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	// WAL plus a busy timeout so a concurrent reader does not error out.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("session db pragma: %w", err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		stage TEXT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one message in the transcript. Failures are returned but
// callers treat them as non-fatal.
func (s *Store) Append(ctx context.Context, sessionID, stage, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, stage, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, stage, role, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append transcript message: %w", err)
	}
	return nil
}

// SearchMessages returns transcript messages for a session whose content
// matches the query, newest first, rendered as "[stage/role] content".
func (s *Store) SearchMessages(ctx context.Context, sessionID, query string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, role, content FROM messages
		 WHERE session_id = ? AND content LIKE ?
		 ORDER BY id DESC LIMIT ?`,
		sessionID, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search transcript: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var stage, role, content string
		if err := rows.Scan(&stage, &role, &content); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("[%s/%s] %s", stage, role, content))
	}
	return out, rows.Err()
}

// Count returns the number of messages stored for a session.
func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
