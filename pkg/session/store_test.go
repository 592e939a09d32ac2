// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTranscriptSearch(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "session.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "run-1", "plan", "assistant", "the migration drops the users table"))
	require.NoError(t, s.Append(ctx, "run-1", "build", "assistant", "implemented the login handler"))
	require.NoError(t, s.Append(ctx, "run-2", "plan", "assistant", "another session about migration"))

	matches, err := s.SearchMessages(ctx, "run-1", "migration", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0], "[plan/assistant]")
	assert.Contains(t, matches[0], "drops the users table")

	matches, err = s.SearchMessages(ctx, "run-1", "nothing-like-this", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	n, err := s.Count(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTranscriptLimitAndOrder(t *testing.T) {
	s, err := Open(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, msg := range []string{"first note", "second note", "third note"} {
		require.NoError(t, s.Append(ctx, "run-1", "plan", "assistant", msg))
	}

	matches, err := s.SearchMessages(ctx, "run-1", "note", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Contains(t, matches[0], "third note", "newest first")
}
