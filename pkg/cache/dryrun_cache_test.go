// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weft-labs/weft/pkg/types"
)

func testCommand() *types.CommandDefinition {
	return &types.CommandDefinition{
		Name:      "implement-feature",
		AgentRole: "developer",
		Model:     "m1",
		Pipeline: []types.PipelineStage{
			{Stage: "plan", Prompt: "dev.plan"},
			{Stage: "build", Prompt: "dev.build"},
		},
	}
}

func TestDryRunKeyIgnoresTransientFlags(t *testing.T) {
	args := []interface{}{"auth"}
	base := Key("cmd", args, map[string]interface{}{"model": "m1"})

	withTransient := Key("cmd", args, map[string]interface{}{
		"model": "m1", "dryRun": true, "dry-run": true, "verbose": true, "quiet": false, "progress": true,
	})
	assert.Equal(t, base, withTransient)

	different := Key("cmd", args, map[string]interface{}{"model": "m2"})
	assert.NotEqual(t, base, different)
}

func TestDryRunConsumeIsOneShot(t *testing.T) {
	c := NewDryRunCache(zaptest.NewLogger(t))
	def := testCommand()
	key := Key(def.Name, []interface{}{"auth"}, nil)
	hash := CommandHash(def)

	c.Put(key, &DryRunEntry{
		CommandName:   def.Name,
		CommandHash:   hash,
		PlannedStages: []string{"plan", "build"},
	})

	entry, ok := c.Consume(key, hash)
	require.True(t, ok)
	assert.Equal(t, []string{"plan", "build"}, entry.PlannedStages)

	_, ok = c.Consume(key, hash)
	assert.False(t, ok, "second consume must miss")
}

func TestDryRunCommandHashMismatch(t *testing.T) {
	c := NewDryRunCache(zaptest.NewLogger(t))
	def := testCommand()
	key := Key(def.Name, nil, nil)

	c.Put(key, &DryRunEntry{CommandName: def.Name, CommandHash: CommandHash(def)})

	// Definition changed between dry run and real run.
	def.Pipeline = append(def.Pipeline, types.PipelineStage{Stage: "verify", Prompt: "dev.verify"})
	_, ok := c.Consume(key, CommandHash(def))
	assert.False(t, ok)
}

func TestDryRunTTLExpiry(t *testing.T) {
	c := NewDryRunCache(zaptest.NewLogger(t))
	key := Key("cmd", nil, nil)

	c.Put(key, &DryRunEntry{
		CommandName: "cmd",
		CommandHash: "h",
		CreatedAt:   time.Now().Add(-10 * time.Minute),
	})
	_, ok := c.Consume(key, "h")
	assert.False(t, ok)
}

func TestDryRunLRUEviction(t *testing.T) {
	c := NewDryRunCache(zaptest.NewLogger(t))
	for i := 0; i < dryRunMaxEntries; i++ {
		c.Put(fmt.Sprintf("key-%d", i), &DryRunEntry{
			CommandName: "cmd",
			CommandHash: "h",
			CreatedAt:   time.Now().Add(time.Duration(i) * time.Second),
		})
	}
	require.Equal(t, dryRunMaxEntries, c.Len())

	c.Put("overflow", &DryRunEntry{CommandName: "cmd", CommandHash: "h"})
	assert.Less(t, c.Len(), dryRunMaxEntries+1)

	// The oldest entry went first.
	_, ok := c.Consume("key-0", "h")
	assert.False(t, ok)
	_, ok = c.Consume("overflow", "h")
	assert.True(t, ok)
}
