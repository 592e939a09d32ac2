// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPreHookAllows(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "hooks.json", `{
	  "hooks": {"PreToolUse": [{"matcher": "write", "hooks": [{"type": "command", "command": "exit 0"}]}]}
	}`)

	e := NewEngine(path, "", zaptest.NewLogger(t))
	d := e.EvaluatePre(context.Background(), "write", map[string]interface{}{"path": "a.txt"}, "")
	assert.True(t, d.Allow)
	assert.Nil(t, d.UpdatedInput)
}

func TestPreHookDeniesOnExit2(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "hooks.json", `{
	  "hooks": {"PreToolUse": [{"matcher": "write|delete_file", "hooks": [
	    {"type": "command", "command": "echo 'writes to prod are frozen' >&2; exit 2"}
	  ]}]}
	}`)

	e := NewEngine(path, "", zaptest.NewLogger(t))
	d := e.EvaluatePre(context.Background(), "write", map[string]interface{}{"path": "a.txt"}, "")
	assert.False(t, d.Allow)
	assert.Equal(t, "writes to prod are frozen", d.Reason)
}

func TestPreHookRewritesInput(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "hooks.json", `{
	  "hooks": {"PreToolUse": [{"matcher": "write", "hooks": [
	    {"type": "command", "command": "echo '{\"hookSpecificOutput\":{\"updatedInput\":{\"path\":\"sandbox/a.txt\"}}}'"}
	  ]}]}
	}`)

	e := NewEngine(path, "", zaptest.NewLogger(t))
	d := e.EvaluatePre(context.Background(), "write", map[string]interface{}{"path": "a.txt"}, "")
	require.True(t, d.Allow)
	assert.Equal(t, map[string]interface{}{"path": "sandbox/a.txt"}, d.UpdatedInput)
}

func TestPreHookFailOpen(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "hooks.json", `{
	  "hooks": {"PreToolUse": [{"matcher": "*", "hooks": [{"type": "command", "command": "exit 7"}]}]}
	}`)

	e := NewEngine(path, "", zaptest.NewLogger(t))
	d := e.EvaluatePre(context.Background(), "read_file", nil, "")
	assert.True(t, d.Allow, "non-2 failures must not block tools")
}

func TestMatcherPatterns(t *testing.T) {
	m := Matcher{Matcher: "write|delete_file"}
	ok, err := m.matches("write")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.matches("delete_file")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.matches("read_file")
	require.NoError(t, err)
	assert.False(t, ok)

	all := Matcher{Matcher: "*"}
	ok, err = all.matches("anything")
	require.NoError(t, err)
	assert.True(t, ok)

	empty := Matcher{}
	ok, err = empty.matches("anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPatternGuardRejectsNestedQuantifiers(t *testing.T) {
	assert.Error(t, checkPattern("(a+)+"))
	assert.Error(t, checkPattern("((ab)*)*"))
	assert.NoError(t, checkPattern("write|delete_file"))
	assert.NoError(t, checkPattern("run_.*"))

	// A dangerous matcher never matches, and reports why.
	m := Matcher{Matcher: "(a+)+"}
	ok, err := m.matches("aaaa")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "nested quantifier")
}

func TestRiskyMatcherIsSkippedWithWarning(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "hooks.json", `{
	  "hooks": {"PreToolUse": [{"matcher": "(a+)+", "hooks": [
	    {"command": "echo 'never' >&2; exit 2"}
	  ]}]}
	}`)

	core, observed := observer.New(zapcore.WarnLevel)
	e := NewEngine(path, "", zap.New(core))

	d := e.EvaluatePre(context.Background(), "aaaa", nil, "")
	assert.True(t, d.Allow, "skipped matcher must not block the tool call")

	logs := observed.FilterMessage("hook matcher skipped").All()
	require.Len(t, logs, 1)

	// Repeat evaluations warn only once per pattern.
	e.EvaluatePre(context.Background(), "aaaa", nil, "")
	assert.Len(t, observed.FilterMessage("hook matcher skipped").All(), 1)
}

func TestConfigMergePrimaryWins(t *testing.T) {
	primary := &Config{Hooks: map[string][]Matcher{
		EventPreToolUse: {{Matcher: "write", Hooks: []HookSpec{{Command: "primary"}}}},
	}}
	secondary := &Config{Hooks: map[string][]Matcher{
		EventPreToolUse: {
			{Matcher: "write", Hooks: []HookSpec{{Command: "secondary"}}},
			{Matcher: "grep", Hooks: []HookSpec{{Command: "extra"}}},
		},
	}}

	merged := mergeConfigs(primary, secondary)
	require.Len(t, merged.Hooks[EventPreToolUse], 2)
	assert.Equal(t, "primary", merged.Hooks[EventPreToolUse][0].Hooks[0].Command)
	assert.Equal(t, "grep", merged.Hooks[EventPreToolUse][1].Matcher)
}

func TestConfigReloadOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "hooks.json", `{"hooks": {}}`)

	e := NewEngine(path, "", zaptest.NewLogger(t))
	d := e.EvaluatePre(context.Background(), "write", nil, "")
	assert.True(t, d.Allow)

	// Rewrite with a denying hook; force the loader to notice.
	writeConfig(t, dir, "hooks.json", `{
	  "hooks": {"PreToolUse": [{"matcher": "write", "hooks": [{"command": "exit 2"}]}]}
	}`)
	e.loader.invalidate(path)

	d = e.EvaluatePre(context.Background(), "write", nil, "")
	assert.False(t, d.Allow)
}

func TestMissingConfigAllowsEverything(t *testing.T) {
	e := NewEngine(filepath.Join(t.TempDir(), "absent.json"), "", zaptest.NewLogger(t))
	d := e.EvaluatePre(context.Background(), "write", nil, "")
	assert.True(t, d.Allow)
}
