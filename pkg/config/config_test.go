// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataDirEnvOverride(t *testing.T) {
	t.Setenv("WEFT_DATA_DIR", "/tmp/custom-weft")
	assert.Equal(t, "/tmp/custom-weft", DataDir())
}

func TestProjectPaths(t *testing.T) {
	root := "/work/project"
	assert.Equal(t, filepath.Join(root, ".orchestrator-state"), StateDir(root))
	assert.Equal(t, filepath.Join(root, ".orchestrator-state", "idempotency"), IdempotencyDir(root))
	assert.Equal(t, filepath.Join(root, ".weft", "hooks.json"), ProjectHooksPath(root))
}

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("WEFT_DATA_DIR", t.TempDir())

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 75, s.ConfidenceThreshold)
	assert.Equal(t, 20, s.MaxToolIterations)
	assert.False(t, s.IdempotencyDisabled)
}

func TestLoadSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WEFT_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
model: sonnet-large
confidence_threshold: 60
idempotency_disabled: true
`), 0o644))

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "sonnet-large", s.Model)
	assert.Equal(t, 60, s.ConfidenceThreshold)
	assert.True(t, s.IdempotencyDisabled)
}
