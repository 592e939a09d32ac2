// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTerminalCmd(t *testing.T) {
	r := &RunTerminalCmdTool{WorkDir: t.TempDir()}

	res, err := r.Execute(context.Background(), map[string]interface{}{"command": "echo hello"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "hello\n", res.Data)
}

func TestRunTerminalCmdFailure(t *testing.T) {
	r := &RunTerminalCmdTool{}

	res, err := r.Execute(context.Background(), map[string]interface{}{"command": "exit 3"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "COMMAND_FAILED", res.Error.Code)
}

func TestRunTerminalCmdTimeout(t *testing.T) {
	r := &RunTerminalCmdTool{}

	res, err := r.Execute(context.Background(), map[string]interface{}{
		"command": "sleep 5", "timeout_ms": 50.0,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "TIMEOUT", res.Error.Code)
}
