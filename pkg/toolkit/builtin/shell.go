// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/weft-labs/weft/pkg/toolkit"
)

const (
	// DefaultCommandTimeout bounds terminal commands without an explicit
	// timeout argument.
	DefaultCommandTimeout = 30 * time.Second

	// MaxCommandTimeout caps what the model may ask for.
	MaxCommandTimeout = 10 * time.Minute

	// maxCommandOutput truncates runaway command output.
	maxCommandOutput = 100 * 1024
)

// RunTerminalCmdTool executes a shell command with a bounded timeout.
type RunTerminalCmdTool struct {
	// WorkDir is the directory commands run in; empty means inherit.
	WorkDir string
}

func (t *RunTerminalCmdTool) Name() string   { return "run_terminal_cmd" }
func (t *RunTerminalCmdTool) ReadOnly() bool { return false }

func (t *RunTerminalCmdTool) Description() string {
	return "Runs a shell command and returns combined stdout/stderr. Default timeout 30s, overridable with timeout_ms."
}

func (t *RunTerminalCmdTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for running a terminal command",
		map[string]*toolkit.JSONSchema{
			"command":    toolkit.NewStringSchema("Shell command to run (required)."),
			"timeout_ms": toolkit.NewIntegerSchema("Timeout in milliseconds (default 30000, max 600000)."),
		},
		[]string{"command"},
	)
}

func (t *RunTerminalCmdTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	command, ok := params["command"].(string)
	if !ok || command == "" {
		return errResult(start, "INVALID_PARAMS", "command is required", "")
	}

	timeout := DefaultCommandTimeout
	if ms, ok := params["timeout_ms"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
		if timeout > MaxCommandTimeout {
			timeout = MaxCommandTimeout
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if t.WorkDir != "" {
		cmd.Dir = t.WorkDir
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := out.String()
	if len(output) > maxCommandOutput {
		output = output[:maxCommandOutput] + "\n... (output truncated)"
	}
	if !isValidUTF8(output) {
		output = strings.ToValidUTF8(output, "�")
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return errResult(start, "TIMEOUT",
			fmt.Sprintf("command timed out after %s", timeout),
			"Increase timeout_ms or simplify the command")
	}
	if err != nil {
		return &toolkit.Result{
			Success: false,
			Data:    output,
			Error: &toolkit.Error{
				Code:    "COMMAND_FAILED",
				Message: fmt.Sprintf("%v\n%s", err, output),
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}
	if output == "" {
		output = "(no output)"
	}
	return okResult(start, output)
}

func isValidUTF8(s string) bool {
	return strings.ToValidUTF8(s, "") == s
}
