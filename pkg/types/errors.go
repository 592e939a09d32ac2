// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"fmt"
	"strings"
)

// ValidationError reports structural or input-shape problems detected before
// execution. Always fatal for the pipeline.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline validation failed: %s", strings.Join(e.Messages, "; "))
}

// VariableNotFoundError reports a reference that cannot resolve in strict
// mode. Raised for $ENV_* misses and for missing properties within an
// existing stage's outputs.
type VariableNotFoundError struct {
	Reference string
	Scope     string
	Path      string

	// Available lists the keys that do exist at the failing level.
	Available []string

	// Hint carries extra guidance, e.g. that the LLM may have returned
	// incomplete output for a stage.
	Hint string
}

func (e *VariableNotFoundError) Error() string {
	msg := fmt.Sprintf("variable not found: %s", e.Reference)
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(e.Available, ", "))
	}
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

// ExecutionError reports a required stage failure or a tool-use loop
// cancelled by policy. Fails the pipeline at the group boundary.
type ExecutionError struct {
	Stage string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ToolError reports a failed tool invocation. It never propagates out of the
// tool router; the LLM sees it as the tool's output string.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// HookBlockError reports a PreToolUse hook denial. The tool returns an error
// result; the pipeline does not fail.
type HookBlockError struct {
	Reason string
}

func (e *HookBlockError) Error() string {
	return fmt.Sprintf("blocked by PreToolUse hook: %s", e.Reason)
}

// EscalationAbortError reports a user decision to stop after an escalation
// signal. The stage returns failed with stopPipeline set.
type EscalationAbortError struct {
	Stage    string
	Reason   string
	Signal   *EscalationSignal
	Guidance string
}

func (e *EscalationAbortError) Error() string {
	return fmt.Sprintf("escalation aborted stage %q: %s", e.Stage, e.Reason)
}

// ProviderError wraps an LLM provider failure; the enclosing stage fails.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
