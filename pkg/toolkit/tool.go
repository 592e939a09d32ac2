// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package toolkit defines the tool abstraction the pipeline exposes to the
// model, the registry of built-in tools, and the router that dispatches tool
// calls through hooks, guards, and the idempotency store.
package toolkit

import (
	"context"
	"encoding/json"

	"github.com/weft-labs/weft/pkg/types"
)

// Tool is one capability the model can invoke during a stage.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description returns a human-readable description for LLM context.
	Description() string

	// InputSchema returns the JSON Schema for tool parameters.
	InputSchema() *JSONSchema

	// Execute runs the tool with given parameters.
	Execute(ctx context.Context, params map[string]interface{}) (*Result, error)

	// ReadOnly reports whether the tool mutates anything outside the
	// process. Read-only tools run for real even in dry-run mode.
	ReadOnly() bool
}

// Result is the outcome of one tool execution.
type Result struct {
	Success bool

	// Data carries the result payload; its shape varies by tool.
	Data interface{}

	Error *Error

	Metadata map[string]interface{}

	ExecutionTimeMs int64

	// Replayed marks a result served from the idempotency store.
	Replayed bool
}

// Error is a structured tool failure.
type Error struct {
	Code       string
	Message    string
	Suggestion string
}

// Output renders a result as the string handed back to the model.
func (r *Result) Output() string {
	if r.Error != nil {
		msg := r.Error.Message
		if r.Error.Suggestion != "" {
			msg += " (" + r.Error.Suggestion + ")"
		}
		return "Error: " + msg
	}
	switch d := r.Data.(type) {
	case nil:
		return "OK"
	case string:
		return d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return "OK"
		}
		return string(b)
	}
}

// Definition converts a tool to the wire shape sent to the provider.
func Definition(t Tool) types.ToolDefinition {
	var params map[string]interface{}
	if s := NormalizeSchema(t.InputSchema()); s != nil {
		if b, err := json.Marshal(s); err == nil {
			_ = json.Unmarshal(b, &params)
		}
	}
	return types.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  params,
	}
}
