// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/weft-labs/weft/pkg/toolkit"
)

// ExternalToolProvider is a connected external tool source. Each provider is
// exposed to the model as one routing tool taking {tool_name, arguments}.
type ExternalToolProvider interface {
	Name() string
	Description() string
	// Mutating providers participate in idempotency and dry-run simulation.
	Mutating() bool
	Call(ctx context.Context, toolName string, arguments map[string]interface{}) (string, error)
}

// GatewayTool routes calls to an external tool provider.
type GatewayTool struct {
	provider ExternalToolProvider
}

// NewGatewayTool wraps a provider as a routing tool.
func NewGatewayTool(provider ExternalToolProvider) *GatewayTool {
	return &GatewayTool{provider: provider}
}

func (t *GatewayTool) Name() string   { return t.provider.Name() }
func (t *GatewayTool) ReadOnly() bool { return !t.provider.Mutating() }

func (t *GatewayTool) Description() string {
	return t.provider.Description()
}

func (t *GatewayTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Routes a call to the "+t.provider.Name()+" provider",
		map[string]*toolkit.JSONSchema{
			"tool_name": toolkit.NewStringSchema("Name of the provider tool to invoke (required)."),
			"arguments": toolkit.NewObjectSchema("Arguments for the provider tool.", map[string]*toolkit.JSONSchema{}, nil),
		},
		[]string{"tool_name"},
	)
}

func (t *GatewayTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	toolName, ok := params["tool_name"].(string)
	if !ok || toolName == "" {
		return errResult(start, "INVALID_PARAMS", "tool_name is required", "")
	}
	arguments, _ := params["arguments"].(map[string]interface{})

	out, err := t.provider.Call(ctx, toolName, arguments)
	if err != nil {
		return errResult(start, "PROVIDER_FAILED",
			fmt.Sprintf("%s/%s: %v", t.provider.Name(), toolName, err), "")
	}
	return okResult(start, out)
}
