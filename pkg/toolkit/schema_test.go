// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaTool struct{}

func (t *schemaTool) Name() string        { return "schema_tool" }
func (t *schemaTool) Description() string { return "validates args" }
func (t *schemaTool) ReadOnly() bool      { return true }

func (t *schemaTool) InputSchema() *JSONSchema {
	return NewObjectSchema("params", map[string]*JSONSchema{
		"path":  NewStringSchema("a path"),
		"count": NewIntegerSchema("a count"),
		"mode":  NewStringSchema("a mode").WithEnum("fast", "slow").WithDefault("fast"),
	}, []string{"path"})
}

func (t *schemaTool) Execute(ctx context.Context, params map[string]interface{}) (*Result, error) {
	return &Result{Success: true}, nil
}

func TestValidateArgsAcceptsValid(t *testing.T) {
	tool := &schemaTool{}
	assert.NoError(t, ValidateArgs(tool, map[string]interface{}{"path": "a.txt"}))
	assert.NoError(t, ValidateArgs(tool, map[string]interface{}{"path": "a.txt", "count": 3.0, "mode": "slow"}))
}

func TestValidateArgsRejectsInvalid(t *testing.T) {
	tool := &schemaTool{}

	err := ValidateArgs(tool, map[string]interface{}{})
	require.Error(t, err, "missing required path")
	assert.Contains(t, err.Error(), "schema_tool")

	assert.Error(t, ValidateArgs(tool, map[string]interface{}{"path": 42}))
	assert.Error(t, ValidateArgs(tool, map[string]interface{}{"path": "a", "mode": "warp"}))
}

func TestNormalizeSchemaFillsGaps(t *testing.T) {
	s := &JSONSchema{Type: "object"}
	n := NormalizeSchema(s)
	assert.NotNil(t, n.Properties)

	inferred := NormalizeSchema(&JSONSchema{
		Properties: map[string]*JSONSchema{"x": {Type: "string"}},
	})
	assert.Equal(t, "object", inferred.Type)

	enum := NormalizeSchema(&JSONSchema{Enum: []interface{}{"a", "b"}})
	assert.Equal(t, "string", enum.Type)
}

func TestDefinitionShape(t *testing.T) {
	def := Definition(&schemaTool{})
	assert.Equal(t, "schema_tool", def.Name)
	require.NotNil(t, def.Parameters)
	assert.Equal(t, "object", def.Parameters["type"])

	props, ok := def.Parameters["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "path")
}

func TestEstimateTokensMonotonic(t *testing.T) {
	short := EstimateTokens("hello")
	long := EstimateTokens("hello world, this is a longer sentence about pipelines")
	assert.Greater(t, long, short)
	assert.Equal(t, 0, EstimateTokens(""))
}
