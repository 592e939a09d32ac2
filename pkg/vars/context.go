// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package vars resolves $ARG_*, $STAGE_*, $CONTEXT_* and $ENV_* references
// across strings, arrays and mappings.
package vars

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Context holds the four variable scopes a resolver draws from. Mutation of
// stage records happens only through AddStageOutputs and is append-only per
// stage.
type Context struct {
	mu      sync.RWMutex
	args    map[string]interface{}
	stages  map[string]map[string]interface{}
	session map[string]interface{}
	env     map[string]string
}

// NewContext builds a variable context from positional args, named flags and
// session-scoped values. Named flags are indexed under their original,
// kebab-case and snake_case spellings so templates survive CLI convention
// drift. The process environment is snapshotted at construction.
func NewContext(args []interface{}, flags map[string]interface{}, session map[string]interface{}) *Context {
	c := &Context{
		args:    make(map[string]interface{}),
		stages:  make(map[string]map[string]interface{}),
		session: make(map[string]interface{}),
		env:     snapshotEnv(),
	}
	for i, a := range args {
		c.args[fmt.Sprintf("%d", i+1)] = a
	}
	for k, v := range flags {
		c.args[k] = v
		c.args[toKebab(k)] = v
		c.args[toSnake(k)] = v
	}
	for k, v := range session {
		c.session[k] = v
	}
	return c
}

// AddStageOutputs records a completed stage's outputs. Existing keys in a
// stage record are never rewritten; repeated additions only append new keys.
func (c *Context) AddStageOutputs(stage string, outputs map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.stages[stage]
	if !ok {
		rec = make(map[string]interface{}, len(outputs))
		c.stages[stage] = rec
	}
	for k, v := range outputs {
		if _, exists := rec[k]; !exists {
			rec[k] = v
		}
	}
}

// StageOutputs returns a completed stage's record, or nil if the stage has
// not completed.
func (c *Context) StageOutputs(stage string) (map[string]interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.stages[stage]
	return rec, ok
}

// SetContextValue sets a session-scoped value.
func (c *Context) SetContextValue(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session[key] = value
}

// Arg returns a named or positional argument.
func (c *Context) Arg(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.args[key]
	return v, ok
}

func snapshotEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

// toKebab converts camelCase and snake_case identifiers to kebab-case.
func toKebab(s string) string {
	return strings.ReplaceAll(decamel(s, '-'), "_", "-")
}

// toSnake converts camelCase and kebab-case identifiers to snake_case.
func toSnake(s string) string {
	return strings.ReplaceAll(decamel(s, '_'), "-", "_")
}

func decamel(s string, sep byte) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= 'A' && ch <= 'Z' {
			if i > 0 && s[i-1] != byte(sep) && s[i-1] != '_' && s[i-1] != '-' {
				b.WriteByte(sep)
			}
			b.WriteByte(ch - 'A' + 'a')
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
