// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pipeline

import (
	"sync"

	"github.com/weft-labs/weft/pkg/types"
	"github.com/weft-labs/weft/pkg/vars"
)

// ExecutionContext is the mutable state of one pipeline run. It owns the
// variable resolver, the completed-output list, and the completed-stage set;
// all completion writes go through RecordStageCompletion.
type ExecutionContext struct {
	CommandName    string
	Args           []interface{}
	Flags          map[string]interface{}
	AgentRole      string
	Model          string
	Mode           string
	Provider       types.Provider
	KnowledgeFiles []string
	AllowedTools   []string
	Isolation      *types.IsolationSpec
	Interactive    bool
	Session        types.SessionInfo

	Resolver *vars.Resolver

	mu        sync.Mutex
	completed []types.StageOutput
	finished  map[string]bool
}

// NewExecutionContext builds the run state for a command invocation. The
// variable context snapshots the environment and indexes flags under their
// casing variants at construction.
func NewExecutionContext(def *types.CommandDefinition, args []interface{}, flags map[string]interface{}, provider types.Provider, session types.SessionInfo) *ExecutionContext {
	varCtx := vars.NewContext(args, flags, map[string]interface{}{
		"session_id": session.ID,
	})
	return &ExecutionContext{
		CommandName:    def.Name,
		Args:           args,
		Flags:          flags,
		AgentRole:      def.AgentRole,
		Model:          def.Model,
		Provider:       provider,
		KnowledgeFiles: def.KnowledgeFiles,
		AllowedTools:   def.AllowedTools,
		Session:        session,
		Resolver:       vars.NewResolver(varCtx),
		finished:       make(map[string]bool),
	}
}

// RecordStageCompletion appends a stage output and publishes its outputs to
// the variable context so later stages can reference them via $STAGE_*.
func (ec *ExecutionContext) RecordStageCompletion(out types.StageOutput) {
	ec.mu.Lock()
	ec.completed = append(ec.completed, out)
	ec.finished[out.Stage] = true
	ec.mu.Unlock()

	if out.Success && out.Outputs != nil {
		ec.Resolver.Context().AddStageOutputs(out.Stage, out.Outputs)
	}
}

// CompletedStages returns the recorded outputs in completion order.
func (ec *ExecutionContext) CompletedStages() []types.StageOutput {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return append([]types.StageOutput(nil), ec.completed...)
}

// HasCompleted reports whether a stage has recorded a completion.
func (ec *ExecutionContext) HasCompleted(stage string) bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.finished[stage]
}

// Flag returns a flag value under any of its casing variants.
func (ec *ExecutionContext) Flag(name string) (interface{}, bool) {
	if v, ok := ec.Flags[name]; ok {
		return v, true
	}
	return ec.Resolver.Context().Arg(name)
}

// BoolFlag reports whether a flag is set truthy under any casing variant.
func (ec *ExecutionContext) BoolFlag(names ...string) bool {
	for _, name := range names {
		if v, ok := ec.Flag(name); ok {
			if b, isBool := v.(bool); isBool && b {
				return true
			}
			if s, isStr := v.(string); isStr && s == "true" {
				return true
			}
		}
	}
	return false
}

// IsDryRun reports whether the run was invoked with a dry-run flag.
func (ec *ExecutionContext) IsDryRun() bool {
	return ec.BoolFlag("dryRun", "dry-run")
}

// StringFlag returns a string flag, or empty.
func (ec *ExecutionContext) StringFlag(name string) string {
	if v, ok := ec.Flag(name); ok {
		if s, isStr := v.(string); isStr {
			return s
		}
	}
	return ""
}
