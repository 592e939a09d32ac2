// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the weft engine.
// This package breaks import cycles by providing common types that the
// pipeline, toolkit, and prompts packages all depend on.
package types

import (
	"context"
)

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	// ID is a unique identifier for this tool call
	ID string

	// Name is the tool name
	Name string

	// Arguments contains the tool parameters decoded from JSON
	Arguments map[string]interface{}
}

// Message represents a single message in the conversation.
type Message struct {
	// Role is the message sender (system, user, assistant, tool)
	Role string

	// Content is the message text
	Content string

	// Name optionally identifies the tool a tool-role message belongs to
	Name string

	// ToolCalls contains tool invocations (if role is assistant)
	ToolCalls []ToolCall

	// ToolCallID is the ID of the tool call this result corresponds to
	// (if role is tool)
	ToolCallID string
}

// Usage tracks LLM token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// ToolDefinition describes a tool to the LLM. Parameters is a JSON-Schema
// shaped object passed verbatim to the provider.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// CompletionRequest is the input to an LLM completion.
type CompletionRequest struct {
	Messages    []Message
	Model       string
	Mode        string
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// LLMResponse represents a response from the LLM.
type LLMResponse struct {
	// Content is the text response (if no tool calls)
	Content string

	// ToolCalls contains requested tool executions
	ToolCalls []ToolCall

	// FinishReason indicates why the LLM stopped
	FinishReason string

	// Usage tracks token usage
	Usage Usage

	// GuidedCompletion indicates the provider steered the model to a final
	// answer itself; the pipeline treats such content as a controlled stop.
	GuidedCompletion bool
}

// Provider defines the interface for pluggable LLM backends.
// Implementations must accept both zero-tool and tool-enabled requests.
type Provider interface {
	// Complete sends a conversation to the LLM and returns the response
	Complete(ctx context.Context, req *CompletionRequest) (*LLMResponse, error)

	// Name returns the provider name
	Name() string

	// Model returns the default model identifier
	Model() string
}

// ToolResult is the router's answer to a single tool call, fed back to the
// LLM as a tool-role message.
type ToolResult struct {
	ToolCallID string
	Output     string
}

// StageOutput is the result of one stage execution.
type StageOutput struct {
	Stage      string                 `json:"stage"`
	Prompt     string                 `json:"prompt"`
	Success    bool                   `json:"success"`
	Outputs    map[string]interface{} `json:"outputs"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms"`

	// Metadata is free-form; stopPipeline in metadata signals controlled
	// early termination to the pipeline executor.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// StopRequested reports whether this output asks the pipeline to stop after
// the current group.
func (s *StageOutput) StopRequested() bool {
	if s == nil || s.Metadata == nil {
		return false
	}
	stop, ok := s.Metadata["stopPipeline"].(bool)
	return ok && stop
}

// CommandResult is the outcome of a full pipeline run.
type CommandResult struct {
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Outputs    map[string]interface{} `json:"outputs"`
	Stages     []StageOutput          `json:"stages"`
	DurationMs int64                  `json:"duration_ms"`
}

// EscalationSignal is the structured block an LLM embeds to request human
// review before the pipeline continues.
type EscalationSignal struct {
	RequiresEscalation bool     `json:"requires_escalation"`
	Confidence         int      `json:"confidence"`
	RiskLevel          string   `json:"risk_level"`
	TriggeredCriteria  []string `json:"triggered_criteria"`
	Reasoning          string   `json:"reasoning"`
	ProposedAction     string   `json:"proposed_action"`
}

// Risk levels carried by an escalation signal.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// SessionInfo identifies the session a run belongs to.
type SessionInfo struct {
	ID        string
	IsResumed bool
}

// IsolationSpec restricts a run to a named subset of stages.
type IsolationSpec struct {
	// Stages lists the targets, each either a stage name or "stage.prompt"
	Stages []string

	// MockInputs substitutes a stage's inputs instead of resolving them
	MockInputs map[string]map[string]interface{}

	// RelaxRequired downgrades required stages to optional for the subset run
	RelaxRequired bool
}
