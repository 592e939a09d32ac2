// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

// CommandDefinition is a declarative workflow loaded from disk by a
// DocumentLoader collaborator. Immutable for the duration of a run.
type CommandDefinition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// AgentRole names the persona driving every stage. Optional when dynamic
	// selection is enabled; FallbackAgent is then required.
	AgentRole     string `yaml:"agent"`
	FallbackAgent string `yaml:"fallback_agent"`

	Model          string          `yaml:"model"`
	AllowedTools   []string        `yaml:"allowed_tools"`
	KnowledgeFiles []string        `yaml:"knowledge_files"`
	Pipeline       []PipelineStage `yaml:"pipeline"`
}

// CacheConfig enables output caching for a single stage.
type CacheConfig struct {
	Enabled bool  `yaml:"enabled"`
	TTLMs   int64 `yaml:"ttl_ms"`

	// CacheKeyInputs restricts which resolved inputs feed the cache key.
	// Empty means all inputs participate.
	CacheKeyInputs []string `yaml:"cache_key_inputs"`

	// FileDependencies lists paths whose content fingerprints invalidate
	// the entry when they change.
	FileDependencies []string `yaml:"file_dependencies"`
}

// PipelineStage is one step of a command's pipeline. Immutable.
type PipelineStage struct {
	// Stage is the identifier, unique within the pipeline.
	Stage string `yaml:"stage"`

	// Prompt identifies the prompt body, of the form "category.name".
	Prompt string `yaml:"prompt"`

	// Inputs maps parameter names to values that may contain variable
	// references ($ARG_*, $STAGE_*, $CONTEXT_*, $ENV_*).
	Inputs map[string]interface{} `yaml:"inputs"`

	// Outputs lists the structured output keys the stage is expected to emit.
	Outputs []string `yaml:"outputs"`

	// Required defaults to true; a nil pointer means required.
	Required *bool `yaml:"required"`

	// Parallel marks the stage eligible for grouping with adjacent parallel
	// stages.
	Parallel bool `yaml:"parallel"`

	// Conditional, when set, is resolved against the variable context and
	// the stage is skipped unless it evaluates truthy.
	Conditional string `yaml:"conditional"`

	Cache *CacheConfig `yaml:"cache"`
}

// IsRequired reports whether a failure of this stage fails the pipeline.
func (s *PipelineStage) IsRequired() bool {
	return s.Required == nil || *s.Required
}

// AgentDefinition is a persona whose content is prepended to every system
// message in a run.
type AgentDefinition struct {
	Name    string `yaml:"name"`
	Content string `yaml:"content"`

	// EscalationCriteria lists the conditions under which the agent must
	// emit an escalation signal instead of acting.
	EscalationCriteria []string `yaml:"escalation_criteria"`
}

// PromptDefinition is a parameterized instruction body identified as
// "category.name".
type PromptDefinition struct {
	Category string `yaml:"category"`
	Name     string `yaml:"name"`
	Content  string `yaml:"content"`
}

// ID returns the canonical "category.name" identifier.
func (p *PromptDefinition) ID() string {
	return p.Category + "." + p.Name
}
