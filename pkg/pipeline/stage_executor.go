// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/weft-labs/weft/pkg/cache"
	"github.com/weft-labs/weft/pkg/outputs"
	"github.com/weft-labs/weft/pkg/prompts"
	"github.com/weft-labs/weft/pkg/types"
)

const (
	// defaultMaxToolIterations bounds the tool-use loop per stage when the
	// services record carries no override.
	defaultMaxToolIterations = 20

	// toolLoopTemperature keeps tool-driving completions deterministic-ish.
	toolLoopTemperature = 0.2

	defaultMaxTokens = 8192
)

// StageOptions carries per-invocation overrides into a stage execution.
type StageOptions struct {
	// PreResolvedInputs skips on-the-fly resolution when the pipeline
	// executor resolved the stage's inputs up front.
	PreResolvedInputs map[string]interface{}

	// MockInputs replaces resolution entirely (isolation runs).
	MockInputs map[string]interface{}

	// PreloadedPrompt and PreloadedAgent skip loader round-trips when a
	// dry-run cache entry carried them.
	PreloadedPrompt *types.PromptDefinition
	PreloadedAgent  *types.AgentDefinition

	// DryRun puts the tool router into simulate mode for this stage.
	DryRun bool
}

// StageExecutor runs a single pipeline stage end to end.
type StageExecutor struct {
	svc    *Services
	logger *zap.Logger
}

// NewStageExecutor creates a stage executor over a service record.
func NewStageExecutor(svc *Services) *StageExecutor {
	logger := svc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageExecutor{svc: svc, logger: logger}
}

// ExecuteStage runs one stage: cache probe, resource loading, input
// resolution, the tool-use loop, escalation handling, output parsing,
// validation, and cache write-back. It never returns an error; failures are
// encoded in the StageOutput.
func (e *StageExecutor) ExecuteStage(ctx context.Context, stage types.PipelineStage, ec *ExecutionContext, index int, opts StageOptions) types.StageOutput {
	start := time.Now()
	fail := func(err error) types.StageOutput {
		e.logger.Warn("stage failed",
			zap.String("stage", stage.Stage), zap.Error(err))
		return types.StageOutput{
			Stage:      stage.Stage,
			Prompt:     stage.Prompt,
			Success:    false,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	// Resolve inputs.
	var resolved map[string]interface{}
	switch {
	case opts.MockInputs != nil:
		resolved = opts.MockInputs
	case opts.PreResolvedInputs != nil:
		resolved = opts.PreResolvedInputs
	default:
		var err error
		resolved, err = ec.Resolver.ResolveInputs(stage.Inputs)
		if err != nil {
			return fail(&types.ExecutionError{Stage: stage.Stage, Err: err})
		}
	}
	resolved = prompts.EnrichFileInputs(resolved)

	dryRun := opts.DryRun || ec.IsDryRun()

	// Cache probe.
	if stage.Cache != nil && stage.Cache.Enabled && !dryRun {
		if res := e.svc.StageCache.Get(stage.Stage, resolved, stage.Cache); res.Hit {
			e.logger.Info("stage served from cache",
				zap.String("stage", stage.Stage),
				zap.Int64("saved_ms", res.SavedTimeMs))
			return *cache.CachedStageOutput(stage.Stage, stage.Prompt, res.Entry)
		} else {
			e.logger.Debug("stage cache miss",
				zap.String("stage", stage.Stage), zap.String("reason", res.Reason))
		}
	}

	// Load resources.
	prompt := opts.PreloadedPrompt
	if prompt == nil {
		var err error
		prompt, err = e.svc.Loader.LoadPrompt(stage.Prompt)
		if err != nil {
			return fail(err)
		}
	}
	agent := opts.PreloadedAgent
	if agent == nil {
		role := ec.AgentRole
		var err error
		agent, err = e.svc.Loader.LoadAgent(role)
		if err != nil {
			return fail(err)
		}
	}
	guidance, err := e.svc.Loader.LoadGuidance()
	if err != nil {
		return fail(err)
	}
	knowledge, err := e.svc.Loader.LoadKnowledge(ec.KnowledgeFiles)
	if err != nil {
		return fail(err)
	}

	system, user := prompts.BuildMessages(prompts.BuildInput{
		Guidance:        guidance,
		Agent:           agent,
		Prompt:          prompt,
		Knowledge:       knowledge,
		ExpectedOutputs: stage.Outputs,
		ResolvedInputs:  resolved,
	})

	// Execution config.
	model := ec.StringFlag("model")
	if model == "" {
		model = ec.Model
	}
	mode := ec.StringFlag("mode")
	if mode == "" {
		mode = ec.Mode
	}
	tools := e.svc.Router.Definitions(ec.AllowedTools)
	if dryRun {
		e.svc.Router.SetDryRun(true)
	}

	final, usage, err := e.runToolLoop(ctx, ec, stage.Stage, []types.Message{system, user}, model, mode, tools)
	if err != nil {
		return fail(err)
	}

	metadata := map[string]interface{}{
		"stageContext": map[string]interface{}{
			"stage":  stage.Stage,
			"prompt": stage.Prompt,
			"inputs": resolved,
		},
	}

	// Provider-guided completion is a controlled stop.
	if final.GuidedCompletion {
		metadata["stopPipeline"] = true
		return types.StageOutput{
			Stage:      stage.Stage,
			Prompt:     stage.Prompt,
			Success:    true,
			Outputs:    map[string]interface{}{"result": final.Content},
			DurationMs: time.Since(start).Milliseconds(),
			Metadata:   metadata,
		}
	}

	content := final.Content

	// Escalation.
	if len(agent.EscalationCriteria) > 0 {
		cleaned, signal, parseErr := e.svc.Detector.Detect(content)
		if parseErr != nil {
			e.logger.Warn("malformed escalation signal ignored",
				zap.String("stage", stage.Stage), zap.Error(parseErr))
		}
		content = cleaned
		if signal != nil && e.svc.Detector.Required(signal) {
			stop, out := e.handleEscalation(ctx, stage, signal, metadata, content, start)
			if stop {
				return out
			}
		}
	}

	parsed := outputs.ParseStageOutputs(content, stage.Outputs)
	parsed["result"] = content
	parsed["usage"] = map[string]interface{}{
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
	}

	// Per-stage validation.
	if v, ok := e.svc.Validators[stage.Stage]; ok {
		if valid, critical, msg := v.ValidateStage(stage.Stage, parsed); !valid {
			if critical {
				metadata["stopPipeline"] = true
			}
			return types.StageOutput{
				Stage:      stage.Stage,
				Prompt:     stage.Prompt,
				Success:    false,
				Outputs:    parsed,
				Error:      msg,
				DurationMs: time.Since(start).Milliseconds(),
				Metadata:   metadata,
			}
		}
	}

	durationMs := time.Since(start).Milliseconds()

	// Cache write-back, success only.
	if stage.Cache != nil && stage.Cache.Enabled && !dryRun {
		e.svc.StageCache.Put(stage.Stage, resolved, stage.Cache, parsed, durationMs)
	}

	e.appendTranscript(ctx, ec, stage.Stage, content)

	return types.StageOutput{
		Stage:      stage.Stage,
		Prompt:     stage.Prompt,
		Success:    true,
		Outputs:    parsed,
		DurationMs: durationMs,
		Metadata:   metadata,
	}
}

// runToolLoop drives the provider until it stops calling tools, for at most
// the configured iteration budget, then forces one tools-disabled final call.
func (e *StageExecutor) runToolLoop(ctx context.Context, ec *ExecutionContext, stageName string, messages []types.Message, model, mode string, tools []types.ToolDefinition) (*types.LLMResponse, types.Usage, error) {
	var usage types.Usage

	budget := e.svc.MaxToolIterations
	if budget <= 0 {
		budget = defaultMaxToolIterations
	}
	for i := 0; i < budget; i++ {
		resp, err := ec.Provider.Complete(ctx, &types.CompletionRequest{
			Messages:    messages,
			Model:       model,
			Mode:        mode,
			Tools:       tools,
			Temperature: toolLoopTemperature,
			MaxTokens:   defaultMaxTokens,
		})
		if err != nil {
			return nil, usage, &types.ProviderError{Provider: ec.Provider.Name(), Err: err}
		}
		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens

		if len(resp.ToolCalls) == 0 || resp.GuidedCompletion {
			return resp, usage, nil
		}

		messages = append(messages, types.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		results := e.svc.Router.ExecuteTools(ctx, resp.ToolCalls)
		for j, res := range results {
			messages = append(messages, types.Message{
				Role:       "tool",
				Name:       resp.ToolCalls[j].Name,
				Content:    res.Output,
				ToolCallID: res.ToolCallID,
			})
		}
	}

	// Iteration budget exhausted: one final, tools-disabled completion that
	// demands the structured output.
	e.logger.Warn("tool loop exhausted, forcing final completion",
		zap.String("stage", stageName))
	messages = append(messages, types.Message{
		Role:    "user",
		Content: "Tool budget exhausted. Respond now with ONLY the required JSON output; do not call any tools.",
	})
	resp, err := ec.Provider.Complete(ctx, &types.CompletionRequest{
		Messages:    messages,
		Model:       model,
		Mode:        mode,
		Temperature: toolLoopTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, usage, &types.ProviderError{Provider: ec.Provider.Name(), Err: err}
	}
	usage.PromptTokens += resp.Usage.PromptTokens
	usage.CompletionTokens += resp.Usage.CompletionTokens
	return resp, usage, nil
}

// handleEscalation consults the handler and either stops the stage (abort)
// or amends metadata and lets execution continue (proceed/modify).
func (e *StageExecutor) handleEscalation(ctx context.Context, stage types.PipelineStage, signal *types.EscalationSignal, metadata map[string]interface{}, content string, start time.Time) (bool, types.StageOutput) {
	metadata["escalation"] = signal

	decision := DecisionAbort
	guidance := ""
	if e.svc.Escalations != nil {
		var err error
		decision, guidance, err = e.svc.Escalations.HandleEscalation(ctx, stage.Stage, signal)
		if err != nil {
			e.logger.Warn("escalation handler failed, aborting",
				zap.String("stage", stage.Stage), zap.Error(err))
			decision = DecisionAbort
		}
	}

	switch decision {
	case DecisionProceed:
		e.logger.Info("escalation overridden, proceeding", zap.String("stage", stage.Stage))
		return false, types.StageOutput{}
	case DecisionModify:
		metadata["userGuidance"] = guidance
		e.logger.Info("escalation modified, proceeding with guidance", zap.String("stage", stage.Stage))
		return false, types.StageOutput{}
	default:
		metadata["stopPipeline"] = true
		abort := &types.EscalationAbortError{
			Stage:    stage.Stage,
			Reason:   signal.Reasoning,
			Signal:   signal,
			Guidance: guidance,
		}
		return true, types.StageOutput{
			Stage:      stage.Stage,
			Prompt:     stage.Prompt,
			Success:    false,
			Outputs:    map[string]interface{}{"result": content},
			Error:      abort.Error(),
			DurationMs: time.Since(start).Milliseconds(),
			Metadata:   metadata,
		}
	}
}

func (e *StageExecutor) appendTranscript(ctx context.Context, ec *ExecutionContext, stage, content string) {
	if e.svc.Transcript == nil || ec.Session.ID == "" {
		return
	}
	if err := e.svc.Transcript.Append(ctx, ec.Session.ID, stage, "assistant", content); err != nil {
		e.logger.Debug("transcript append failed", zap.Error(err))
	}
}
