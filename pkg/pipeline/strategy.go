// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/weft-labs/weft/pkg/cache"
	"github.com/weft-labs/weft/pkg/toolkit"
	"github.com/weft-labs/weft/pkg/types"
)

// DryRunCacheStage is the synthetic stage name a consumed dry-run plan's
// analysis outputs are published under, referenced as $STAGE_dry_run_cache.*.
const DryRunCacheStage = "dry_run_cache"

// Selector picks an execution strategy for a command invocation and runs it.
// Strategies are tried in a fixed order: dry-run, isolation, interactive,
// default; the first activation wins.
type Selector struct {
	svc    *Services
	exec   *Executor
	out    io.Writer
	logger *zap.Logger
}

// NewSelector creates a strategy selector. Planned-operation renderings for
// dry runs go to out; pass io.Discard to silence them.
func NewSelector(svc *Services, out io.Writer) *Selector {
	logger := svc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Selector{svc: svc, exec: NewExecutor(svc), out: out, logger: logger}
}

// SelectAndExecute runs def's pipeline under the first strategy that
// activates for the execution context.
func (s *Selector) SelectAndExecute(ctx context.Context, def *types.CommandDefinition, ec *ExecutionContext) *types.CommandResult {
	switch {
	case ec.IsDryRun():
		return s.executeDryRun(ctx, def, ec)
	case ec.Isolation != nil:
		return s.executeIsolation(ctx, def, ec)
	case ec.BoolFlag("interactive"):
		ec.Interactive = true
		return s.executeDefault(ctx, def, ec)
	default:
		return s.executeDefault(ctx, def, ec)
	}
}

// executeDryRun runs the full pipeline in simulate mode, renders the planned
// operations, and banks a one-shot plan for the next real run.
func (s *Selector) executeDryRun(ctx context.Context, def *types.CommandDefinition, ec *ExecutionContext) *types.CommandResult {
	s.logger.Info("dry-run strategy selected", zap.String("command", def.Name))

	prompts, agent := s.preloadResources(def, ec)
	result := s.exec.Execute(ctx, def.Pipeline, ec, ExecuteOptions{
		DryRun:           true,
		PreloadedPrompts: prompts,
		PreloadedAgent:   agent,
	})

	s.renderPlan(s.svc.Router.PlannedOperations())

	if s.svc.DryRuns != nil {
		entry := &cache.DryRunEntry{
			CommandName:        def.Name,
			CommandHash:        cache.CommandHash(def),
			AnalysisOutputs:    result.Outputs,
			PrecomputedOutputs: precomputedOutputs(def.Pipeline, result.Stages),
			PlannedStages:      plannedStages(def.Pipeline),
			PreloadedPrompts:   prompts,
			PreloadedAgent:     agent,
			PreresolvedInputs:  s.exec.preResolveStaticInputs(def.Pipeline, ec, nil),
			PipelineValidated:  len(Validate(def.Pipeline)) == 0,
		}
		s.svc.DryRuns.Put(cache.Key(def.Name, ec.Args, ec.Flags), entry)
	}
	return result
}

// executeIsolation runs only the stages named by the isolation spec.
func (s *Selector) executeIsolation(ctx context.Context, def *types.CommandDefinition, ec *ExecutionContext) *types.CommandResult {
	iso := ec.Isolation
	s.logger.Info("isolation strategy selected",
		zap.String("command", def.Name), zap.Strings("targets", iso.Stages))

	var subset []types.PipelineStage
	for _, stage := range def.Pipeline {
		if isolationMatches(iso.Stages, stage) {
			subset = append(subset, stage)
		}
	}
	if len(subset) == 0 {
		err := &types.ValidationError{Messages: []string{
			fmt.Sprintf("isolation matched no stages (targets: %s)", strings.Join(iso.Stages, ", ")),
		}}
		return &types.CommandResult{Success: false, Error: err.Error(), Outputs: map[string]interface{}{}}
	}

	return s.exec.Execute(ctx, subset, ec, ExecuteOptions{
		MockInputs:    iso.MockInputs,
		RelaxRequired: iso.RelaxRequired,
	})
}

// executeDefault consumes any banked dry-run plan, then runs the pipeline.
func (s *Selector) executeDefault(ctx context.Context, def *types.CommandDefinition, ec *ExecutionContext) *types.CommandResult {
	opts := ExecuteOptions{}

	if s.svc.DryRuns != nil {
		key := cache.Key(def.Name, ec.Args, ec.Flags)
		if entry, ok := s.svc.DryRuns.Consume(key, cache.CommandHash(def)); ok {
			s.logger.Info("dry-run plan consumed",
				zap.String("command", def.Name),
				zap.Int("precomputed_stages", len(entry.PrecomputedOutputs)))

			if len(entry.AnalysisOutputs) > 0 {
				ec.Resolver.Context().AddStageOutputs(DryRunCacheStage, entry.AnalysisOutputs)
			}
			opts.Precompleted = entry.PrecomputedOutputs
			opts.PreloadedPrompts = entry.PreloadedPrompts
			opts.PreloadedAgent = entry.PreloadedAgent
			opts.PreResolvedInputs = entry.PreresolvedInputs
		}
	}

	return s.exec.Execute(ctx, def.Pipeline, ec, opts)
}

// preloadResources loads every stage prompt plus the agent up front so the
// plan entry can carry them. Load failures are tolerated here; the stage
// executor reports them properly during execution.
func (s *Selector) preloadResources(def *types.CommandDefinition, ec *ExecutionContext) (map[string]*types.PromptDefinition, *types.AgentDefinition) {
	loaded := make(map[string]*types.PromptDefinition, len(def.Pipeline))
	for _, stage := range def.Pipeline {
		if _, ok := loaded[stage.Prompt]; ok {
			continue
		}
		p, err := s.svc.Loader.LoadPrompt(stage.Prompt)
		if err != nil {
			s.logger.Debug("prompt preload failed", zap.String("prompt", stage.Prompt), zap.Error(err))
			continue
		}
		loaded[stage.Prompt] = p
	}
	agent, err := s.svc.Loader.LoadAgent(ec.AgentRole)
	if err != nil {
		s.logger.Debug("agent preload failed", zap.String("agent", ec.AgentRole), zap.Error(err))
		agent = nil
	}
	return loaded, agent
}

// renderPlan writes the simulated operations with their diffs and token
// estimates.
func (s *Selector) renderPlan(ops []toolkit.PlannedOperation) {
	if len(ops) == 0 {
		fmt.Fprintln(s.out, "Dry run: no mutating operations planned.")
		return
	}
	fmt.Fprintf(s.out, "Dry run: %d planned operation(s)\n", len(ops))
	for i, op := range ops {
		fmt.Fprintf(s.out, "\n%d. [%s] %s\n", i+1, op.Tool, op.Summary)
		if op.Diff != "" {
			fmt.Fprintf(s.out, "%s\n", op.Diff)
			fmt.Fprintf(s.out, "   ~%d tokens\n", toolkit.EstimateTokens(op.Diff))
		}
	}
}

// isolationMatches reports whether a stage is named by any isolation target,
// either by bare stage name or as "stage.prompt".
func isolationMatches(targets []string, stage types.PipelineStage) bool {
	qualified := stage.Stage + "." + stage.Prompt
	for _, t := range targets {
		if t == stage.Stage || t == qualified {
			return true
		}
	}
	return false
}

func plannedStages(stages []types.PipelineStage) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Stage)
	}
	return names
}

// precomputedOutputs collects successful stage outputs from a dry run that a
// later real run may treat as already complete. Only cache-enabled stages
// qualify; stages with side effects were merely simulated and must run for
// real.
func precomputedOutputs(stages []types.PipelineStage, outs []types.StageOutput) map[string]map[string]interface{} {
	byName := make(map[string]types.PipelineStage, len(stages))
	for _, s := range stages {
		byName[s.Stage] = s
	}
	pre := make(map[string]map[string]interface{})
	for _, out := range outs {
		if !out.Success || out.Outputs == nil {
			continue
		}
		stage, ok := byName[out.Stage]
		if !ok {
			continue
		}
		if stage.Cache != nil && stage.Cache.Enabled {
			pre[out.Stage] = out.Outputs
		}
	}
	return pre
}
