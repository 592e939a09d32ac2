// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weft-labs/weft/pkg/prompts"
	"github.com/weft-labs/weft/pkg/types"
	"github.com/weft-labs/weft/pkg/vars"
)

// UserAnswersStage is the synthetic stage name clarifying-question answers
// are recorded under, referenced as $STAGE_user_answers.*.
const UserAnswersStage = "user_answers"

// ExecuteOptions carries strategy-level overrides into a pipeline run.
type ExecuteOptions struct {
	// DryRun forces the tool router into simulate mode for every stage.
	DryRun bool

	// Precompleted injects outputs of stages already computed elsewhere
	// (dry-run cache); those stages are recorded as done, not executed.
	Precompleted map[string]map[string]interface{}

	// PreResolvedInputs overrides per-stage input resolution.
	PreResolvedInputs map[string]map[string]interface{}

	// PreloadedPrompts and PreloadedAgent skip loader round-trips.
	PreloadedPrompts map[string]*types.PromptDefinition
	PreloadedAgent   *types.AgentDefinition

	// MockInputs substitutes stage inputs wholesale (isolation runs).
	MockInputs map[string]map[string]interface{}

	// RelaxRequired downgrades every stage to optional.
	RelaxRequired bool
}

// Executor drives a full pipeline: validation, scheduling, group execution,
// failure policy, clarifying questions, and the pending-writes flush.
type Executor struct {
	svc    *Services
	stages *StageExecutor
	logger *zap.Logger
}

// NewExecutor creates a pipeline executor over a service record.
func NewExecutor(svc *Services) *Executor {
	logger := svc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{svc: svc, stages: NewStageExecutor(svc), logger: logger}
}

// Execute runs the pipeline to completion and returns the aggregate result.
func (x *Executor) Execute(ctx context.Context, stageList []types.PipelineStage, ec *ExecutionContext, opts ExecuteOptions) *types.CommandResult {
	start := time.Now()
	result := func(success bool, errMsg string) *types.CommandResult {
		completed := ec.CompletedStages()
		return &types.CommandResult{
			Success:    success,
			Error:      errMsg,
			Outputs:    mergeOutputs(completed),
			Stages:     completed,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	// Per-command tool state starts clean.
	x.svc.Router.ResetRunState()
	x.svc.Router.SetSession(ec.Session.ID)
	dryRun := opts.DryRun || ec.IsDryRun()
	x.svc.Router.SetDryRun(dryRun)

	if msgs := Validate(stageList); len(msgs) > 0 {
		err := &types.ValidationError{Messages: msgs}
		return result(false, err.Error())
	}

	// Inject pre-computed stages as completed.
	for _, stage := range stageList {
		if outputs, ok := opts.Precompleted[stage.Stage]; ok {
			ec.RecordStageCompletion(types.StageOutput{
				Stage:    stage.Stage,
				Prompt:   stage.Prompt,
				Success:  true,
				Outputs:  outputs,
				Metadata: map[string]interface{}{"precomputed": true},
			})
		}
	}

	preResolved := x.preResolveStaticInputs(stageList, ec, opts.PreResolvedInputs)

	groups := Schedule(stageList)
	var pipelineErr string
	stopped := false

groupLoop:
	for _, group := range groups {
		eligible := make([]types.PipelineStage, 0, len(group.Stages))
		for _, stage := range group.Stages {
			if ec.HasCompleted(stage.Stage) {
				continue
			}
			run, err := x.conditionalAllows(stage, ec)
			if err != nil {
				x.logger.Warn("conditional resolution failed, skipping stage",
					zap.String("stage", stage.Stage), zap.Error(err))
				continue
			}
			if !run {
				x.logger.Info("stage skipped by conditional", zap.String("stage", stage.Stage))
				continue
			}
			eligible = append(eligible, stage)
		}
		if len(eligible) == 0 {
			continue
		}

		var outs []types.StageOutput
		if group.Parallel && len(eligible) > 1 {
			outs = x.runParallel(ctx, eligible, ec, opts, preResolved)
		} else {
			outs, pipelineErr = x.runSequential(ctx, eligible, ec, opts, preResolved)
		}

		for i := range outs {
			out := &outs[i]
			if !out.Success && x.stageRequired(stageByName(eligible, out.Stage), opts) && pipelineErr == "" {
				pipelineErr = out.Error
			}
			if out.StopRequested() {
				stopped = true
			}
		}
		if pipelineErr != "" {
			break groupLoop
		}
		if stopped {
			x.logger.Info("pipeline stopped early by stage request")
			break groupLoop
		}
	}

	x.flushWrites(ctx)

	success := pipelineErr == ""
	for _, out := range ec.CompletedStages() {
		stage := stageByName(stageList, out.Stage)
		if stage != nil && x.stageRequired(stage, opts) && !out.Success {
			success = false
		}
	}
	return result(success, pipelineErr)
}

// runSequential executes stages in declared order, recording each completion
// immediately so later stages can resolve $STAGE_* references. Aborts on the
// first failed required stage.
func (x *Executor) runSequential(ctx context.Context, stages []types.PipelineStage, ec *ExecutionContext, opts ExecuteOptions, preResolved map[string]map[string]interface{}) ([]types.StageOutput, string) {
	var outs []types.StageOutput
	for i, stage := range stages {
		out := x.stages.ExecuteStage(ctx, stage, ec, i, x.stageOptions(stage, opts, preResolved))
		ec.RecordStageCompletion(out)
		outs = append(outs, out)

		x.handleClarifyingQuestions(ctx, ec, &out)

		if !out.Success && x.stageRequired(&stage, opts) {
			return outs, out.Error
		}
		if out.StopRequested() {
			return outs, ""
		}
	}
	return outs, ""
}

// runParallel executes a group concurrently, waits for every stage, then
// records completions in arrival order.
func (x *Executor) runParallel(ctx context.Context, stages []types.PipelineStage, ec *ExecutionContext, opts ExecuteOptions, preResolved map[string]map[string]interface{}) []types.StageOutput {
	var mu sync.Mutex
	var arrived []types.StageOutput

	g, gctx := errgroup.WithContext(ctx)
	for i, stage := range stages {
		i, stage := i, stage
		g.Go(func() error {
			out := x.stages.ExecuteStage(gctx, stage, ec, i, x.stageOptions(stage, opts, preResolved))
			mu.Lock()
			arrived = append(arrived, out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range arrived {
		ec.RecordStageCompletion(out)
	}
	for i := range arrived {
		x.handleClarifyingQuestions(ctx, ec, &arrived[i])
	}
	return arrived
}

func (x *Executor) stageOptions(stage types.PipelineStage, opts ExecuteOptions, preResolved map[string]map[string]interface{}) StageOptions {
	so := StageOptions{
		DryRun:         opts.DryRun,
		PreloadedAgent: opts.PreloadedAgent,
	}
	if p, ok := opts.PreloadedPrompts[stage.Prompt]; ok {
		so.PreloadedPrompt = p
	}
	if mock, ok := opts.MockInputs[stage.Stage]; ok {
		so.MockInputs = mock
	}
	if inputs, ok := preResolved[stage.Stage]; ok {
		so.PreResolvedInputs = inputs
	}
	return so
}

func (x *Executor) stageRequired(stage *types.PipelineStage, opts ExecuteOptions) bool {
	if stage == nil {
		return false
	}
	if opts.RelaxRequired {
		return false
	}
	return stage.IsRequired()
}

// preResolveStaticInputs resolves inputs for stages with no $STAGE_*
// references up front, pre-reading file inputs. Failures demote the stage to
// on-demand resolution.
func (x *Executor) preResolveStaticInputs(stages []types.PipelineStage, ec *ExecutionContext, seed map[string]map[string]interface{}) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(stages))
	for k, v := range seed {
		out[k] = v
	}
	for _, stage := range stages {
		if _, ok := out[stage.Stage]; ok {
			continue
		}
		if len(stage.Inputs) == 0 || hasStageRefs(stage.Inputs) {
			continue
		}
		resolved, err := ec.Resolver.ResolveInputs(stage.Inputs)
		if err != nil {
			x.logger.Debug("static pre-resolution failed, deferring",
				zap.String("stage", stage.Stage), zap.Error(err))
			continue
		}
		out[stage.Stage] = prompts.EnrichFileInputs(resolved)
	}
	return out
}

// conditionalAllows resolves a stage's conditional and evaluates truthiness.
// "true"/"false" strings map to booleans.
func (x *Executor) conditionalAllows(stage types.PipelineStage, ec *ExecutionContext) (bool, error) {
	if strings.TrimSpace(stage.Conditional) == "" {
		return true, nil
	}
	v, err := ec.Resolver.Resolve(stage.Conditional)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		return s != "" && !strings.EqualFold(s, "false") && s != "0" &&
			!strings.EqualFold(s, "null") && !strings.EqualFold(s, vars.NotSpecified)
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

// handleClarifyingQuestions prompts the user for answers when an interactive
// run's stage emitted clarifying_questions, and publishes the answers under
// the synthetic user_answers stage.
func (x *Executor) handleClarifyingQuestions(ctx context.Context, ec *ExecutionContext, out *types.StageOutput) {
	if !ec.Interactive || x.svc.Questions == nil || !out.Success {
		return
	}
	raw, ok := out.Outputs["clarifying_questions"]
	if !ok {
		return
	}
	questions := toStringSlice(raw)
	if len(questions) == 0 {
		return
	}

	answers, err := x.svc.Questions.AnswerQuestions(ctx, out.Stage, questions)
	if err != nil {
		x.logger.Warn("clarifying questions unanswered",
			zap.String("stage", out.Stage), zap.Error(err))
		return
	}
	if len(answers) > 0 {
		ec.Resolver.Context().AddStageOutputs(UserAnswersStage, answers)
	}
}

func (x *Executor) flushWrites(ctx context.Context) {
	committed, err := x.svc.Router.FlushPendingWrites(ctx, x.svc.Approver)
	if err != nil {
		x.logger.Warn("pending-writes flush failed", zap.Error(err))
		return
	}
	if committed > 0 {
		x.logger.Info("pending writes committed", zap.Int("count", committed))
	}
}

// hasStageRefs reports whether any string in value references $STAGE_*.
func hasStageRefs(value interface{}) bool {
	switch t := value.(type) {
	case string:
		for _, ref := range vars.ExtractVariables(t) {
			if ref.Scope == "STAGE" {
				return true
			}
		}
		return false
	case map[string]interface{}:
		for _, v := range t {
			if hasStageRefs(v) {
				return true
			}
		}
		return false
	case []interface{}:
		for _, v := range t {
			if hasStageRefs(v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// mergeOutputs shallow-merges successful stage outputs in completion order.
func mergeOutputs(stages []types.StageOutput) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, s := range stages {
		if !s.Success {
			continue
		}
		for k, v := range s.Outputs {
			merged[k] = v
		}
	}
	return merged
}

func toStringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}

func stageByName(stages []types.PipelineStage, name string) *types.PipelineStage {
	for i := range stages {
		if stages[i].Stage == name {
			return &stages[i]
		}
	}
	return nil
}
