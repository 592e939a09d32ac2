// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weft-labs/weft/pkg/cache"
	"github.com/weft-labs/weft/pkg/escalation"
	"github.com/weft-labs/weft/pkg/toolkit"
	"github.com/weft-labs/weft/pkg/types"
)

// stubLoader serves synthetic documents; prompt bodies embed their id so the
// scripted provider can tell stages apart by system message.
type stubLoader struct {
	escalationCriteria []string
}

func (l *stubLoader) LoadCommand(name string) (*types.CommandDefinition, error) {
	return nil, errors.New("not loaded in tests")
}

func (l *stubLoader) LoadAgent(role string) (*types.AgentDefinition, error) {
	return &types.AgentDefinition{
		Name:               role,
		Content:            "You are the " + role + " agent.",
		EscalationCriteria: l.escalationCriteria,
	}, nil
}

func (l *stubLoader) LoadPrompt(id string) (*types.PromptDefinition, error) {
	category, name, ok := strings.Cut(id, ".")
	if !ok {
		return nil, fmt.Errorf("malformed prompt id %q", id)
	}
	return &types.PromptDefinition{
		Category: category,
		Name:     name,
		Content:  "Prompt body for " + id + ".",
	}, nil
}

func (l *stubLoader) LoadGuidance() (string, error) { return "", nil }

func (l *stubLoader) LoadKnowledge(files []string) (map[string]string, error) { return nil, nil }

// scriptedProvider answers completions via a response function and records
// every request it sees.
type scriptedProvider struct {
	mu      sync.Mutex
	respond func(req *types.CompletionRequest) (*types.LLMResponse, error)
	reqs    []*types.CompletionRequest
}

func (p *scriptedProvider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.LLMResponse, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	return p.respond(req)
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) requests() []*types.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.CompletionRequest(nil), p.reqs...)
}

// promptID extracts the stage's prompt id from a request's system message.
func promptID(req *types.CompletionRequest) string {
	sys := req.Messages[0].Content
	const marker = "Prompt body for "
	i := strings.Index(sys, marker)
	if i < 0 {
		return ""
	}
	rest := sys[i+len(marker):]
	end := strings.IndexByte(rest, '.')
	mid := strings.IndexByte(rest[end+1:], '.')
	return rest[:end+1+mid]
}

func jsonReply(body string) (*types.LLMResponse, error) {
	return &types.LLMResponse{
		Content:      "```json\n" + body + "\n```",
		FinishReason: "stop",
		Usage:        types.Usage{PromptTokens: 10, CompletionTokens: 5},
	}, nil
}

func newTestServices(t *testing.T, loader *stubLoader) *Services {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := toolkit.NewRegistry()
	guards := toolkit.DefaultGuardConfig(filepath.Join(t.TempDir(), ".orchestrator-state"))
	return &Services{
		Loader:     loader,
		Router:     toolkit.NewRouter(registry, nil, nil, guards, logger),
		StageCache: cache.NewStageCache(logger),
		DryRuns:    cache.NewDryRunCache(logger),
		Detector:   escalation.NewDetector(0),
		Logger:     logger,
	}
}

func newTestContext(provider types.Provider, flags map[string]interface{}, args ...interface{}) *ExecutionContext {
	def := &types.CommandDefinition{Name: "review", AgentRole: "reviewer", Model: "test-model"}
	return NewExecutionContext(def, args, flags, provider, types.SessionInfo{ID: "sess-1"})
}

func TestSequentialStagesSeeEarlierOutputs(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			switch promptID(req) {
			case "work.scan":
				return jsonReply(`{"verdict": "clean"}`)
			case "work.report":
				return jsonReply(`{"summary": "all good"}`)
			default:
				return nil, fmt.Errorf("unexpected prompt in %q", req.Messages[0].Content)
			}
		},
	}
	svc := newTestServices(t, &stubLoader{})
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "scan", Prompt: "work.scan", Outputs: []string{"verdict"}},
		{Stage: "report", Prompt: "work.report",
			Inputs:  map[string]interface{}{"finding": "$STAGE_scan.verdict"},
			Outputs: []string{"summary"}},
	}, ec, ExecuteOptions{})

	require.True(t, result.Success, result.Error)
	require.Len(t, result.Stages, 2)
	assert.Equal(t, "clean", result.Outputs["verdict"])
	assert.Equal(t, "all good", result.Outputs["summary"])

	// The second stage's user message carries the first stage's output.
	var reportReq *types.CompletionRequest
	for _, req := range provider.requests() {
		if promptID(req) == "work.report" {
			reportReq = req
		}
	}
	require.NotNil(t, reportReq)
	assert.Contains(t, reportReq.Messages[1].Content, "finding: clean")
}

func TestParallelSiblingOutputIsInvisible(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			return jsonReply(`{"verdict": "ok"}`)
		},
	}
	svc := newTestServices(t, &stubLoader{})
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "left", Prompt: "work.left", Parallel: true, Outputs: []string{"verdict"}},
		{Stage: "right", Prompt: "work.right", Parallel: true,
			Inputs: map[string]interface{}{"peer": "$STAGE_left.verdict"}},
	}, ec, ExecuteOptions{})

	assert.True(t, result.Success, result.Error)
	require.Len(t, result.Stages, 2)

	// The sibling reference resolves to nil: right never observes left's
	// output even if left happened to finish first.
	var rightReq *types.CompletionRequest
	for _, req := range provider.requests() {
		if promptID(req) == "work.right" {
			rightReq = req
		}
	}
	require.NotNil(t, rightReq)
	assert.Contains(t, rightReq.Messages[1].Content, "peer:")
	assert.NotContains(t, rightReq.Messages[1].Content, "ok")
}

func TestConditionalFalseSkipsStage(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			switch promptID(req) {
			case "work.scan":
				return jsonReply(`{"proceed": "false"}`)
			default:
				return nil, errors.New("gated stage must not run")
			}
		},
	}
	svc := newTestServices(t, &stubLoader{})
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "scan", Prompt: "work.scan", Outputs: []string{"proceed"}},
		{Stage: "publish", Prompt: "work.publish", Conditional: "$STAGE_scan.proceed"},
	}, ec, ExecuteOptions{})

	assert.True(t, result.Success, result.Error)
	assert.Len(t, result.Stages, 1)
	assert.Equal(t, "scan", result.Stages[0].Stage)
}

func TestRequiredStageFailureAbortsPipeline(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			if promptID(req) == "work.scan" {
				return nil, errors.New("model unavailable")
			}
			return jsonReply(`{}`)
		},
	}
	svc := newTestServices(t, &stubLoader{})
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "scan", Prompt: "work.scan"},
		{Stage: "report", Prompt: "work.report"},
	}, ec, ExecuteOptions{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "model unavailable")
	assert.Len(t, result.Stages, 1)
}

func TestOptionalStageFailureContinues(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			if promptID(req) == "work.lint" {
				return nil, errors.New("lint backend down")
			}
			return jsonReply(`{"summary": "shipped"}`)
		},
	}
	svc := newTestServices(t, &stubLoader{})
	ec := newTestContext(provider, nil)
	optional := false

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "lint", Prompt: "work.lint", Required: &optional},
		{Stage: "report", Prompt: "work.report", Outputs: []string{"summary"}},
	}, ec, ExecuteOptions{})

	assert.True(t, result.Success, result.Error)
	require.Len(t, result.Stages, 2)
	assert.False(t, result.Stages[0].Success)
	assert.Equal(t, "shipped", result.Outputs["summary"])
}

func TestGuidedCompletionStopsPipeline(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			if promptID(req) == "work.scan" {
				return &types.LLMResponse{
					Content:          "Stopping here.",
					FinishReason:     "stop",
					GuidedCompletion: true,
				}, nil
			}
			return nil, errors.New("later stages must not run after a guided stop")
		},
	}
	svc := newTestServices(t, &stubLoader{})
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "scan", Prompt: "work.scan"},
		{Stage: "report", Prompt: "work.report"},
	}, ec, ExecuteOptions{})

	assert.True(t, result.Success, result.Error)
	require.Len(t, result.Stages, 1)
	assert.Equal(t, "Stopping here.", result.Stages[0].Outputs["result"])
}

func TestEscalationWithoutHandlerAborts(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			return &types.LLMResponse{
				Content: "About to delete the production schema.\n" +
					"```json\n{\"_escalation\": {\"requires_escalation\": true, \"confidence\": 95, " +
					"\"risk_level\": \"critical\", \"reasoning\": \"destructive migration\"}}\n```",
				FinishReason: "stop",
			}, nil
		},
	}
	svc := newTestServices(t, &stubLoader{escalationCriteria: []string{"destructive operations"}})
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "migrate", Prompt: "work.migrate"},
	}, ec, ExecuteOptions{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "escalation aborted")
	require.Len(t, result.Stages, 1)
	assert.True(t, result.Stages[0].StopRequested())
}

type proceedHandler struct{}

func (proceedHandler) HandleEscalation(ctx context.Context, stage string, signal *types.EscalationSignal) (EscalationDecision, string, error) {
	return DecisionProceed, "", nil
}

func TestEscalationProceedContinuesStage(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			return &types.LLMResponse{
				Content: "```json\n{\"verdict\": \"risky but fine\"}\n```\n" +
					"```json\n{\"_escalation\": {\"requires_escalation\": true, \"confidence\": 40}}\n```",
				FinishReason: "stop",
			}, nil
		},
	}
	svc := newTestServices(t, &stubLoader{escalationCriteria: []string{"low confidence"}})
	svc.Escalations = proceedHandler{}
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "assess", Prompt: "work.assess", Outputs: []string{"verdict"}},
	}, ec, ExecuteOptions{})

	assert.True(t, result.Success, result.Error)
	assert.Equal(t, "risky but fine", result.Outputs["verdict"])
}

type cannedAnswers struct {
	answers map[string]interface{}
}

func (c cannedAnswers) AnswerQuestions(ctx context.Context, stage string, questions []string) (map[string]interface{}, error) {
	return c.answers, nil
}

func TestClarifyingQuestionsFeedLaterStages(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			switch promptID(req) {
			case "work.ask":
				return jsonReply(`{"clarifying_questions": ["Which environment?"]}`)
			case "work.deploy":
				return jsonReply(`{"status": "deployed"}`)
			default:
				return nil, errors.New("unexpected prompt")
			}
		},
	}
	svc := newTestServices(t, &stubLoader{})
	svc.Questions = cannedAnswers{answers: map[string]interface{}{"environment": "staging"}}
	ec := newTestContext(provider, nil)
	ec.Interactive = true

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "ask", Prompt: "work.ask", Outputs: []string{"clarifying_questions"}},
		{Stage: "deploy", Prompt: "work.deploy",
			Inputs:  map[string]interface{}{"target": "$STAGE_user_answers.environment"},
			Outputs: []string{"status"}},
	}, ec, ExecuteOptions{})

	require.True(t, result.Success, result.Error)

	var deployReq *types.CompletionRequest
	for _, req := range provider.requests() {
		if promptID(req) == "work.deploy" {
			deployReq = req
		}
	}
	require.NotNil(t, deployReq)
	assert.Contains(t, deployReq.Messages[1].Content, "target: staging")
}

func TestValidationFailureShortCircuits(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			return nil, errors.New("provider must not be called")
		},
	}
	svc := newTestServices(t, &stubLoader{})
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "scan", Prompt: "noperiod"},
	}, ec, ExecuteOptions{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "pipeline validation failed")
	assert.Empty(t, provider.requests())
}

func TestPrecompletedStagesAreNotExecuted(t *testing.T) {
	provider := &scriptedProvider{
		respond: func(req *types.CompletionRequest) (*types.LLMResponse, error) {
			if promptID(req) == "work.scan" {
				return nil, errors.New("precompleted stage must not run")
			}
			return jsonReply(`{"summary": "done"}`)
		},
	}
	svc := newTestServices(t, &stubLoader{})
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "scan", Prompt: "work.scan", Outputs: []string{"verdict"}},
		{Stage: "report", Prompt: "work.report",
			Inputs:  map[string]interface{}{"finding": "$STAGE_scan.verdict"},
			Outputs: []string{"summary"}},
	}, ec, ExecuteOptions{
		Precompleted: map[string]map[string]interface{}{
			"scan": {"verdict": "cached-clean"},
		},
	})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "cached-clean", result.Outputs["verdict"])
	assert.Equal(t, "done", result.Outputs["summary"])
	for _, req := range provider.requests() {
		assert.NotEqual(t, "work.scan", promptID(req))
	}
}

func TestToolLoopFeedsResultsBack(t *testing.T) {
	registryCalls := 0
	provider := &scriptedProvider{}
	provider.respond = func(req *types.CompletionRequest) (*types.LLMResponse, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == "tool" {
			assert.Contains(t, last.Content, "pong")
			return jsonReply(`{"verdict": "done"}`)
		}
		return &types.LLMResponse{
			ToolCalls: []types.ToolCall{
				{ID: "call-1", Name: "ping", Arguments: map[string]interface{}{}},
			},
			FinishReason: "tool_calls",
		}, nil
	}

	svc := newTestServices(t, &stubLoader{})
	svc.Router = toolkit.NewRouter(func() *toolkit.Registry {
		r := toolkit.NewRegistry()
		r.Register(&pingTool{calls: &registryCalls})
		return r
	}(), nil, nil, toolkit.DefaultGuardConfig(filepath.Join(t.TempDir(), ".orchestrator-state")), zaptest.NewLogger(t))
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "probe", Prompt: "work.probe", Outputs: []string{"verdict"}},
	}, ec, ExecuteOptions{})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 1, registryCalls)
	assert.Equal(t, "done", result.Outputs["verdict"])
}

func TestToolIterationBudgetForcesFinalCompletion(t *testing.T) {
	toolCalls := 0
	provider := &scriptedProvider{}
	provider.respond = func(req *types.CompletionRequest) (*types.LLMResponse, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == "user" && strings.Contains(last.Content, "Tool budget exhausted") {
			return jsonReply(`{"verdict": "forced"}`)
		}
		return &types.LLMResponse{
			ToolCalls: []types.ToolCall{
				{ID: "call-1", Name: "ping", Arguments: map[string]interface{}{}},
			},
			FinishReason: "tool_calls",
		}, nil
	}

	svc := newTestServices(t, &stubLoader{})
	svc.MaxToolIterations = 1
	svc.Router = toolkit.NewRouter(func() *toolkit.Registry {
		r := toolkit.NewRegistry()
		r.Register(&pingTool{calls: &toolCalls})
		return r
	}(), nil, nil, toolkit.DefaultGuardConfig(filepath.Join(t.TempDir(), ".orchestrator-state")), zaptest.NewLogger(t))
	ec := newTestContext(provider, nil)

	result := NewExecutor(svc).Execute(context.Background(), []types.PipelineStage{
		{Stage: "probe", Prompt: "work.probe", Outputs: []string{"verdict"}},
	}, ec, ExecuteOptions{})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 1, toolCalls, "budget of one allows a single tool round")
	assert.Len(t, provider.requests(), 2, "one tool-looped completion plus the forced final")
	assert.Equal(t, "forced", result.Outputs["verdict"])
}

type pingTool struct {
	calls *int
}

func (p *pingTool) Name() string                       { return "ping" }
func (p *pingTool) Description() string                { return "replies pong" }
func (p *pingTool) ReadOnly() bool                     { return true }
func (p *pingTool) InputSchema() *toolkit.JSONSchema   { return toolkit.NewObjectSchema("ping", nil, nil) }
func (p *pingTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	*p.calls++
	return &toolkit.Result{Success: true, Data: "pong"}, nil
}
