// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/weft-labs/weft/pkg/cache"
	"github.com/weft-labs/weft/pkg/escalation"
	"github.com/weft-labs/weft/pkg/prompts"
	"github.com/weft-labs/weft/pkg/toolkit"
	"github.com/weft-labs/weft/pkg/types"
)

// EscalationDecision is the human's answer to an escalation signal.
type EscalationDecision string

const (
	// DecisionAbort stops the pipeline cleanly.
	DecisionAbort EscalationDecision = "abort"
	// DecisionProceed continues as if no signal fired.
	DecisionProceed EscalationDecision = "proceed"
	// DecisionModify continues with user guidance recorded in metadata.
	DecisionModify EscalationDecision = "modify"
)

// EscalationHandler surfaces an escalation signal to a human and returns the
// decision plus optional guidance.
type EscalationHandler interface {
	HandleEscalation(ctx context.Context, stage string, signal *types.EscalationSignal) (EscalationDecision, string, error)
}

// QuestionAnswerer collects answers to clarifying questions a stage emitted.
type QuestionAnswerer interface {
	AnswerQuestions(ctx context.Context, stage string, questions []string) (map[string]interface{}, error)
}

// StageValidator checks a stage's parsed outputs after execution.
type StageValidator interface {
	// ValidateStage returns whether the outputs pass, whether a failure is
	// critical (stops the pipeline), and a message for the failure case.
	ValidateStage(stage string, outputs map[string]interface{}) (ok bool, critical bool, message string)
}

// Transcript persists run messages; nil disables recording.
type Transcript interface {
	Append(ctx context.Context, sessionID, stage, role, content string) error
}

// Services is the flat dependency record handed to the stage and pipeline
// executors. Collaborators that may be absent are documented as nil-safe.
type Services struct {
	Loader     prompts.DocumentLoader
	Router     *toolkit.Router
	StageCache *cache.StageCache
	DryRuns    *cache.DryRunCache
	Detector   *escalation.Detector

	// Escalations may be nil; a nil handler aborts on every required
	// escalation (the conservative default).
	Escalations EscalationHandler

	// Questions may be nil; clarifying questions are then skipped.
	Questions QuestionAnswerer

	// Approver may be nil; queued writes are then discarded at flush.
	Approver toolkit.WriteApprover

	// Transcript may be nil.
	Transcript Transcript

	// Validators keys by stage name; absent stages are not validated.
	Validators map[string]StageValidator

	// MaxToolIterations bounds the per-stage tool-use loop; zero or
	// negative selects the built-in default.
	MaxToolIterations int

	Logger *zap.Logger
}
