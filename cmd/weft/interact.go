// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/weft-labs/weft/pkg/pipeline"
	"github.com/weft-labs/weft/pkg/types"
)

// consoleInteract answers escalations, clarifying questions, and write
// approvals at the terminal.
type consoleInteract struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsoleInteract(in io.Reader, out io.Writer) *consoleInteract {
	return &consoleInteract{in: bufio.NewReader(in), out: out}
}

func (c *consoleInteract) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *consoleInteract) HandleEscalation(ctx context.Context, stage string, signal *types.EscalationSignal) (pipeline.EscalationDecision, string, error) {
	fmt.Fprintf(c.out, "\nStage %q escalated (risk: %s, confidence: %d)\n", stage, signal.RiskLevel, signal.Confidence)
	if signal.Reasoning != "" {
		fmt.Fprintf(c.out, "Reasoning: %s\n", signal.Reasoning)
	}
	if signal.ProposedAction != "" {
		fmt.Fprintf(c.out, "Proposed: %s\n", signal.ProposedAction)
	}
	for _, crit := range signal.TriggeredCriteria {
		fmt.Fprintf(c.out, "  - %s\n", crit)
	}

	fmt.Fprint(c.out, "[a]bort / [p]roceed / [m]odify with guidance? ")
	answer, err := c.readLine()
	if err != nil {
		return pipeline.DecisionAbort, "", err
	}
	switch strings.ToLower(answer) {
	case "p", "proceed":
		return pipeline.DecisionProceed, "", nil
	case "m", "modify":
		fmt.Fprint(c.out, "Guidance: ")
		guidance, err := c.readLine()
		if err != nil {
			return pipeline.DecisionAbort, "", err
		}
		return pipeline.DecisionModify, guidance, nil
	default:
		return pipeline.DecisionAbort, "", nil
	}
}

func (c *consoleInteract) AnswerQuestions(ctx context.Context, stage string, questions []string) (map[string]interface{}, error) {
	fmt.Fprintf(c.out, "\nStage %q needs clarification:\n", stage)
	answers := make(map[string]interface{}, len(questions))
	for i, q := range questions {
		fmt.Fprintf(c.out, "%d. %s\n> ", i+1, q)
		answer, err := c.readLine()
		if err != nil {
			return answers, err
		}
		answers[fmt.Sprintf("answer_%d", i+1)] = answer
	}
	answers["questions"] = questions
	return answers, nil
}

func (c *consoleInteract) ApproveWrite(ctx context.Context, path, diff string) (bool, error) {
	fmt.Fprintf(c.out, "\nQueued write to %s:\n%s\nApply? [y/N] ", path, diff)
	answer, err := c.readLine()
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}
