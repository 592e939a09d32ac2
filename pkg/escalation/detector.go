// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package escalation locates and parses the _escalation signal an LLM embeds
// in a response to request human review.
package escalation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/weft-labs/weft/pkg/outputs"
	"github.com/weft-labs/weft/pkg/types"
)

// DefaultConfidenceThreshold triggers escalation when the model reports
// confidence below this value.
const DefaultConfidenceThreshold = 75

var fencedEscalation = regexp.MustCompile("(?s)```(?:json)?[ \t]*\n?(\\{[^`]*\"_escalation\"[^`]*\\})\n?[ \t]*```")

// Detector finds escalation signals in LLM responses.
type Detector struct {
	threshold int
}

// NewDetector creates a detector with the given confidence threshold;
// non-positive values select the default.
func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Detector{threshold: threshold}
}

// Detect locates the _escalation block, parses and normalizes it, and
// returns the content with the block removed. Malformed signals are
// non-fatal: the original content comes back with a nil signal and the parse
// error.
func (d *Detector) Detect(content string) (cleaned string, signal *types.EscalationSignal, err error) {
	raw, block := locateSignal(content)
	if raw == "" {
		return content, nil, nil
	}

	var envelope struct {
		Escalation *types.EscalationSignal `json:"_escalation"`
	}
	if jsonErr := json.Unmarshal([]byte(raw), &envelope); jsonErr != nil || envelope.Escalation == nil {
		if jsonErr == nil {
			return content, nil, nil
		}
		return content, nil, jsonErr
	}

	sig := envelope.Escalation
	normalize(sig)
	cleaned = strings.TrimSpace(strings.Replace(content, block, "", 1))
	return cleaned, sig, nil
}

// Required reports whether the signal gates on human approval: explicit
// request, low confidence, elevated risk, or any triggered criterion.
func (d *Detector) Required(sig *types.EscalationSignal) bool {
	if sig == nil {
		return false
	}
	if sig.RequiresEscalation {
		return true
	}
	if sig.Confidence < d.threshold {
		return true
	}
	if sig.RiskLevel == types.RiskHigh || sig.RiskLevel == types.RiskCritical {
		return true
	}
	return len(sig.TriggeredCriteria) > 0
}

// locateSignal returns the raw JSON of the signal envelope and the full text
// block to strip from the content.
func locateSignal(content string) (raw, block string) {
	if m := fencedEscalation.FindStringSubmatch(content); m != nil {
		return m[1], m[0]
	}
	// Trailing raw object form.
	idx := strings.LastIndex(content, `{"_escalation"`)
	if idx < 0 {
		idx = strings.LastIndex(content, `{ "_escalation"`)
	}
	if idx < 0 {
		return "", ""
	}
	candidate := strings.TrimSpace(content[idx:])
	normalized := outputs.NormalizeJSON(candidate)
	if normalized == "" || !strings.HasPrefix(normalized, "{") {
		return "", ""
	}
	return normalized, content[idx:]
}

func normalize(sig *types.EscalationSignal) {
	if sig.Confidence == 0 {
		sig.Confidence = 50
	}
	if sig.Confidence < 0 {
		sig.Confidence = 0
	}
	if sig.Confidence > 100 {
		sig.Confidence = 100
	}
	switch sig.RiskLevel {
	case types.RiskLow, types.RiskMedium, types.RiskHigh, types.RiskCritical:
	default:
		sig.RiskLevel = types.RiskMedium
	}
	if sig.TriggeredCriteria == nil {
		sig.TriggeredCriteria = []string{}
	}
}
