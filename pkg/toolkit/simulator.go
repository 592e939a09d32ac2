// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolkit

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// PlannedOperation records one side-effecting tool call intercepted during a
// dry run.
type PlannedOperation struct {
	Tool    string                 `json:"tool"`
	Path    string                 `json:"path,omitempty"`
	Summary string                 `json:"summary"`
	Diff    string                 `json:"diff,omitempty"`
	Args    map[string]interface{} `json:"args,omitempty"`
}

// Simulator intercepts mutating tools in dry-run mode: it records what would
// have happened and fabricates a success result so the model keeps going.
type Simulator struct {
	mu  sync.Mutex
	ops []PlannedOperation
}

// NewSimulator creates an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Simulate records the intended operation and returns a success-looking
// result. File writes get a computed diff against the current content.
func (s *Simulator) Simulate(toolName string, args map[string]interface{}) *Result {
	op := PlannedOperation{Tool: toolName, Args: args}
	path, _ := args["path"].(string)
	op.Path = path

	switch toolName {
	case "write":
		content, _ := args["content"].(string)
		op.Summary = fmt.Sprintf("would write %d bytes to %s", len(content), path)
		op.Diff = FileDiff(path, content)
	case "search_replace":
		op.Summary = fmt.Sprintf("would edit %s", path)
		if old, new_, ok := plannedReplacement(path, args); ok {
			op.Diff = textDiff(old, new_)
		}
	case "delete_file":
		op.Summary = fmt.Sprintf("would delete %s", path)
	case "run_terminal_cmd":
		cmd, _ := args["command"].(string)
		op.Summary = fmt.Sprintf("would run: %s", cmd)
	default:
		op.Summary = fmt.Sprintf("would invoke %s", toolName)
	}

	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()

	return &Result{
		Success:  true,
		Data:     "[dry-run] " + op.Summary,
		Metadata: map[string]interface{}{"simulated": true},
	}
}

// Operations returns the planned operations recorded so far.
func (s *Simulator) Operations() []PlannedOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlannedOperation(nil), s.ops...)
}

// Reset clears the recorded operations.
func (s *Simulator) Reset() {
	s.mu.Lock()
	s.ops = nil
	s.mu.Unlock()
}

// FileDiff renders the change writing content to path would make, against
// the file's current content (empty for a new file).
func FileDiff(path, content string) string {
	old := ""
	if data, err := os.ReadFile(path); err == nil {
		old = string(data)
	}
	return textDiff(old, content)
}

func textDiff(old, new_ string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new_, false)
	dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}

// plannedReplacement applies a search_replace edit in memory to produce the
// before/after pair for a diff.
func plannedReplacement(path string, args map[string]interface{}) (old, new_ string, ok bool) {
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)
	data, err := os.ReadFile(path)
	if err != nil || oldStr == "" {
		return "", "", false
	}
	before := string(data)
	if !strings.Contains(before, oldStr) {
		return "", "", false
	}
	return before, strings.Replace(before, oldStr, newStr, 1), true
}
