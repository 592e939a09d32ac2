// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package pipeline schedules and executes a command's stages: validation,
// grouping, variable pre-resolution, the per-stage tool-use loop, failure
// policy, and strategy selection.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/weft-labs/weft/pkg/types"
)

// Validate enforces the structural invariants of a pipeline and returns every
// violation. A pure function of its input; an empty result means valid.
func Validate(stages []types.PipelineStage) []string {
	var msgs []string

	if len(stages) == 0 {
		return []string{"pipeline must contain at least one stage"}
	}

	seen := make(map[string]int, len(stages))
	for i, s := range stages {
		where := fmt.Sprintf("stage %d", i+1)

		if strings.TrimSpace(s.Stage) == "" {
			msgs = append(msgs, where+": missing stage name")
		} else {
			where = fmt.Sprintf("stage %q", s.Stage)
			if prev, dup := seen[s.Stage]; dup {
				msgs = append(msgs, fmt.Sprintf("%s: duplicate name (also stage %d)", where, prev+1))
			}
			seen[s.Stage] = i
		}

		if strings.TrimSpace(s.Prompt) == "" {
			msgs = append(msgs, where+": missing prompt")
		} else if !strings.Contains(s.Prompt, ".") {
			msgs = append(msgs, fmt.Sprintf("%s: prompt %q must be of the form category.name", where, s.Prompt))
		}
	}
	return msgs
}
