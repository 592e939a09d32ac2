// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pipeline

import "github.com/weft-labs/weft/pkg/types"

// Group is one scheduling unit: a singleton sequential stage or a maximal
// run of adjacent parallel stages.
type Group struct {
	Parallel bool
	Stages   []types.PipelineStage
}

// Schedule folds an ordered stage list into groups in a single left-to-right
// pass. Adjacent parallel stages coalesce; every sequential stage closes any
// open group and forms its own.
func Schedule(stages []types.PipelineStage) []Group {
	var groups []Group
	var open *Group

	for _, s := range stages {
		if s.Parallel {
			if open == nil {
				groups = append(groups, Group{Parallel: true})
				open = &groups[len(groups)-1]
			}
			open.Stages = append(open.Stages, s)
			continue
		}
		open = nil
		groups = append(groups, Group{Stages: []types.PipelineStage{s}})
	}
	return groups
}
