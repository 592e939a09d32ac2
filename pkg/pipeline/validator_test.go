// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weft-labs/weft/pkg/types"
)

func TestValidateEmptyPipeline(t *testing.T) {
	msgs := Validate(nil)
	assert.Equal(t, []string{"pipeline must contain at least one stage"}, msgs)
}

func TestValidateCleanPipeline(t *testing.T) {
	msgs := Validate([]types.PipelineStage{
		{Stage: "scan", Prompt: "work.scan"},
		{Stage: "report", Prompt: "work.report"},
	})
	assert.Empty(t, msgs)
}

func TestValidateDuplicateNames(t *testing.T) {
	msgs := Validate([]types.PipelineStage{
		{Stage: "scan", Prompt: "work.scan"},
		{Stage: "scan", Prompt: "work.rescan"},
	})
	assert.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "duplicate name")
	assert.Contains(t, msgs[0], "stage 1")
}

func TestValidateMissingFields(t *testing.T) {
	msgs := Validate([]types.PipelineStage{
		{Stage: "", Prompt: "work.scan"},
		{Stage: "report", Prompt: ""},
		{Stage: "publish", Prompt: "noperiod"},
	})
	assert.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "missing stage name")
	assert.Contains(t, msgs[1], "missing prompt")
	assert.Contains(t, msgs[2], "category.name")
}
