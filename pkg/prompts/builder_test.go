// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-labs/weft/pkg/types"
)

func TestBuildSystemMessageOrder(t *testing.T) {
	system, _ := BuildMessages(BuildInput{
		Guidance: "Follow house style.",
		Agent:    &types.AgentDefinition{Name: "dev", Content: "You are a careful developer."},
		Prompt:   &types.PromptDefinition{Category: "dev", Name: "plan", Content: "Plan the work."},
		Knowledge: map[string]string{
			"conventions.md": "Use tabs.",
		},
		ExpectedOutputs: []string{"plan", "risks"},
	})

	content := system.Content
	guidanceIdx := strings.Index(content, "Follow house style.")
	agentIdx := strings.Index(content, "careful developer")
	promptIdx := strings.Index(content, "Plan the work.")
	knowledgeIdx := strings.Index(content, "conventions.md")
	outputIdx := strings.Index(content, "# Output Format")

	require.True(t, guidanceIdx >= 0 && agentIdx >= 0 && promptIdx >= 0)
	assert.Less(t, guidanceIdx, agentIdx)
	assert.Less(t, agentIdx, promptIdx)
	assert.Less(t, promptIdx, knowledgeIdx)
	assert.Less(t, knowledgeIdx, outputIdx)
	assert.Contains(t, content, `"plan"`)
	assert.Contains(t, content, `"risks"`)
}

func TestEscalationDirectiveOnlyWithCriteria(t *testing.T) {
	system, _ := BuildMessages(BuildInput{
		Agent: &types.AgentDefinition{Content: "agent", EscalationCriteria: []string{"destructive migration"}},
	})
	assert.Contains(t, system.Content, "# Escalation Protocol")
	assert.Contains(t, system.Content, "destructive migration")

	system, _ = BuildMessages(BuildInput{
		Agent: &types.AgentDefinition{Content: "agent"},
	})
	assert.NotContains(t, system.Content, "Escalation Protocol")
}

func TestUserMessageRendersFileBlocks(t *testing.T) {
	_, user := BuildMessages(BuildInput{
		ResolvedInputs: map[string]interface{}{
			"feature":             "auth",
			"spec_file":           "specs/auth.md",
			"spec_file_content":   "# Auth Spec\nDetails here.",
			"schema_path":         "db/schema.sql",
			"schema_path_content": "create table users();",
		},
	})

	content := user.Content
	assert.Contains(t, content, "feature: auth")
	assert.Contains(t, content, "--- File: specs/auth.md ---")
	assert.Contains(t, content, "# Auth Spec")
	assert.Contains(t, content, "--- File: db/schema.sql ---")
	// Raw _content entries do not appear as plain inputs.
	assert.NotContains(t, content, "spec_file_content:")
}

func TestUserMessageWithoutInputs(t *testing.T) {
	_, user := BuildMessages(BuildInput{})
	assert.NotEmpty(t, user.Content)
}

func TestEnrichFileInputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.md")
	require.NoError(t, os.WriteFile(path, []byte("# Spec"), 0o644))

	inputs := map[string]interface{}{
		"spec_file": path,
		"other":     "x",
		"gone_path": filepath.Join(dir, "missing.md"),
	}
	EnrichFileInputs(inputs)

	assert.Equal(t, "# Spec", inputs["spec_file_content"])
	_, hasMissing := inputs["gone_path_content"]
	assert.False(t, hasMissing)
	_, hasOther := inputs["other_content"]
	assert.False(t, hasOther)
}

func TestFileLoaderRoundTrip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "commands"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "agents"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "prompts", "dev"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "knowledge"), 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "commands", "ship.yaml"), []byte(`
name: ship
agent: developer
pipeline:
  - stage: plan
    prompt: dev.plan
    outputs: [plan]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "agents", "developer.yaml"), []byte(`
content: You are a developer.
escalation_criteria:
  - destructive change
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "prompts", "dev", "plan.yaml"), []byte(`
content: Plan the work.
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "guidance.md"), []byte("Be brief."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "knowledge", "style.md"), []byte("Tabs."), 0o644))

	l := NewFileLoader(root)

	cmd, err := l.LoadCommand("ship")
	require.NoError(t, err)
	assert.Equal(t, "developer", cmd.AgentRole)
	require.Len(t, cmd.Pipeline, 1)
	assert.Equal(t, "dev.plan", cmd.Pipeline[0].Prompt)

	agent, err := l.LoadAgent("developer")
	require.NoError(t, err)
	assert.Equal(t, []string{"destructive change"}, agent.EscalationCriteria)

	prompt, err := l.LoadPrompt("dev.plan")
	require.NoError(t, err)
	assert.Equal(t, "dev.plan", prompt.ID())
	assert.Equal(t, "Plan the work.", strings.TrimSpace(prompt.Content))

	guidance, err := l.LoadGuidance()
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", guidance)

	knowledge, err := l.LoadKnowledge([]string{"style.md", "absent.md"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"style.md": "Tabs."}, knowledge)

	_, err = l.LoadPrompt("noseparator")
	assert.Error(t, err)
}
