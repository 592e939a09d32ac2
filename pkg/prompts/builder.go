// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package prompts

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/weft-labs/weft/pkg/types"
	"github.com/weft-labs/weft/pkg/vars"
)

const sectionSeparator = "\n\n---\n\n"

// fileKeySuffixes mark inputs whose value is a path; the resolved content
// travels alongside under "<key>_content".
var fileKeySuffixes = []string{"_file", "_file_arg", "_path"}

// BuildInput collects everything the message builder composes from.
type BuildInput struct {
	Guidance        string
	Agent           *types.AgentDefinition
	Prompt          *types.PromptDefinition
	Knowledge       map[string]string
	ExpectedOutputs []string
	ResolvedInputs  map[string]interface{}
}

// BuildMessages assembles the system and user messages for one stage call.
func BuildMessages(in BuildInput) (system, user types.Message) {
	return types.Message{Role: "system", Content: buildSystem(in)},
		types.Message{Role: "user", Content: buildUser(in.ResolvedInputs)}
}

func buildSystem(in BuildInput) string {
	var sections []string

	if in.Guidance != "" {
		sections = append(sections, strings.TrimSpace(in.Guidance))
	}
	if in.Agent != nil && in.Agent.Content != "" {
		sections = append(sections, strings.TrimSpace(in.Agent.Content))
	}
	if in.Prompt != nil && in.Prompt.Content != "" {
		sections = append(sections, strings.TrimSpace(in.Prompt.Content))
	}
	if len(in.Knowledge) > 0 {
		sections = append(sections, buildKnowledge(in.Knowledge))
	}
	if len(in.ExpectedOutputs) > 0 {
		sections = append(sections, buildOutputDirective(in.ExpectedOutputs))
	}
	if in.Agent != nil && len(in.Agent.EscalationCriteria) > 0 {
		sections = append(sections, buildEscalationDirective(in.Agent.EscalationCriteria))
	}
	return strings.Join(sections, sectionSeparator)
}

func buildKnowledge(knowledge map[string]string) string {
	names := make([]string, 0, len(knowledge))
	for name := range knowledge {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Project Knowledge\n")
	for _, name := range names {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", name, strings.TrimSpace(knowledge[name]))
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildOutputDirective tells the model exactly which keys to emit, with a
// JSON skeleton so the parser has a fighting chance.
func buildOutputDirective(keys []string) string {
	var b strings.Builder
	b.WriteString("# Output Format\n\nRespond with a fenced JSON code block containing exactly these keys:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s\n", k)
	}
	b.WriteString("\nExample:\n```json\n{\n")
	for i, k := range keys {
		comma := ","
		if i == len(keys)-1 {
			comma = ""
		}
		fmt.Fprintf(&b, "  %q: ...%s\n", k, comma)
	}
	b.WriteString("}\n```")
	return b.String()
}

func buildEscalationDirective(criteria []string) string {
	var b strings.Builder
	b.WriteString("# Escalation Protocol\n\nIf any of the following apply, do not act. ")
	b.WriteString("Instead append a fenced JSON block with key \"_escalation\" containing ")
	b.WriteString("requires_escalation, confidence (0-100), risk_level (low|medium|high|critical), ")
	b.WriteString("triggered_criteria, reasoning, and proposed_action:\n")
	for _, c := range criteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildUser renders the resolved inputs. Inputs whose key marks them as file
// paths get their companion "<key>_content" rendered as a dedicated block.
func buildUser(inputs map[string]interface{}) string {
	if len(inputs) == 0 {
		return "Proceed with the task described above."
	}

	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	contentKeys := make(map[string]bool)
	for _, k := range keys {
		if isFileKey(k) {
			contentKeys[k+"_content"] = true
		}
	}

	var plain, blocks []string
	for _, k := range keys {
		if contentKeys[k] {
			continue // rendered inside its file block
		}
		if isFileKey(k) {
			if content, ok := inputs[k+"_content"].(string); ok {
				path := vars.CoerceString(inputs[k])
				blocks = append(blocks, fmt.Sprintf("--- File: %s ---\n%s\n--- End File ---", path, content))
				continue
			}
		}
		plain = append(plain, fmt.Sprintf("%s: %s", k, vars.CoerceString(inputs[k])))
	}

	var b strings.Builder
	b.WriteString("# Inputs\n\n")
	b.WriteString(strings.Join(plain, "\n"))
	if len(blocks) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(blocks, "\n\n"))
	}
	return strings.TrimSpace(b.String())
}

func isFileKey(key string) bool {
	for _, suffix := range fileKeySuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// EnrichFileInputs adds "<key>_content" alongside every file-key input whose
// value is a string path to an existing regular file.
func EnrichFileInputs(inputs map[string]interface{}) map[string]interface{} {
	for key, value := range inputs {
		if !isFileKey(key) {
			continue
		}
		path, ok := value.(string)
		if !ok || path == "" {
			continue
		}
		if _, exists := inputs[key+"_content"]; exists {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		inputs[key+"_content"] = string(data)
	}
	return inputs
}
