// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package prompts loads command, agent, and prompt documents and assembles
// the system and user messages a stage sends to the provider.
package prompts

import "github.com/weft-labs/weft/pkg/types"

// DocumentLoader supplies the declarative documents a pipeline runs from.
// Implementations return already-validated definitions.
type DocumentLoader interface {
	// LoadCommand returns the command definition by name.
	LoadCommand(name string) (*types.CommandDefinition, error)

	// LoadAgent returns the agent persona by role name.
	LoadAgent(role string) (*types.AgentDefinition, error)

	// LoadPrompt returns the prompt body for an id of the form
	// "category.name".
	LoadPrompt(id string) (*types.PromptDefinition, error)

	// LoadGuidance returns project-wide guidance text; empty when the
	// project declares none.
	LoadGuidance() (string, error)

	// LoadKnowledge returns knowledge documents keyed by basename,
	// restricted to the given list. A nil list loads nothing.
	LoadKnowledge(files []string) (map[string]string, error)
}
