// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weft-labs/weft/pkg/types"
)

// FileLoader reads documents from a directory tree:
//
//	<root>/commands/<name>.yaml
//	<root>/agents/<role>.yaml
//	<root>/prompts/<category>/<name>.yaml
//	<root>/guidance.md
//	<root>/knowledge/<basename>
type FileLoader struct {
	root string
}

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{root: dir}
}

// LoadCommand returns the command definition by name.
func (l *FileLoader) LoadCommand(name string) (*types.CommandDefinition, error) {
	var def types.CommandDefinition
	if err := l.readYAML(filepath.Join("commands", name+".yaml"), &def); err != nil {
		return nil, fmt.Errorf("load command %q: %w", name, err)
	}
	if def.Name == "" {
		def.Name = name
	}
	return &def, nil
}

// LoadAgent returns the agent persona by role name.
func (l *FileLoader) LoadAgent(role string) (*types.AgentDefinition, error) {
	var def types.AgentDefinition
	if err := l.readYAML(filepath.Join("agents", role+".yaml"), &def); err != nil {
		return nil, fmt.Errorf("load agent %q: %w", role, err)
	}
	if def.Name == "" {
		def.Name = role
	}
	return &def, nil
}

// LoadPrompt returns the prompt body for "category.name".
func (l *FileLoader) LoadPrompt(id string) (*types.PromptDefinition, error) {
	category, name, ok := strings.Cut(id, ".")
	if !ok {
		return nil, fmt.Errorf("load prompt %q: id must be category.name", id)
	}
	var def types.PromptDefinition
	if err := l.readYAML(filepath.Join("prompts", category, name+".yaml"), &def); err != nil {
		return nil, fmt.Errorf("load prompt %q: %w", id, err)
	}
	def.Category = category
	def.Name = name
	return &def, nil
}

// LoadGuidance returns the project guidance body, or empty when absent.
func (l *FileLoader) LoadGuidance() (string, error) {
	data, err := os.ReadFile(filepath.Join(l.root, "guidance.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// LoadKnowledge returns the requested knowledge documents by basename.
// Missing files are skipped; the caller decides whether that matters.
func (l *FileLoader) LoadKnowledge(files []string) (map[string]string, error) {
	out := make(map[string]string, len(files))
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(l.root, "knowledge", filepath.Base(name)))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out[filepath.Base(name)] = string(data)
	}
	return out, nil
}

func (l *FileLoader) readYAML(rel string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(l.root, rel))
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}
