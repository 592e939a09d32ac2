// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/weft-labs/weft/pkg/config"
	"github.com/weft-labs/weft/pkg/pipeline"
	"github.com/weft-labs/weft/pkg/prompts"
)

var validateCmd = &cobra.Command{
	Use:   "validate <command>",
	Short: "Validate a command's pipeline without running it",
	Long: heredoc.Doc(`
		Validate loads a command definition, checks the structural rules of
		its pipeline (unique stage names, well-formed prompt ids), and
		verifies that every referenced prompt and the agent can be loaded.
	`),
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	loader := prompts.NewFileLoader(config.DocumentsDir(projectRoot))
	def, err := loader.LoadCommand(args[0])
	if err != nil {
		return err
	}

	msgs := pipeline.Validate(def.Pipeline)

	if def.AgentRole != "" {
		if _, err := loader.LoadAgent(def.AgentRole); err != nil {
			msgs = append(msgs, fmt.Sprintf("agent %q: %v", def.AgentRole, err))
		}
	}
	seen := map[string]bool{}
	for _, stage := range def.Pipeline {
		if stage.Prompt == "" || seen[stage.Prompt] {
			continue
		}
		seen[stage.Prompt] = true
		if _, err := loader.LoadPrompt(stage.Prompt); err != nil {
			msgs = append(msgs, fmt.Sprintf("prompt %q: %v", stage.Prompt, err))
		}
	}

	if len(msgs) > 0 {
		for _, m := range msgs {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n", m)
		}
		return fmt.Errorf("%d problem(s) found", len(msgs))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d stage(s), valid\n", def.Name, len(def.Pipeline))
	return nil
}
