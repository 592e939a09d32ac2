// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/weft-labs/weft/internal/log"
	"github.com/weft-labs/weft/pkg/config"
	"github.com/weft-labs/weft/pkg/hooks"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Inspect hook configuration",
}

var hooksShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the merged active hook configuration",
	Long: heredoc.Doc(`
		Show merges the project hook file (.weft/hooks.json) with the
		user-level one and prints the matchers that would apply, in
		evaluation order. Project entries win on duplicate matcher patterns.
	`),
	Args: cobra.NoArgs,
	RunE: runHooksShow,
}

func init() {
	hooksCmd.AddCommand(hooksShowCmd)
	rootCmd.AddCommand(hooksCmd)
}

func runHooksShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	engine := hooks.NewEngine(
		config.ProjectHooksPath(projectRoot), config.UserHooksPath(), log.Logger())
	cfg := engine.ActiveConfig()

	out := cmd.OutOrStdout()
	if cfg == nil || len(cfg.Hooks) == 0 {
		fmt.Fprintln(out, "No hooks configured.")
		return nil
	}

	for _, event := range []string{hooks.EventPreToolUse, hooks.EventPostToolUse} {
		matchers := cfg.Hooks[event]
		if len(matchers) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s:\n", event)
		for _, m := range matchers {
			pattern := m.Matcher
			if pattern == "" {
				pattern = "*"
			}
			fmt.Fprintf(out, "  %s\n", pattern)
			for _, h := range m.Hooks {
				extra := ""
				if h.TimeoutMs > 0 {
					extra += fmt.Sprintf(" timeout=%dms", h.TimeoutMs)
				}
				if h.Async {
					extra += " async"
				}
				fmt.Fprintf(out, "    %s%s\n", h.Command, extra)
			}
		}
	}
	return nil
}
