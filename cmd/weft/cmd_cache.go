// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/weft-labs/weft/pkg/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and reset the engine's on-disk state",
	Long: heredoc.Doc(`
		The engine keeps per-project state under .orchestrator-state:
		idempotency records and the session transcript database. Stage and
		dry-run caches live in process memory and reset between invocations.
	`),
}

var cachePathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Print the state locations for this project",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "state dir:    %s\n", config.StateDir(projectRoot))
		fmt.Fprintf(out, "idempotency:  %s\n", config.IdempotencyDir(projectRoot))
		fmt.Fprintf(out, "sessions:     %s\n", config.SessionDBPath(projectRoot))
		fmt.Fprintf(out, "hooks:        %s\n", config.ProjectHooksPath(projectRoot))
		fmt.Fprintf(out, "user hooks:   %s\n", config.UserHooksPath())
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the project's state directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		dir := config.StateDir(projectRoot)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", dir)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePathsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
