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
	"github.com/weft-labs/weft/pkg/idempotency"
)

var idempotencyCmd = &cobra.Command{
	Use:   "idempotency",
	Short: "Manage recorded tool executions",
	Long: heredoc.Doc(`
		Mutating tool calls are recorded so an identical retry within the
		TTL replays the recorded result instead of re-executing. These
		subcommands manage that record store.
	`),
}

var idempotencyClearCmd = &cobra.Command{
	Use:   "clear [tool]",
	Short: "Remove recorded executions, optionally for one tool",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIdempotencyClear,
}

var idempotencyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired records",
	Args:  cobra.NoArgs,
	RunE:  runIdempotencyPrune,
}

func init() {
	idempotencyCmd.AddCommand(idempotencyClearCmd, idempotencyPruneCmd)
	rootCmd.AddCommand(idempotencyCmd)
}

func openStore() (*idempotency.Store, error) {
	return idempotency.NewStore(config.IdempotencyDir(projectRoot), log.Logger(),
		idempotency.Options{DisablePruner: true})
}

func runIdempotencyClear(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var removed int
	if len(args) == 1 {
		removed = store.InvalidateTool(args[0])
	} else {
		removed = store.Clear()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s).\n", removed)
	return nil
}

func runIdempotencyPrune(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	store.Prune()
	fmt.Fprintln(cmd.OutOrStdout(), "Expired records pruned.")
	return nil
}
