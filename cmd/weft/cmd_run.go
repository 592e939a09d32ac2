// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weft-labs/weft/internal/log"
	"github.com/weft-labs/weft/pkg/cache"
	"github.com/weft-labs/weft/pkg/config"
	"github.com/weft-labs/weft/pkg/escalation"
	"github.com/weft-labs/weft/pkg/hooks"
	"github.com/weft-labs/weft/pkg/idempotency"
	"github.com/weft-labs/weft/pkg/pipeline"
	"github.com/weft-labs/weft/pkg/prompts"
	"github.com/weft-labs/weft/pkg/session"
	"github.com/weft-labs/weft/pkg/toolkit"
	"github.com/weft-labs/weft/pkg/toolkit/builtin"
	"github.com/weft-labs/weft/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <command> [args...]",
	Short: "Run a command's pipeline",
	Long: heredoc.Doc(`
		Run loads <command> from the project's .weft/commands directory and
		executes its pipeline stage by stage. Positional arguments after the
		command name bind to $ARG_1, $ARG_2, ... inside stage inputs.

		A dry run simulates every mutating tool call, prints the planned
		operations with diffs and token estimates, and banks the analysis so
		an immediately following real run can skip the pre-computed stages.
	`),
	Example: heredoc.Doc(`
		weft run review src/server.go
		weft run review src/server.go --dry-run
		weft run deploy --interactive
		weft run review src/server.go --isolate report
	`),
	Args: cobra.MinimumNArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("dry-run", false, "simulate mutating tools and bank the plan")
	runCmd.Flags().Bool("interactive", false, "answer clarifying questions and escalations at the terminal")
	runCmd.Flags().Bool("force", false, "bypass idempotency replay (records are still written)")
	runCmd.Flags().String("provider", "", "LLM provider name (defaults to the only one linked)")
	runCmd.Flags().String("model", "", "model override")
	runCmd.Flags().String("mode", "", "provider mode override")
	runCmd.Flags().StringSlice("isolate", nil, "run only the named stages (stage or stage.prompt)")
	runCmd.Flags().Bool("json", false, "print the full result as JSON")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	logger := log.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	interactive, _ := cmd.Flags().GetBool("interactive")
	force, _ := cmd.Flags().GetBool("force")
	providerName, _ := cmd.Flags().GetString("provider")
	modelFlag, _ := cmd.Flags().GetString("model")
	mode, _ := cmd.Flags().GetString("mode")
	isolate, _ := cmd.Flags().GetStringSlice("isolate")
	jsonOut, _ := cmd.Flags().GetBool("json")

	loader := prompts.NewFileLoader(config.DocumentsDir(projectRoot))
	def, err := loader.LoadCommand(args[0])
	if err != nil {
		return err
	}

	model := modelFlag
	if model == "" {
		model = def.Model
	}
	if model == "" {
		model = settings.Model
	}
	provider, err := resolveProvider(providerName, model)
	if err != nil {
		return err
	}

	store, err := idempotency.NewStore(config.IdempotencyDir(projectRoot), logger,
		idempotency.Options{Disabled: settings.IdempotencyDisabled})
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	defer store.Close()

	engine := hooks.NewEngine(config.ProjectHooksPath(projectRoot), config.UserHooksPath(), logger)
	if err := engine.Watch(ctx); err != nil {
		logger.Debug("hook config watcher unavailable", zap.Error(err))
	}

	runID := "run-" + uuid.NewString()[:8]

	var transcript *session.Store
	if transcript, err = session.Open(config.SessionDBPath(projectRoot), logger); err != nil {
		logger.Warn("session store unavailable, transcript disabled", zap.Error(err))
		transcript = nil
	} else {
		defer transcript.Close()
	}

	registry := toolkit.NewRegistry()
	builtinOpts := builtin.Options{WorkDir: projectRoot, SessionID: runID}
	if transcript != nil {
		builtinOpts.Transcript = transcript
	}
	builtin.Register(registry, builtinOpts)

	router := toolkit.NewRouter(registry, engine, store,
		toolkit.DefaultGuardConfig(config.StateDir(projectRoot)), logger)
	if force {
		router.SetForceExecute(true)
	}

	interact := newConsoleInteract(os.Stdin, os.Stderr)
	svc := &pipeline.Services{
		Loader:      loader,
		Router:      router,
		StageCache:  cache.NewStageCache(logger),
		DryRuns:     cache.NewDryRunCache(logger),
		Detector:    escalation.NewDetector(settings.ConfidenceThreshold),
		Escalations: interact,
		Questions:   interact,
		Approver:    interact,
		Logger:      logger,

		MaxToolIterations: settings.MaxToolIterations,
	}
	if transcript != nil {
		svc.Transcript = transcript
	}

	ecArgs := make([]interface{}, 0, len(args)-1)
	for _, a := range args[1:] {
		ecArgs = append(ecArgs, a)
	}
	flags := map[string]interface{}{
		"dryRun":      dryRun,
		"interactive": interactive,
		"force":       force,
	}
	if modelFlag != "" {
		flags["model"] = modelFlag
	}
	if mode != "" {
		flags["mode"] = mode
	}

	ec := pipeline.NewExecutionContext(def, ecArgs, flags, provider, types.SessionInfo{ID: runID})
	if len(isolate) > 0 {
		ec.Isolation = &types.IsolationSpec{Stages: isolate}
	}

	logger.Info("pipeline starting",
		zap.String("run_id", runID), zap.String("command", def.Name))

	result := pipeline.NewSelector(svc, os.Stdout).SelectAndExecute(ctx, def, ec)
	renderResult(cmd.OutOrStdout(), result, jsonOut)

	if !result.Success {
		return fmt.Errorf("pipeline failed: %s", result.Error)
	}
	return nil
}

func renderResult(out io.Writer, result *types.CommandResult, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	for _, s := range result.Stages {
		mark := "ok"
		if !s.Success {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "%-6s %-24s %s\n", mark, s.Stage,
			(time.Duration(s.DurationMs) * time.Millisecond).String())
	}
	if len(result.Outputs) > 0 {
		b, err := json.MarshalIndent(result.Outputs, "", "  ")
		if err == nil {
			fmt.Fprintf(out, "\n%s\n", b)
		}
	}
}
