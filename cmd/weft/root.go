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
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/weft-labs/weft/internal/log"
	"github.com/weft-labs/weft/internal/version"
	"github.com/weft-labs/weft/pkg/config"
)

var (
	projectRoot string
	logLevel    string
	logFormat   string

	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft - local LLM workflow orchestrator",
	Long: heredoc.Doc(`
		Weft runs declarative multi-stage LLM pipelines against a local
		project: commands, agents, and prompts live under .weft/, stages
		exchange outputs through $STAGE_* references, and tool calls are
		routed through hooks, idempotency records, and dry-run simulation.
	`),
	Version: version.Get(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initSettings, initLogging)

	rootCmd.PersistentFlags().StringVar(&projectRoot, "project", ".", "project root directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initSettings() {
	var err error
	settings, err = config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}
}

func initLogging() {
	lvl, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level %q\n", logLevel)
		os.Exit(1)
	}

	var cfg zap.Config
	if logFormat == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	log.SetLogger(logger)
}
