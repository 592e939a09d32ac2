// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config resolves on-disk locations and user settings for the engine.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// StateDirName is the per-project engine state directory. Mutating tools are
// barred from touching it.
const StateDirName = ".orchestrator-state"

// DataDir returns the user-level data directory: $WEFT_DATA_DIR if set,
// otherwise ~/.weft.
func DataDir() string {
	if dir := os.Getenv("WEFT_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".weft"
	}
	return filepath.Join(home, ".weft")
}

// StateDir returns the engine state directory for a project.
func StateDir(projectRoot string) string {
	return filepath.Join(projectRoot, StateDirName)
}

// IdempotencyDir returns where idempotency records for a project live.
func IdempotencyDir(projectRoot string) string {
	return filepath.Join(StateDir(projectRoot), "idempotency")
}

// SessionDBPath returns the session transcript database for a project.
func SessionDBPath(projectRoot string) string {
	return filepath.Join(StateDir(projectRoot), "sessions.db")
}

// ProjectHooksPath returns the project-level hook configuration file.
func ProjectHooksPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".weft", "hooks.json")
}

// UserHooksPath returns the user-level hook configuration file, merged under
// the project one.
func UserHooksPath() string {
	return filepath.Join(DataDir(), "hooks.json")
}

// DocumentsDir returns where a project's commands, agents, and prompts live.
func DocumentsDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".weft")
}

// Settings are user-tunable engine knobs.
type Settings struct {
	// Model is the default model when a command declares none.
	Model string `mapstructure:"model"`

	// ConfidenceThreshold feeds the escalation detector.
	ConfidenceThreshold int `mapstructure:"confidence_threshold"`

	// IdempotencyDisabled bypasses the idempotency store.
	IdempotencyDisabled bool `mapstructure:"idempotency_disabled"`

	// MaxToolIterations bounds the tool-use loop.
	MaxToolIterations int `mapstructure:"max_tool_iterations"`
}

// LoadSettings reads config.yaml from the data directory, overridable via
// WEFT_* environment variables. Missing files yield defaults.
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(DataDir())
	v.SetEnvPrefix("WEFT")
	v.AutomaticEnv()

	v.SetDefault("confidence_threshold", 75)
	v.SetDefault("max_tool_iterations", 20)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
