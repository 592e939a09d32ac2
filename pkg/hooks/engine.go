// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultHookTimeout applies when a hook spec carries no timeout.
const DefaultHookTimeout = 10 * time.Second

// payload is the JSON document piped to a hook's stdin.
type payload struct {
	HookEventName string                 `json:"hook_event_name"`
	ToolName      string                 `json:"tool_name"`
	ToolInput     map[string]interface{} `json:"tool_input"`
	Cwd           string                 `json:"cwd"`
	SessionID     string                 `json:"session_id,omitempty"`
	ToolResult    interface{}            `json:"tool_result,omitempty"`
}

// hookOutput is the JSON document a hook may print on stdout.
type hookOutput struct {
	HookSpecificOutput struct {
		UpdatedInput             map[string]interface{} `json:"updatedInput,omitempty"`
		PermissionDecision       string                 `json:"permissionDecision,omitempty"`
		PermissionDecisionReason string                 `json:"permissionDecisionReason,omitempty"`
	} `json:"hookSpecificOutput"`
}

// Decision is the outcome of the PreToolUse chain for one tool call.
type Decision struct {
	Allow bool
	// Reason is set when a hook denied the call.
	Reason string
	// UpdatedInput replaces the tool arguments when non-nil.
	UpdatedInput map[string]interface{}
}

// Engine evaluates hook configurations around tool calls. A primary (project)
// config and an optional secondary (user) config are merged per evaluation,
// so edits take effect without a restart.
type Engine struct {
	primaryPath   string
	secondaryPath string
	loader        *configLoader
	logger        *zap.Logger
	cwd           string

	warnMu sync.Mutex
	warned map[string]bool
}

// NewEngine creates a hook engine reading the given config paths. Either path
// may be empty or point to a file that does not exist yet.
func NewEngine(primaryPath, secondaryPath string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cwd, _ := os.Getwd()
	return &Engine{
		primaryPath:   primaryPath,
		secondaryPath: secondaryPath,
		loader:        newConfigLoader(),
		logger:        logger,
		cwd:           cwd,
		warned:        make(map[string]bool),
	}
}

// matcherApplies evaluates a matcher against a tool name, warning once per
// rejected pattern so the operator can see why a hook never fires.
func (e *Engine) matcherApplies(m *Matcher, toolName string) bool {
	ok, err := m.matches(toolName)
	if err != nil {
		e.warnMu.Lock()
		seen := e.warned[m.Matcher]
		e.warned[m.Matcher] = true
		e.warnMu.Unlock()
		if !seen {
			e.logger.Warn("hook matcher skipped", zap.Error(err))
		}
	}
	return ok
}

// Watch invalidates the config cache when either file changes on disk.
// Returns immediately; watching stops when ctx is done.
func (e *Engine) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, p := range []string{e.primaryPath, e.secondaryPath} {
		if p == "" {
			continue
		}
		if err := watcher.Add(p); err != nil {
			e.logger.Debug("hook config not watchable", zap.String("path", p), zap.Error(err))
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					e.loader.invalidate(ev.Name)
					e.logger.Debug("hook config changed", zap.String("path", ev.Name))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				e.logger.Warn("hook config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// ActiveConfig returns the current merged configuration, loading both files
// if the cache is cold. Intended for inspection surfaces.
func (e *Engine) ActiveConfig() *Config {
	return e.config()
}

func (e *Engine) config() *Config {
	primary, err := e.loader.load(e.primaryPath)
	if err != nil {
		e.logger.Warn("hook config unreadable, ignoring", zap.String("path", e.primaryPath), zap.Error(err))
	}
	secondary, err := e.loader.load(e.secondaryPath)
	if err != nil {
		e.logger.Warn("hook config unreadable, ignoring", zap.String("path", e.secondaryPath), zap.Error(err))
	}
	return mergeConfigs(primary, secondary)
}

// EvaluatePre runs the PreToolUse chain for a tool call. Hooks run in config
// order; the first denial short-circuits. Input rewrites compose: each hook
// sees the input as rewritten by earlier hooks.
func (e *Engine) EvaluatePre(ctx context.Context, toolName string, input map[string]interface{}, sessionID string) Decision {
	cfg := e.config()
	if cfg == nil {
		return Decision{Allow: true}
	}

	current := input
	var rewritten bool
	for i := range cfg.Hooks[EventPreToolUse] {
		m := &cfg.Hooks[EventPreToolUse][i]
		if !e.matcherApplies(m, toolName) {
			continue
		}
		for _, spec := range m.Hooks {
			out, denied, reason := e.runHook(ctx, spec, payload{
				HookEventName: EventPreToolUse,
				ToolName:      toolName,
				ToolInput:     current,
				Cwd:           e.cwd,
				SessionID:     sessionID,
			})
			if denied {
				return Decision{Allow: false, Reason: reason}
			}
			if out != nil && out.HookSpecificOutput.UpdatedInput != nil {
				current = out.HookSpecificOutput.UpdatedInput
				rewritten = true
			}
		}
	}

	d := Decision{Allow: true}
	if rewritten {
		d.UpdatedInput = current
	}
	return d
}

// DispatchPost runs the PostToolUse chain. Sync hooks are awaited but their
// outcome is discarded; async hooks are fire-and-forget. Post-hook output
// never reaches the tool result or the model.
func (e *Engine) DispatchPost(ctx context.Context, toolName string, input map[string]interface{}, result interface{}, sessionID string) {
	cfg := e.config()
	if cfg == nil {
		return
	}

	for i := range cfg.Hooks[EventPostToolUse] {
		m := &cfg.Hooks[EventPostToolUse][i]
		if !e.matcherApplies(m, toolName) {
			continue
		}
		for _, spec := range m.Hooks {
			p := payload{
				HookEventName: EventPostToolUse,
				ToolName:      toolName,
				ToolInput:     input,
				Cwd:           e.cwd,
				SessionID:     sessionID,
				ToolResult:    result,
			}
			if spec.Async {
				spec := spec
				go func() {
					bg, cancel := context.WithTimeout(context.Background(), hookTimeout(spec))
					defer cancel()
					e.runHook(bg, spec, p)
				}()
				continue
			}
			e.runHook(ctx, spec, p)
		}
	}
}

// runHook executes one hook command with the payload on stdin. Exit 0 allows
// (with an optional stdout rewrite); exit 2 denies; any other failure is
// fail-open so a broken hook cannot wedge the pipeline.
func (e *Engine) runHook(ctx context.Context, spec HookSpec, p payload) (out *hookOutput, denied bool, reason string) {
	if spec.Type != "" && spec.Type != "command" {
		e.logger.Warn("unsupported hook type, skipping", zap.String("type", spec.Type))
		return nil, false, ""
	}

	runCtx, cancel := context.WithTimeout(ctx, hookTimeout(spec))
	defer cancel()

	stdin, err := json.Marshal(&p)
	if err != nil {
		return nil, false, ""
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", spec.Command)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err == nil {
		var parsed hookOutput
		if json.Unmarshal(stdout.Bytes(), &parsed) == nil {
			if parsed.HookSpecificOutput.PermissionDecision == "deny" {
				return nil, true, denyReason(&parsed, &stderr)
			}
			return &parsed, false, ""
		}
		return nil, false, ""
	}

	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 2 {
		var parsed hookOutput
		if json.Unmarshal(stdout.Bytes(), &parsed) == nil && parsed.HookSpecificOutput.PermissionDecisionReason != "" {
			return nil, true, parsed.HookSpecificOutput.PermissionDecisionReason
		}
		return nil, true, denyReason(nil, &stderr)
	}

	e.logger.Warn("hook failed, continuing",
		zap.String("event", p.HookEventName),
		zap.String("tool", p.ToolName),
		zap.Error(err))
	return nil, false, ""
}

func denyReason(parsed *hookOutput, stderr *bytes.Buffer) string {
	if parsed != nil && parsed.HookSpecificOutput.PermissionDecisionReason != "" {
		return parsed.HookSpecificOutput.PermissionDecisionReason
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		return s
	}
	return "denied by hook"
}

func hookTimeout(spec HookSpec) time.Duration {
	if spec.TimeoutMs > 0 {
		return time.Duration(spec.TimeoutMs) * time.Millisecond
	}
	return DefaultHookTimeout
}
