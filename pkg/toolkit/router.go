// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weft-labs/weft/pkg/hooks"
	"github.com/weft-labs/weft/pkg/idempotency"
	"github.com/weft-labs/weft/pkg/types"
)

// WriteApprover decides the fate of writes queued for end-of-pipeline
// confirmation.
type WriteApprover interface {
	// ApproveWrite shows the pending change and returns whether to commit.
	ApproveWrite(ctx context.Context, path, diff string) (bool, error)
}

// PendingWrite is a file write held back for user approval.
type PendingWrite struct {
	Path    string
	Content string
}

// GuardConfig declares the filesystem areas the router polices.
type GuardConfig struct {
	// StateDir is the engine's own state directory; mutating tools may
	// never touch it.
	StateDir string

	// ProtectedFiles are basenames that may only be overwritten after
	// being read within the current command.
	ProtectedFiles []string

	// ConfirmPaths are directory prefixes whose writes are queued for
	// approval at pipeline end instead of applied immediately.
	ConfirmPaths []string
}

// DefaultGuardConfig returns the guard set used when a command declares none.
func DefaultGuardConfig(stateDir string) GuardConfig {
	return GuardConfig{
		StateDir: stateDir,
		ProtectedFiles: []string{
			".env", "go.sum", "package-lock.json", "yarn.lock", "Cargo.lock",
		},
		ConfirmPaths: []string{"docs/"},
	}
}

// Router dispatches tool calls from the model through hooks, guards, dry-run
// simulation, and the idempotency store.
type Router struct {
	registry *Registry
	hooks    *hooks.Engine
	idem     *idempotency.Store
	sim      *Simulator
	guards   GuardConfig
	logger   *zap.Logger

	mu            sync.Mutex
	dryRun        bool
	forceExecute  bool
	sessionID     string
	readFiles     map[string]bool
	pendingWrites []PendingWrite
}

// NewRouter wires a router over a registry. The hook engine and idempotency
// store may be nil, disabling those layers.
func NewRouter(registry *Registry, hookEngine *hooks.Engine, store *idempotency.Store, guards GuardConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry:  registry,
		hooks:     hookEngine,
		idem:      store,
		sim:       NewSimulator(),
		guards:    guards,
		logger:    logger,
		readFiles: make(map[string]bool),
	}
}

// SetDryRun toggles dry-run interception of mutating tools.
func (r *Router) SetDryRun(on bool) {
	r.mu.Lock()
	r.dryRun = on
	r.mu.Unlock()
}

// SetForceExecute bypasses idempotency lookup (records are still written).
func (r *Router) SetForceExecute(on bool) {
	r.mu.Lock()
	r.forceExecute = on
	r.mu.Unlock()
}

// SetSession scopes idempotency keys and hook payloads to a session.
func (r *Router) SetSession(id string) {
	r.mu.Lock()
	r.sessionID = id
	r.mu.Unlock()
}

// ResetRunState clears per-run state: the read-files set, pending writes,
// and recorded dry-run operations. Called at the start of every pipeline.
func (r *Router) ResetRunState() {
	r.mu.Lock()
	r.readFiles = make(map[string]bool)
	r.pendingWrites = nil
	r.mu.Unlock()
	r.sim.Reset()
}

// Definitions returns provider-shaped tool definitions for allowedTools.
func (r *Router) Definitions(allowedTools []string) []types.ToolDefinition {
	return r.registry.Definitions(allowedTools)
}

// PlannedOperations returns what dry-run interception recorded so far.
func (r *Router) PlannedOperations() []PlannedOperation {
	return r.sim.Operations()
}

// Dispatch executes one tool call and returns the result the model sees.
// Tool failures never escape as errors; they become the output string.
func (r *Router) Dispatch(ctx context.Context, call types.ToolCall) types.ToolResult {
	return types.ToolResult{
		ToolCallID: call.ID,
		Output:     r.dispatch(ctx, call),
	}
}

// ExecuteTools runs a batch of calls in parallel, preserving result order.
func (r *Router) ExecuteTools(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = r.Dispatch(gctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Router) dispatch(ctx context.Context, call types.ToolCall) string {
	tool, ok := r.registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := ValidateArgs(tool, args); err != nil {
		return "Error: " + err.Error()
	}

	r.mu.Lock()
	dryRun := r.dryRun
	force := r.forceExecute
	session := r.sessionID
	r.mu.Unlock()

	if dryRun && !tool.ReadOnly() {
		return r.sim.Simulate(call.Name, args).Output()
	}

	if r.hooks != nil {
		d := r.hooks.EvaluatePre(ctx, call.Name, args, session)
		if !d.Allow {
			r.logger.Info("tool call blocked by hook",
				zap.String("tool", call.Name), zap.String("reason", d.Reason))
			return "Error: " + (&types.HookBlockError{Reason: d.Reason}).Error()
		}
		if d.UpdatedInput != nil {
			args = d.UpdatedInput
		}
	}

	idempotent := !tool.ReadOnly() && r.idem != nil && r.idem.Enabled()
	if idempotent && !force {
		if rec, hit := r.idem.Lookup(call.Name, args, session); hit {
			r.logger.Debug("idempotency replay", zap.String("tool", call.Name))
			if s, ok := rec.Result.(string); ok {
				return s
			}
			return (&Result{Success: true, Data: rec.Result, Replayed: true}).Output()
		}
	}

	if !tool.ReadOnly() {
		if err := r.guardPath(call.Name, args); err != nil {
			return "Error: " + err.Error()
		}
		if msg, queued := r.maybeQueueWrite(call.Name, args); queued {
			return msg
		}
	}

	res, err := tool.Execute(ctx, args)
	if err != nil {
		res = &Result{Error: &Error{Code: "TOOL_FAILED", Message: err.Error()}}
	}

	// A refused read (oversized file, missing path) must not satisfy the
	// read-before-write guard.
	if call.Name == "read_file" && res.Success {
		if path, ok := args["path"].(string); ok {
			r.markRead(path)
		}
	}
	output := res.Output()

	if r.hooks != nil {
		r.hooks.DispatchPost(ctx, call.Name, args, output, session)
	}
	if idempotent {
		r.idem.Save(call.Name, args, session, output)
	}
	return output
}

// guardPath rejects mutating calls aimed at the state directory or at
// protected files that were not read first during this command.
func (r *Router) guardPath(toolName string, args map[string]interface{}) error {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}

	if r.guards.StateDir != "" {
		stateAbs, err := filepath.Abs(r.guards.StateDir)
		if err == nil && (abs == stateAbs || strings.HasPrefix(abs, stateAbs+string(filepath.Separator))) {
			return &types.ToolError{
				Tool: toolName,
				Err:  fmt.Errorf("refusing to modify %s: engine state directory", path),
			}
		}
	}

	base := filepath.Base(abs)
	for _, protected := range r.guards.ProtectedFiles {
		if base != protected {
			continue
		}
		if _, statErr := os.Stat(abs); statErr != nil {
			continue // creating a new file is fine
		}
		r.mu.Lock()
		wasRead := r.readFiles[abs]
		r.mu.Unlock()
		if !wasRead {
			return &types.ToolError{
				Tool: toolName,
				Err:  fmt.Errorf("refusing to overwrite protected file %s: read it first", path),
			}
		}
	}
	return nil
}

// maybeQueueWrite holds writes into confirm-at-end paths for approval.
func (r *Router) maybeQueueWrite(toolName string, args map[string]interface{}) (string, bool) {
	if toolName != "write" {
		return "", false
	}
	path, _ := args["path"].(string)
	if path == "" || !r.isConfirmPath(path) {
		return "", false
	}
	content, _ := args["content"].(string)

	r.mu.Lock()
	r.pendingWrites = append(r.pendingWrites, PendingWrite{Path: path, Content: content})
	r.mu.Unlock()

	r.logger.Info("write queued for approval", zap.String("path", path))
	return fmt.Sprintf("Write to %s queued for approval at pipeline end", path), true
}

func (r *Router) isConfirmPath(path string) bool {
	clean := filepath.ToSlash(filepath.Clean(path))
	for _, prefix := range r.guards.ConfirmPaths {
		p := strings.TrimSuffix(filepath.ToSlash(prefix), "/")
		if clean == p || strings.HasPrefix(clean, p+"/") {
			return true
		}
	}
	return false
}

func (r *Router) markRead(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		r.mu.Lock()
		r.readFiles[abs] = true
		r.mu.Unlock()
	}
}

// PendingWrites returns the queued writes without committing them.
func (r *Router) PendingWrites() []PendingWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PendingWrite(nil), r.pendingWrites...)
}

// FlushPendingWrites asks the approver about each queued write and commits
// the approved ones. Returns the number committed. A nil approver discards
// everything.
func (r *Router) FlushPendingWrites(ctx context.Context, approver WriteApprover) (int, error) {
	r.mu.Lock()
	pending := r.pendingWrites
	r.pendingWrites = nil
	r.mu.Unlock()

	committed := 0
	for _, w := range pending {
		if approver == nil {
			r.logger.Info("discarding queued write: no approver", zap.String("path", w.Path))
			continue
		}
		ok, err := approver.ApproveWrite(ctx, w.Path, FileDiff(w.Path, w.Content))
		if err != nil {
			return committed, fmt.Errorf("approve write %s: %w", w.Path, err)
		}
		if !ok {
			r.logger.Info("queued write declined", zap.String("path", w.Path))
			continue
		}
		if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
			return committed, err
		}
		if err := os.WriteFile(w.Path, []byte(w.Content), 0o644); err != nil {
			return committed, err
		}
		committed++
	}
	return committed, nil
}
