// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import "github.com/weft-labs/weft/pkg/toolkit"

// Options wires builtin tools to their collaborators.
type Options struct {
	// WorkDir is where run_terminal_cmd executes; empty means inherit.
	WorkDir string

	// Transcript backs the query_session tool; nil disables it.
	Transcript TranscriptQuerier

	// SessionID scopes the query_session tool.
	SessionID string

	// Providers are connected external tool providers, each exposed as a
	// routing tool.
	Providers []ExternalToolProvider
}

// Register adds the full built-in tool set to a registry.
func Register(registry *toolkit.Registry, opts Options) {
	registry.Register(&WriteTool{})
	registry.Register(&ReadFileTool{})
	registry.Register(&SearchReplaceTool{})
	registry.Register(&DeleteFileTool{})
	registry.Register(&RunTerminalCmdTool{WorkDir: opts.WorkDir})
	registry.Register(&ListDirTool{})
	registry.Register(&GlobFileSearchTool{})
	registry.Register(&GrepTool{})
	registry.Register(&CodebaseSearchTool{})
	registry.Register(&QuerySessionTool{Store: opts.Transcript, SessionID: opts.SessionID})
	registry.Register(NewWebSearchTool())

	for _, p := range opts.Providers {
		registry.Register(NewGatewayTool(p))
	}
}
