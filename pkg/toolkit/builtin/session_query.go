// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"strings"
	"time"

	"github.com/weft-labs/weft/pkg/toolkit"
)

// TranscriptQuerier searches the persisted session transcript.
type TranscriptQuerier interface {
	SearchMessages(ctx context.Context, sessionID, query string, limit int) ([]string, error)
}

// QuerySessionTool searches the current session's transcript for earlier
// messages matching a query.
type QuerySessionTool struct {
	Store     TranscriptQuerier
	SessionID string
}

func (t *QuerySessionTool) Name() string   { return "query_session" }
func (t *QuerySessionTool) ReadOnly() bool { return true }

func (t *QuerySessionTool) Description() string {
	return "Searches the current session transcript for messages matching a query."
}

func (t *QuerySessionTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for a session transcript search",
		map[string]*toolkit.JSONSchema{
			"query": toolkit.NewStringSchema("Text to search for (required)."),
			"limit": toolkit.NewIntegerSchema("Maximum matches to return (default 10).").WithDefault(10),
		},
		[]string{"query"},
	)
}

func (t *QuerySessionTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	query, ok := params["query"].(string)
	if !ok || query == "" {
		return errResult(start, "INVALID_PARAMS", "query is required", "")
	}
	limit := 10
	if n, ok := params["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}
	if t.Store == nil {
		return errResult(start, "NO_SESSION", "no session store configured", "")
	}

	matches, err := t.Store.SearchMessages(ctx, t.SessionID, query, limit)
	if err != nil {
		return errResult(start, "QUERY_FAILED", err.Error(), "")
	}
	if len(matches) == 0 {
		return okResult(start, "No transcript messages matched: "+query)
	}
	return okResult(start, strings.Join(matches, "\n---\n"))
}
