// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/weft-labs/weft/pkg/toolkit"
)

// DefaultSearchEndpoint is the DuckDuckGo instant-answer API, which needs no
// API key.
const DefaultSearchEndpoint = "https://api.duckduckgo.com/"

// WebSearchTool answers queries via the DuckDuckGo instant-answer API.
type WebSearchTool struct {
	client   *http.Client
	endpoint string
}

// NewWebSearchTool creates a web search tool with a bounded HTTP client.
func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: DefaultSearchEndpoint,
	}
}

func (t *WebSearchTool) Name() string   { return "web_search" }
func (t *WebSearchTool) ReadOnly() bool { return true }

func (t *WebSearchTool) Description() string {
	return "Searches the web and returns a short answer with related results. No API key required."
}

func (t *WebSearchTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for a web search",
		map[string]*toolkit.JSONSchema{
			"query": toolkit.NewStringSchema("Search query (required)."),
		},
		[]string{"query"},
	)
}

type instantAnswer struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	query, ok := params["query"].(string)
	if !ok || query == "" {
		return errResult(start, "INVALID_PARAMS", "query is required", "")
	}

	u := fmt.Sprintf("%s?q=%s&format=json&no_html=1", t.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errResult(start, "SEARCH_FAILED", err.Error(), "")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errResult(start, "SEARCH_FAILED", err.Error(), "Check network connectivity")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errResult(start, "SEARCH_FAILED",
			fmt.Sprintf("search endpoint returned %d", resp.StatusCode), "")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxReadSize))
	if err != nil {
		return errResult(start, "SEARCH_FAILED", err.Error(), "")
	}

	var answer instantAnswer
	if err := json.Unmarshal(body, &answer); err != nil {
		return errResult(start, "SEARCH_FAILED", "unparseable search response", "")
	}

	var b strings.Builder
	if answer.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n", answer.Answer)
	}
	if answer.AbstractText != "" {
		fmt.Fprintf(&b, "%s\nSource: %s\n", answer.AbstractText, answer.AbstractURL)
	}
	count := 0
	for _, topic := range answer.RelatedTopics {
		if topic.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s)\n", topic.Text, topic.FirstURL)
		count++
		if count >= 5 {
			break
		}
	}
	if b.Len() == 0 {
		return okResult(start, "No results for: "+query)
	}
	return okResult(start, strings.TrimRight(b.String(), "\n"))
}
