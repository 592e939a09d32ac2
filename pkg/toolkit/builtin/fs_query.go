// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/weft-labs/weft/pkg/toolkit"
)

const (
	// maxQueryResults bounds list/search tool output.
	maxQueryResults = 200

	// skipDirs are never descended into by walking tools.
	skipDirsPattern = ".git,node_modules,vendor,.orchestrator-state"
)

func shouldSkipDir(name string) bool {
	for _, d := range strings.Split(skipDirsPattern, ",") {
		if name == d {
			return true
		}
	}
	return false
}

// ListDirTool lists the entries of a directory.
type ListDirTool struct{}

func (t *ListDirTool) Name() string   { return "list_dir" }
func (t *ListDirTool) ReadOnly() bool { return true }

func (t *ListDirTool) Description() string {
	return "Lists the entries of a directory. Directories are suffixed with '/'."
}

func (t *ListDirTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for listing a directory",
		map[string]*toolkit.JSONSchema{
			"path": toolkit.NewStringSchema("Directory to list (default '.').").WithDefault("."),
		},
		nil,
	)
}

func (t *ListDirTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	path, _ := params["path"].(string)
	if path == "" {
		path = "."
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return errResult(start, "LIST_FAILED", err.Error(), "Check the directory exists")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return okResult(start, strings.Join(names, "\n"))
}

// GlobFileSearchTool finds files whose path matches a glob pattern.
// A leading "**/" matches any directory depth.
type GlobFileSearchTool struct{}

func (t *GlobFileSearchTool) Name() string   { return "glob_file_search" }
func (t *GlobFileSearchTool) ReadOnly() bool { return true }

func (t *GlobFileSearchTool) Description() string {
	return "Finds files matching a glob pattern, e.g. '**/*.go' or 'cmd/*/main.go'."
}

func (t *GlobFileSearchTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for a glob file search",
		map[string]*toolkit.JSONSchema{
			"pattern": toolkit.NewStringSchema("Glob pattern (required)."),
			"path":    toolkit.NewStringSchema("Directory to search under (default '.').").WithDefault("."),
		},
		[]string{"pattern"},
	)
}

func (t *GlobFileSearchTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	pattern, ok := params["pattern"].(string)
	if !ok || pattern == "" {
		return errResult(start, "INVALID_PARAMS", "pattern is required", "")
	}
	root, _ := params["path"].(string)
	if root == "" {
		root = "."
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if matchGlob(pattern, filepath.ToSlash(rel)) {
			matches = append(matches, rel)
			if len(matches) >= maxQueryResults {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return errResult(start, "SEARCH_FAILED", err.Error(), "")
	}

	sort.Strings(matches)
	if len(matches) == 0 {
		return okResult(start, "No files matched "+pattern)
	}
	return okResult(start, strings.Join(matches, "\n"))
}

// matchGlob matches a slash-separated relative path against a glob where
// "**/" matches any number of leading directories.
func matchGlob(pattern, rel string) bool {
	if strings.HasPrefix(pattern, "**/") {
		tail := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(tail, rel); ok {
			return true
		}
		// Try every suffix of the path.
		parts := strings.Split(rel, "/")
		for i := 1; i < len(parts); i++ {
			if ok, _ := filepath.Match(tail, strings.Join(parts[i:], "/")); ok {
				return true
			}
		}
		return false
	}
	ok, _ := filepath.Match(pattern, rel)
	return ok
}

// GrepTool searches file contents with a regular expression.
type GrepTool struct{}

func (t *GrepTool) Name() string   { return "grep" }
func (t *GrepTool) ReadOnly() bool { return true }

func (t *GrepTool) Description() string {
	return "Searches file contents for a regular expression and returns matching lines as path:line:text."
}

func (t *GrepTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for a content search",
		map[string]*toolkit.JSONSchema{
			"pattern": toolkit.NewStringSchema("Regular expression (required)."),
			"path":    toolkit.NewStringSchema("File or directory to search (default '.').").WithDefault("."),
		},
		[]string{"pattern"},
	)
}

func (t *GrepTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	pattern, ok := params["pattern"].(string)
	if !ok || pattern == "" {
		return errResult(start, "INVALID_PARAMS", "pattern is required", "")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errResult(start, "INVALID_PATTERN", err.Error(), "Use Go regexp syntax")
	}
	root, _ := params["path"].(string)
	if root == "" {
		root = "."
	}

	var lines []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > MaxReadSize {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil || !isText(data) {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				lines = append(lines, fmt.Sprintf("%s:%d:%s", path, i+1, line))
				if len(lines) >= maxQueryResults {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return errResult(start, "SEARCH_FAILED", walkErr.Error(), "")
	}

	if len(lines) == 0 {
		return okResult(start, "No matches for "+pattern)
	}
	return okResult(start, strings.Join(lines, "\n"))
}

// CodebaseSearchTool ranks files by query term frequency. A poor man's
// semantic search that needs no index.
type CodebaseSearchTool struct{}

func (t *CodebaseSearchTool) Name() string   { return "codebase_search" }
func (t *CodebaseSearchTool) ReadOnly() bool { return true }

func (t *CodebaseSearchTool) Description() string {
	return "Searches the codebase for files relevant to a natural-language query, ranked by term overlap."
}

func (t *CodebaseSearchTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for a codebase relevance search",
		map[string]*toolkit.JSONSchema{
			"query": toolkit.NewStringSchema("What to look for (required)."),
			"path":  toolkit.NewStringSchema("Directory to search under (default '.').").WithDefault("."),
		},
		[]string{"query"},
	)
}

func (t *CodebaseSearchTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	query, ok := params["query"].(string)
	if !ok || query == "" {
		return errResult(start, "INVALID_PARAMS", "query is required", "")
	}
	root, _ := params["path"].(string)
	if root == "" {
		root = "."
	}

	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		path  string
		score int
	}
	var results []scored

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > MaxReadSize {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil || !isText(data) {
			return nil
		}
		content := strings.ToLower(string(data))
		score := 0
		for _, term := range terms {
			score += strings.Count(content, term)
		}
		if score > 0 {
			results = append(results, scored{path: path, score: score})
		}
		return nil
	})

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > 10 {
		results = results[:10]
	}
	if len(results) == 0 {
		return okResult(start, "No relevant files found for: "+query)
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%s (score %d)\n", r.path, r.score)
	}
	return okResult(start, strings.TrimRight(b.String(), "\n"))
}

// isText rejects binary content by looking for NUL bytes in the head.
func isText(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	for _, b := range head {
		if b == 0 {
			return false
		}
	}
	return true
}
