// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package builtin provides the built-in tool set the pipeline exposes to the
// model: file manipulation, filesystem queries, shell execution, session
// transcript search, and web search.
package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/weft-labs/weft/pkg/toolkit"
)

const (
	// MaxReadSize guards read tools against huge files.
	MaxReadSize = 1 << 20 // 1 MiB

	// MaxWriteSize keeps written content below provider output limits.
	MaxWriteSize = 256 * 1024
)

func errResult(start time.Time, code, message, suggestion string) (*toolkit.Result, error) {
	return &toolkit.Result{
		Success: false,
		Error: &toolkit.Error{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func okResult(start time.Time, data interface{}) (*toolkit.Result, error) {
	return &toolkit.Result{
		Success:         true,
		Data:            data,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// WriteTool writes content to a file, creating parent directories.
type WriteTool struct{}

func (t *WriteTool) Name() string   { return "write" }
func (t *WriteTool) ReadOnly() bool { return false }

func (t *WriteTool) Description() string {
	return "Writes content to a file, creating parent directories as needed. Overwrites existing content."
}

func (t *WriteTool) InputSchema() *toolkit.JSONSchema {
	maxLen := MaxWriteSize
	return toolkit.NewObjectSchema(
		"Parameters for writing a file",
		map[string]*toolkit.JSONSchema{
			"path":    toolkit.NewStringSchema("File path to write (required)."),
			"content": toolkit.NewStringSchema("Content to write (required).").WithLength(nil, &maxLen),
		},
		[]string{"path", "content"},
	)
}

func (t *WriteTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	path, ok := params["path"].(string)
	if !ok || path == "" {
		return errResult(start, "INVALID_PARAMS", "path is required", "Provide a file path")
	}
	content, ok := params["content"].(string)
	if !ok {
		return errResult(start, "INVALID_PARAMS", "content is required", "Provide the file content")
	}
	if len(content) > MaxWriteSize {
		return errResult(start, "CONTENT_TOO_LARGE",
			fmt.Sprintf("content is %d bytes, max %d", len(content), MaxWriteSize),
			"Split the content across multiple writes")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errResult(start, "WRITE_FAILED", err.Error(), "")
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errResult(start, "WRITE_FAILED", err.Error(), "")
	}
	return okResult(start, fmt.Sprintf("Wrote %d bytes to %s", len(content), path))
}

// ReadFileTool returns a file's content, refusing files over MaxReadSize.
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string   { return "read_file" }
func (t *ReadFileTool) ReadOnly() bool { return true }

func (t *ReadFileTool) Description() string {
	return "Reads a file and returns its content. Files over 1 MiB are refused."
}

func (t *ReadFileTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for reading a file",
		map[string]*toolkit.JSONSchema{
			"path": toolkit.NewStringSchema("File path to read (required)."),
		},
		[]string{"path"},
	)
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	path, ok := params["path"].(string)
	if !ok || path == "" {
		return errResult(start, "INVALID_PARAMS", "path is required", "Provide a file path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return errResult(start, "NOT_FOUND", err.Error(), "Check the path exists")
	}
	if info.Size() > MaxReadSize {
		return errResult(start, "FILE_TOO_LARGE",
			fmt.Sprintf("%s is %d bytes, max %d", path, info.Size(), MaxReadSize),
			"Use grep to extract the relevant part")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errResult(start, "READ_FAILED", err.Error(), "")
	}
	return okResult(start, string(data))
}

// SearchReplaceTool replaces one occurrence of a string in a file.
type SearchReplaceTool struct{}

func (t *SearchReplaceTool) Name() string   { return "search_replace" }
func (t *SearchReplaceTool) ReadOnly() bool { return false }

func (t *SearchReplaceTool) Description() string {
	return "Replaces the first occurrence of old_string with new_string in a file. old_string must match exactly."
}

func (t *SearchReplaceTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for an in-place string replacement",
		map[string]*toolkit.JSONSchema{
			"path":       toolkit.NewStringSchema("File to edit (required)."),
			"old_string": toolkit.NewStringSchema("Exact text to replace (required)."),
			"new_string": toolkit.NewStringSchema("Replacement text (required)."),
		},
		[]string{"path", "old_string", "new_string"},
	)
}

func (t *SearchReplaceTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	path, _ := params["path"].(string)
	oldStr, _ := params["old_string"].(string)
	newStr, _ := params["new_string"].(string)
	if path == "" || oldStr == "" {
		return errResult(start, "INVALID_PARAMS", "path and old_string are required", "")
	}

	info, err := os.Stat(path)
	if err != nil {
		return errResult(start, "NOT_FOUND", err.Error(), "Check the path exists")
	}
	if info.Size() > MaxReadSize {
		return errResult(start, "FILE_TOO_LARGE",
			fmt.Sprintf("%s is %d bytes, max %d", path, info.Size(), MaxReadSize), "")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errResult(start, "READ_FAILED", err.Error(), "")
	}
	content := string(data)
	if !strings.Contains(content, oldStr) {
		return errResult(start, "NO_MATCH", "old_string not found in file",
			"Read the file and copy the exact text to replace")
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return errResult(start, "WRITE_FAILED", err.Error(), "")
	}
	return okResult(start, fmt.Sprintf("Replaced 1 occurrence in %s", path))
}

// DeleteFileTool removes a single file. Directories are refused.
type DeleteFileTool struct{}

func (t *DeleteFileTool) Name() string   { return "delete_file" }
func (t *DeleteFileTool) ReadOnly() bool { return false }

func (t *DeleteFileTool) Description() string {
	return "Deletes a single file. Refuses directories."
}

func (t *DeleteFileTool) InputSchema() *toolkit.JSONSchema {
	return toolkit.NewObjectSchema(
		"Parameters for deleting a file",
		map[string]*toolkit.JSONSchema{
			"path": toolkit.NewStringSchema("File path to delete (required)."),
		},
		[]string{"path"},
	)
}

func (t *DeleteFileTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.Result, error) {
	start := time.Now()

	path, ok := params["path"].(string)
	if !ok || path == "" {
		return errResult(start, "INVALID_PARAMS", "path is required", "")
	}

	info, err := os.Stat(path)
	if err != nil {
		return errResult(start, "NOT_FOUND", err.Error(), "")
	}
	if info.IsDir() {
		return errResult(start, "IS_DIRECTORY", path+" is a directory",
			"Use run_terminal_cmd for directory removal")
	}
	if err := os.Remove(path); err != nil {
		return errResult(start, "DELETE_FAILED", err.Error(), "")
	}
	return okResult(start, "Deleted "+path)
}
