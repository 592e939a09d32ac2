// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package outputs

import "strings"

// objectMarkers name output fields that default to an empty object. Checked
// before list markers so names like "migration_steps" stay objects.
var objectMarkers = []string{
	"_changes", "_notes", "_config", "_context", "_metadata", "_settings",
	"_results", "implementation", "code_changes", "files_modified",
	"breaking_changes", "migration_steps",
}

// listMarkers name output fields that default to an empty list.
var listMarkers = []string{
	"_list", "items", "issues", "steps", "questions", "recommendations",
	"blockers", "risks", "gaps", "ambiguities", "_missing", "files_",
}

// ApplyDefaultValues fills still-missing expected outputs with defaults
// inferred from the field name. Unknown names receive no default and remain
// absent.
func ApplyDefaultValues(outputs map[string]interface{}, expected []string) {
	for _, key := range expected {
		if _, present := outputs[key]; present {
			continue
		}
		if v, ok := DefaultValue(key); ok {
			outputs[key] = v
		}
	}
}

// DefaultValue returns the name-inferred default for an output field.
func DefaultValue(name string) (interface{}, bool) {
	lower := strings.ToLower(name)

	switch {
	case strings.Contains(lower, "score"):
		return 0.5, true
	case strings.Contains(lower, "confidence"):
		return "medium", true
	case strings.HasPrefix(lower, "is_"),
		strings.HasPrefix(lower, "has_"),
		strings.HasSuffix(lower, "_ready"):
		return false, true
	}

	for _, marker := range objectMarkers {
		if strings.Contains(lower, marker) {
			return map[string]interface{}{}, true
		}
	}
	for _, marker := range listMarkers {
		if strings.Contains(lower, marker) {
			return []interface{}{}, true
		}
	}

	switch {
	case strings.Contains(lower, "status"):
		return "unknown", true
	case strings.Contains(lower, "count"), strings.Contains(lower, "_num"):
		return 0, true
	}
	return nil, false
}
