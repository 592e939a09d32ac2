// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package outputs extracts declared stage outputs from free-form LLM text.
// The parse pipeline tries fenced JSON first, then progressively looser
// strategies down to key-by-key balanced scanning over the raw content.
package outputs

import (
	"encoding/json"
	"regexp"
	"strings"
)

// maxScanLength caps balanced-scan extraction so a runaway response cannot
// stall the parser.
const maxScanLength = 500_000

var (
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

	// Fenced block variants in preference order.
	fencedJSONNewline = regexp.MustCompile("(?s)```json[ \t]*\n(.*?)\n[ \t]*```")
	fencedJSONInline  = regexp.MustCompile("(?s)```json[ \t]*(\\{.*?\\}|\\[.*?\\])[ \t]*```")
	fencedAny         = regexp.MustCompile("(?s)```[a-zA-Z0-9]*[ \t]*\n?(.*?)```")
	fencedTrailing    = regexp.MustCompile("(?s)```(?:json)?[ \t]*\n?([^`]*)$")

	primitivePattern = regexp.MustCompile(`^(true|false|null|-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?)`)
)

// ParseStageOutputs returns a mapping whose keys are a subset of expected,
// with still-missing keys filled by ApplyDefaultValues.
func ParseStageOutputs(content string, expected []string) map[string]interface{} {
	outputs := make(map[string]interface{})
	if len(expected) == 0 {
		return outputs
	}

	cleaned := CleanContent(content)
	payload := extractJSONPayload(cleaned)
	normalized := NormalizeJSON(payload)

	var parsed interface{}
	if err := json.Unmarshal([]byte(normalized), &parsed); err == nil {
		if obj, ok := parsed.(map[string]interface{}); ok {
			for _, key := range expected {
				if v, present := obj[key]; present {
					outputs[key] = v
				}
			}
			// Still-missing keys: scan sibling fenced blocks, then nested
			// objects of the primary payload.
			for _, key := range expected {
				if _, present := outputs[key]; present {
					continue
				}
				if v, found := scanSiblingBlocks(cleaned, key); found {
					outputs[key] = v
					continue
				}
				if v, found := findKeyDeep(obj, key); found {
					outputs[key] = v
				}
			}
		}
	}

	// Parse failure (or non-object payload): key-by-key extraction against
	// the raw cleaned content.
	if len(outputs) == 0 {
		for _, key := range expected {
			if v, found := ExtractKeyValue(cleaned, key); found {
				outputs[key] = v
			}
		}
	}

	ApplyDefaultValues(outputs, expected)
	return outputs
}

// CleanContent strips ANSI escapes, [CTRL] markers, and non-whitespace C0
// control characters.
func CleanContent(content string) string {
	content = ansiPattern.ReplaceAllString(content, "")
	content = strings.ReplaceAll(content, "[CTRL]", "")
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// extractJSONPayload picks the most promising JSON payload from fenced code
// blocks, falling back to the whole content.
func extractJSONPayload(content string) string {
	if m := fencedJSONNewline.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	if m := fencedJSONInline.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	for _, m := range fencedAny.FindAllStringSubmatch(content, -1) {
		inner := strings.TrimSpace(m[1])
		if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
			return inner
		}
	}
	if m := fencedAny.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	// Unclosed trailing fence.
	if strings.Contains(content, "```") {
		if m := fencedTrailing.FindStringSubmatch(content); m != nil {
			inner := strings.TrimSpace(m[1])
			if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
				return inner
			}
		}
	}
	return content
}

// NormalizeJSON trims surrounding prose down to the first balanced JSON value
// and applies lenient fix-ups for common LLM mistakes: trailing commas,
// duplicate commas, and missing commas between adjacent values at line
// breaks.
func NormalizeJSON(payload string) string {
	s := strings.TrimSpace(payload)
	if clipped, ok := clipBalanced(s); ok {
		s = clipped
	}
	s = fixLenient(s)
	return s
}

var (
	trailingCommaObj = regexp.MustCompile(`,\s*}`)
	trailingCommaArr = regexp.MustCompile(`,\s*]`)
	duplicateCommas  = regexp.MustCompile(`,\s*,`)
	missingCommaArr  = regexp.MustCompile(`]\s*\n\s*\[`)
	missingCommaObj  = regexp.MustCompile(`}\s*\n\s*{`)
)

func fixLenient(s string) string {
	for duplicateCommas.MatchString(s) {
		s = duplicateCommas.ReplaceAllString(s, ",")
	}
	s = trailingCommaObj.ReplaceAllString(s, "}")
	s = trailingCommaArr.ReplaceAllString(s, "]")
	s = missingCommaArr.ReplaceAllString(s, "],[")
	s = missingCommaObj.ReplaceAllString(s, "},{")
	return s
}

// clipBalanced finds the first '{' or '[' and returns the substring through
// its matching close bracket, honoring JSON string escaping.
func clipBalanced(s string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if s[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	limit := len(s)
	if limit > start+maxScanLength {
		limit = start + maxScanLength
	}
	for i := start; i < limit; i++ {
		ch := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// scanSiblingBlocks looks for key in every fenced JSON block of the content.
func scanSiblingBlocks(content, key string) (interface{}, bool) {
	for _, m := range fencedAny.FindAllStringSubmatch(content, -1) {
		normalized := NormalizeJSON(m[1])
		var parsed interface{}
		if err := json.Unmarshal([]byte(normalized), &parsed); err != nil {
			continue
		}
		obj, ok := parsed.(map[string]interface{})
		if !ok {
			continue
		}
		if v, present := obj[key]; present {
			return v, true
		}
		if v, found := findKeyDeep(obj, key); found {
			return v, true
		}
	}
	return nil, false
}

// findKeyDeep searches nested objects breadth-first for key.
func findKeyDeep(obj map[string]interface{}, key string) (interface{}, bool) {
	queue := []map[string]interface{}{obj}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if v, present := cur[key]; present {
			return v, true
		}
		for _, v := range cur {
			switch t := v.(type) {
			case map[string]interface{}:
				queue = append(queue, t)
			case []interface{}:
				for _, elem := range t {
					if m, ok := elem.(map[string]interface{}); ok {
						queue = append(queue, m)
					}
				}
			}
		}
	}
	return nil, false
}

// ExtractKeyValue searches raw content for `"key": <value>` and extracts the
// value with a scanner appropriate to its leading sigil.
func ExtractKeyValue(content, key string) (interface{}, bool) {
	keyPattern := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*`)
	loc := keyPattern.FindStringIndex(content)
	if loc == nil {
		return nil, false
	}
	rest := content[loc[1]:]
	if len(rest) == 0 {
		return nil, false
	}

	switch rest[0] {
	case '"':
		if s, ok := scanJSONString(rest); ok {
			return s, true
		}
	case '{':
		if raw, ok := scanBalanced(rest, '{', '}'); ok {
			var v map[string]interface{}
			if err := json.Unmarshal([]byte(fixLenient(raw)), &v); err == nil {
				return v, true
			}
		}
	case '[':
		if raw, ok := scanBalanced(rest, '[', ']'); ok {
			var v []interface{}
			if err := json.Unmarshal([]byte(fixLenient(raw)), &v); err == nil {
				return v, true
			}
		}
	default:
		if m := primitivePattern.FindString(rest); m != "" {
			var v interface{}
			if err := json.Unmarshal([]byte(m), &v); err == nil {
				return v, true
			}
		}
	}
	return nil, false
}

// scanJSONString decodes a leading JSON string literal with escape handling.
func scanJSONString(s string) (string, bool) {
	if len(s) == 0 || s[0] != '"' {
		return "", false
	}
	limit := len(s)
	if limit > maxScanLength {
		limit = maxScanLength
	}
	escaped := false
	for i := 1; i < limit; i++ {
		if escaped {
			escaped = false
			continue
		}
		switch s[i] {
		case '\\':
			escaped = true
		case '"':
			var out string
			if err := json.Unmarshal([]byte(s[:i+1]), &out); err != nil {
				return "", false
			}
			return out, true
		}
	}
	return "", false
}

// scanBalanced returns the leading balanced bracket expression.
func scanBalanced(s string, open, close byte) (string, bool) {
	if len(s) == 0 || s[0] != open {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	limit := len(s)
	if limit > maxScanLength {
		limit = maxScanLength
	}
	for i := 0; i < limit; i++ {
		ch := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
