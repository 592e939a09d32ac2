// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package hooks runs user-configured commands around tool execution.
// PreToolUse hooks can veto or rewrite a tool call; PostToolUse hooks are
// notified after the fact and can never affect the result.
package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Hook event names.
const (
	EventPreToolUse  = "PreToolUse"
	EventPostToolUse = "PostToolUse"
)

// HookSpec is a single command to run for a matched event.
type HookSpec struct {
	Type    string `json:"type,omitempty"`
	Command string `json:"command"`
	// TimeoutMs bounds the command; zero selects the engine default.
	TimeoutMs int `json:"timeout_ms,omitempty"`
	// Async post hooks are fire-and-forget; sync ones are awaited but
	// still cannot affect the tool result.
	Async bool `json:"async,omitempty"`
}

// Matcher binds a tool-name pattern to a list of hooks.
type Matcher struct {
	Matcher string     `json:"matcher"`
	Hooks   []HookSpec `json:"hooks"`
}

// Config is the on-disk hook configuration, keyed by event name.
type Config struct {
	Hooks map[string][]Matcher `json:"hooks"`
}

// matches reports whether the matcher applies to a tool. An empty pattern or
// "*" matches every tool; anything else is a full-match regular expression.
// A non-nil error means the pattern was rejected and the matcher skipped.
func (m *Matcher) matches(tool string) (bool, error) {
	pat := strings.TrimSpace(m.Matcher)
	if pat == "" || pat == "*" {
		return true, nil
	}
	if err := checkPattern(pat); err != nil {
		return false, err
	}
	re, err := regexp.Compile("^(?:" + pat + ")$")
	if err != nil {
		return false, fmt.Errorf("invalid matcher %q: %w", pat, err)
	}
	return re.MatchString(tool), nil
}

// checkPattern rejects patterns with quantified groups that themselves
// contain quantifiers, the classic catastrophic-backtracking shape, and
// anything unreasonably long. Go's regexp is linear-time, but hook configs
// are shared with other tooling that may not be.
func checkPattern(pat string) error {
	if len(pat) > 256 {
		return fmt.Errorf("matcher pattern too long (%d chars)", len(pat))
	}
	depth := 0
	innerQuant := make([]bool, 0, 8)
	for i := 0; i < len(pat); i++ {
		switch pat[i] {
		case '\\':
			i++
		case '(':
			depth++
			innerQuant = append(innerQuant, false)
		case ')':
			if depth == 0 {
				return fmt.Errorf("unbalanced parens in matcher %q", pat)
			}
			depth--
			had := innerQuant[len(innerQuant)-1]
			innerQuant = innerQuant[:len(innerQuant)-1]
			if had && i+1 < len(pat) && isQuantifier(pat[i+1]) {
				return fmt.Errorf("nested quantifier in matcher %q", pat)
			}
			if had && len(innerQuant) > 0 {
				innerQuant[len(innerQuant)-1] = true
			}
		case '*', '+', '{':
			if len(innerQuant) > 0 {
				innerQuant[len(innerQuant)-1] = true
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced parens in matcher %q", pat)
	}
	return nil
}

func isQuantifier(c byte) bool {
	return c == '*' || c == '+' || c == '{' || c == '?'
}

// cachedConfig holds one parsed config file plus the mtime it was read at.
type cachedConfig struct {
	config  *Config
	modTime time.Time
}

// configLoader reads hook config files, re-parsing only when mtime changes.
type configLoader struct {
	mu    sync.Mutex
	cache map[string]*cachedConfig
}

func newConfigLoader() *configLoader {
	return &configLoader{cache: make(map[string]*cachedConfig)}
}

// load returns the parsed config at path, or nil when the file is absent.
func (l *configLoader) load(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.cache[path]; ok && c.modTime.Equal(info.ModTime()) {
		return c.config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse hook config %s: %w", path, err)
	}
	l.cache[path] = &cachedConfig{config: &cfg, modTime: info.ModTime()}
	return &cfg, nil
}

// invalidate drops the cached parse for path so the next load re-reads it.
func (l *configLoader) invalidate(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

// mergeConfigs overlays a secondary config under a primary one. Matchers from
// the secondary are appended per event unless the primary already defines the
// same matcher pattern for that event.
func mergeConfigs(primary, secondary *Config) *Config {
	if primary == nil {
		return secondary
	}
	if secondary == nil {
		return primary
	}

	out := &Config{Hooks: make(map[string][]Matcher)}
	for event, matchers := range primary.Hooks {
		out.Hooks[event] = append([]Matcher(nil), matchers...)
	}
	for event, matchers := range secondary.Hooks {
		seen := make(map[string]bool)
		for _, m := range out.Hooks[event] {
			seen[m.Matcher] = true
		}
		for _, m := range matchers {
			if !seen[m.Matcher] {
				out.Hooks[event] = append(out.Hooks[event], m)
			}
		}
	}
	return out
}
