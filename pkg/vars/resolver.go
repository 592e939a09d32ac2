// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package vars

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/weft-labs/weft/pkg/types"
)

// NotSpecified is substituted for missing $ARG_* and $CONTEXT_* references so
// optional arguments stay safe in templates without surrounding conditionals.
const NotSpecified = "Not specified"

// refPattern matches $SCOPE_PATH references. The path is dotted; segments
// allow letters, digits, underscore and hyphen. The first segment may be
// numeric for positional args ($ARG_1).
var refPattern = regexp.MustCompile(`\$(ARG|STAGE|CONTEXT|ENV)_([A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)*)`)

// Ref is one extracted variable reference.
type Ref struct {
	Full  string
	Scope string
	Path  string
}

// ExtractVariables returns every reference in s, in order of appearance.
func ExtractVariables(s string) []Ref {
	matches := refPattern.FindAllStringSubmatch(s, -1)
	refs := make([]Ref, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Ref{Full: m[0], Scope: m[1], Path: m[2]})
	}
	return refs
}

// HasVariables reports whether s contains at least one reference.
func HasVariables(s string) bool {
	return refPattern.MatchString(s)
}

// Resolver substitutes variable references. In strict mode (the default) an
// unresolvable reference is an error; non-strict mode leaves the literal
// $SCOPE_PATH text in place and is used only by diagnostic paths.
type Resolver struct {
	ctx    *Context
	strict bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// NonStrict leaves unresolved references as literals instead of failing.
func NonStrict() Option {
	return func(r *Resolver) { r.strict = false }
}

// NewResolver creates a strict resolver over the given context.
func NewResolver(ctx *Context, opts ...Option) *Resolver {
	r := &Resolver{ctx: ctx, strict: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Context returns the resolver's variable context.
func (r *Resolver) Context() *Context {
	return r.ctx
}

// Resolve walks value recursively, substituting references inside strings.
// Non-string leaves are returned as-is. A string that consists of exactly one
// reference resolves to the referenced value itself, preserving its type;
// references embedded in longer strings render through string coercion.
func (r *Resolver) Resolve(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return r.resolveString(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, elem := range v {
			resolved, err := r.Resolve(elem)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			resolved, err := r.Resolve(elem)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// ResolveInputs resolves a stage's input mapping.
func (r *Resolver) ResolveInputs(inputs map[string]interface{}) (map[string]interface{}, error) {
	resolved, err := r.Resolve(inputs)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return map[string]interface{}{}, nil
	}
	return resolved.(map[string]interface{}), nil
}

// ResolveString substitutes references in s and coerces the result to a
// string.
func (r *Resolver) ResolveString(s string) (string, error) {
	v, err := r.resolveString(s)
	if err != nil {
		return "", err
	}
	return CoerceString(v), nil
}

func (r *Resolver) resolveString(s string) (interface{}, error) {
	// A lone reference keeps the referenced value's type.
	if m := refPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		v, err := r.lookup(m[0], m[1], m[2])
		if err != nil {
			if !r.strict {
				return s, nil
			}
			return nil, err
		}
		return v, nil
	}

	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(full string) string {
		m := refPattern.FindStringSubmatch(full)
		v, err := r.lookup(m[0], m[1], m[2])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return full
		}
		return CoerceString(v)
	})
	if firstErr != nil && r.strict {
		return nil, firstErr
	}
	return out, nil
}

// ValidateVariables walks value without mutating and returns a message for
// every reference that would fail strict resolution.
func (r *Resolver) ValidateVariables(value interface{}) []string {
	var msgs []string
	r.validate(value, &msgs)
	return msgs
}

func (r *Resolver) validate(value interface{}, msgs *[]string) {
	switch v := value.(type) {
	case string:
		for _, ref := range ExtractVariables(v) {
			if _, err := r.lookup(ref.Full, ref.Scope, ref.Path); err != nil {
				*msgs = append(*msgs, err.Error())
			}
		}
	case map[string]interface{}:
		for _, elem := range v {
			r.validate(elem, msgs)
		}
	case []interface{}:
		for _, elem := range v {
			r.validate(elem, msgs)
		}
	}
}

// lookup resolves one reference according to the per-scope miss semantics:
// ARG and CONTEXT misses yield "Not specified", an unknown STAGE yields nil,
// a missing property inside a known stage fails, and ENV misses always fail.
func (r *Resolver) lookup(full, scope, path string) (interface{}, error) {
	segments := strings.Split(path, ".")

	switch scope {
	case "ARG":
		r.ctx.mu.RLock()
		root, ok := r.ctx.args[segments[0]]
		if !ok {
			root, ok = r.ctx.args[toKebab(segments[0])]
		}
		if !ok {
			root, ok = r.ctx.args[toSnake(segments[0])]
		}
		r.ctx.mu.RUnlock()
		if !ok {
			return NotSpecified, nil
		}
		v, found := traverse(root, segments[1:])
		if !found {
			return NotSpecified, nil
		}
		return v, nil

	case "STAGE":
		r.ctx.mu.RLock()
		rec, ok := r.ctx.stages[segments[0]]
		r.ctx.mu.RUnlock()
		if !ok {
			// Conditionally-skipped or not-yet-run upstream: downstream
			// stages handle nil gracefully.
			return nil, nil
		}
		if len(segments) == 1 {
			return rec, nil
		}
		v, found := traverse(rec, segments[1:])
		if !found {
			return nil, &types.VariableNotFoundError{
				Reference: full,
				Scope:     scope,
				Path:      path,
				Available: sortedKeys(rec),
				Hint:      fmt.Sprintf("stage %q completed but did not produce this output; the LLM may have returned incomplete output", segments[0]),
			}
		}
		return v, nil

	case "CONTEXT":
		r.ctx.mu.RLock()
		v, found := traverse(r.ctx.session, segments)
		r.ctx.mu.RUnlock()
		if !found {
			return NotSpecified, nil
		}
		return v, nil

	case "ENV":
		r.ctx.mu.RLock()
		v, ok := r.ctx.env[path]
		r.ctx.mu.RUnlock()
		if !ok {
			return nil, &types.VariableNotFoundError{
				Reference: full,
				Scope:     scope,
				Path:      path,
				Hint:      "environment variable not set",
			}
		}
		return v, nil
	}

	return nil, fmt.Errorf("unknown variable scope in %s", full)
}

// traverse walks a dotted path through nested mappings.
func traverse(root interface{}, segments []string) (interface{}, bool) {
	cur := root
	for _, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// CoerceString renders a resolved value into a template string. Booleans and
// numbers render canonically, nil renders empty, and composite values render
// as compact JSON.
func CoerceString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
