// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolkit

import "encoding/json"

// JSONSchema represents a JSON Schema for tool parameters.
// This follows the JSON Schema spec for type definitions.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []interface{}          `json:"enum,omitempty"`
	Default     interface{}            `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
}

// ToJSON converts the schema to JSON bytes.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// NewObjectSchema creates a new object schema with the given properties.
func NewObjectSchema(description string, properties map[string]*JSONSchema, required []string) *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}

// NewStringSchema creates a new string schema.
func NewStringSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: description}
}

// NewIntegerSchema creates a new integer schema.
func NewIntegerSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "integer", Description: description}
}

// NewBooleanSchema creates a new boolean schema.
func NewBooleanSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "boolean", Description: description}
}

// NewArraySchema creates a new array schema with the given item type.
func NewArraySchema(description string, items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: "array", Description: description, Items: items}
}

// WithEnum restricts the schema to the given values.
func (s *JSONSchema) WithEnum(values ...interface{}) *JSONSchema {
	s.Enum = values
	return s
}

// WithDefault sets the default value.
func (s *JSONSchema) WithDefault(v interface{}) *JSONSchema {
	s.Default = v
	return s
}

// WithLength sets the min/max string length.
func (s *JSONSchema) WithLength(min, max *int) *JSONSchema {
	s.MinLength = min
	s.MaxLength = max
	return s
}

// NormalizeSchema ensures a schema is structurally complete: object types get
// non-nil properties, missing types are inferred, nested schemas recurse.
// Some providers strictly validate tool schemas and reject sloppy ones.
func NormalizeSchema(schema *JSONSchema) *JSONSchema {
	if schema == nil {
		return nil
	}

	if schema.Type == "object" {
		if schema.Properties == nil {
			schema.Properties = make(map[string]*JSONSchema)
		}
		for key, prop := range schema.Properties {
			schema.Properties[key] = NormalizeSchema(prop)
		}
	}

	if schema.Type == "array" && schema.Items != nil {
		schema.Items = NormalizeSchema(schema.Items)
	}

	if schema.Type == "" {
		switch {
		case schema.Properties != nil:
			schema.Type = "object"
			for key, prop := range schema.Properties {
				schema.Properties[key] = NormalizeSchema(prop)
			}
		case schema.Items != nil:
			schema.Type = "array"
			schema.Items = NormalizeSchema(schema.Items)
		case len(schema.Enum) > 0:
			schema.Type = "string"
		}
	}

	return schema
}
