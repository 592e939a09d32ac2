// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolkit

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateArgs checks tool arguments against the tool's input schema before
// execution, so malformed model output fails with a precise message instead
// of a confusing tool error.
func ValidateArgs(tool Tool, args map[string]interface{}) error {
	schema := NormalizeSchema(tool.InputSchema())
	if schema == nil {
		return nil
	}
	raw, err := schema.ToJSON()
	if err != nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(raw),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		// A broken schema is a tool-author bug, not a model error.
		return nil
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid arguments for %s: %s", tool.Name(), strings.Join(msgs, "; "))
}
