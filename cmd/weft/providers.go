// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/weft-labs/weft/pkg/types"
)

// ProviderFactory builds a provider for a model identifier.
type ProviderFactory func(model string) (types.Provider, error)

// providerFactories maps --provider values to constructors. The engine ships
// no bindings of its own; provider packages register themselves from init
// functions when linked into the binary.
var providerFactories = map[string]ProviderFactory{}

// RegisterProvider makes a provider available to the run command. Later
// registrations under the same name win.
func RegisterProvider(name string, factory ProviderFactory) {
	providerFactories[name] = factory
}

func resolveProvider(name, model string) (types.Provider, error) {
	if len(providerFactories) == 0 {
		return nil, fmt.Errorf("no LLM providers linked into this build; see RegisterProvider")
	}
	if name == "" && len(providerFactories) == 1 {
		for _, factory := range providerFactories {
			return factory(model)
		}
	}
	factory, ok := providerFactories[name]
	if !ok {
		names := make([]string, 0, len(providerFactories))
		for n := range providerFactories {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown provider %q (available: %s)", name, strings.Join(names, ", "))
	}
	return factory(model)
}
