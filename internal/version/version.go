// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package version exposes the build version injected at link time.
package version

// Version is overridden by -ldflags "-X .../internal/version.Version=vX.Y.Z".
var Version = "dev"

// Get returns the version string.
func Get() string {
	return Version
}
