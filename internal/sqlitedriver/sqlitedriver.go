// Copyright © 2026 Weft Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package sqlitedriver registers the pure-Go SQLite database/sql driver
// under the name "sqlite3" so callers never depend on the driver module
// directly.
//
// Import this package for its side effects only:
//
//	import _ "github.com/weft-labs/weft/internal/sqlitedriver"
package sqlitedriver

import (
	"database/sql"

	"modernc.org/sqlite"
)

func init() {
	sql.Register("sqlite3", &sqlite.Driver{})
}
