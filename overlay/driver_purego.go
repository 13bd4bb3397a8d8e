//go:build !cgo_sqlite

package overlay

import (
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	driverName = "sqlite"
	driverType = "purego"
)
