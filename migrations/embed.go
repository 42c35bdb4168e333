// Package migrations holds the destination schema as ordered SQL files.
package migrations

import "embed"

// FS contains every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
