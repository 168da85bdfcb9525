// Package migrations holds the SQL schema for the escrow store.
package migrations

import "embed"

// FS contains the migration files.
//
//go:embed *.sql
var FS embed.FS
