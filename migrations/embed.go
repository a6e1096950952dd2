// Package migrations embeds the Postgres schema used by cmd/migrate.
package migrations

import "embed"

// FS holds the versioned up/down migration files.
//
//go:embed *.sql
var FS embed.FS
