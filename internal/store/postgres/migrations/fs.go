// Package migrations embeds the Postgres schema files. Neither service
// applies them at startup; the database is migrated beforehand.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
