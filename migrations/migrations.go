// Package migrations embeds the schema migration files so the binary can
// migrate its own database at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
