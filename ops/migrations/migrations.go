// Package migrations embeds the schema and seed SQL applied by
// internal/migrate.
package migrations

import "embed"

// Dirs inside FS.
const (
	SQLDir   = "sql"
	SeedsDir = "seeds"
)

//go:embed sql/*.sql seeds/*.sql
var FS embed.FS
