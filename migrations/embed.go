// Package migrations embeds SQL migration files for use at runtime.
// Migrations are embedded so they work regardless of working directory.
//
// Each supported database engine has its own directory because the two
// dialects differ (BIGSERIAL vs AUTOINCREMENT, TIMESTAMPTZ vs TEXT affinity).
// File naming and ordering are shared: NNN_description.sql, applied in
// lexical order.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var root embed.FS

// Postgres returns the migration filesystem for the Postgres backend.
func Postgres() fs.FS {
	sub, err := fs.Sub(root, "postgres")
	if err != nil {
		panic(err) // embed layout is fixed at compile time
	}
	return sub
}

// SQLite returns the migration filesystem for the SQLite backend.
func SQLite() fs.FS {
	sub, err := fs.Sub(root, "sqlite")
	if err != nil {
		panic(err)
	}
	return sub
}
