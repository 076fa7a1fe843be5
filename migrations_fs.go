// Package smsfoundation embeds the SQL migration files so the binaries can
// apply schema changes at startup without shipping the directory alongside.
package smsfoundation

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsFS returns the embedded migration tree rooted at "migrations".
func MigrationsFS() fs.FS {
	return migrationsFS
}
