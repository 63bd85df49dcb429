// Package migrations carries the SQL schema for the HomeLink device
// store, embedded so a deployed binary needs no SQL files on disk.
//
// Files pair YYYYMMDD_HHMMSS_description.up.sql with a .down.sql
// rollback; the database package applies them at startup.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// FS returns the embedded migration files.
func FS() fs.FS {
	return files
}
