// Package migrations embeds the archive's SQL migrations into the binary,
// so the monitor can create its schema without the files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
