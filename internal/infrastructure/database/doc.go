// Package database provides the SQLite connection used by the telemetry
// archive.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Versioned schema migrations read from any fs.FS (usually embedded)
//   - Health checks and lifecycle
//
// Usage:
//
//	db, err := database.Open(cfg.Archive)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every .up.sql should ship with a .down.sql.
package database
