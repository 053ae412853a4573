package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

const (
	dirPermissions    = 0o750
	filePermissions   = 0o600
	connectionTimeout = 5 * time.Second
	connMaxIdleTime   = 30 * time.Minute

	// defaultBusyTimeout applies when the configured timeout is zero.
	defaultBusyTimeout = 5 * time.Second
)

// ErrNoPath is returned by Open when no database path is configured.
var ErrNoPath = errors.New("database: path is empty")

// DB is a SQLite connection pool with migration support.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens the SQLite file named in cfg.
//
// It performs the following setup:
//  1. Creates the parent directory if it doesn't exist
//  2. Opens the file with busy timeout and foreign keys enabled
//  3. Enables WAL journaling when cfg.WALMode is set
//  4. Verifies the connection with a ping
//  5. Restricts the file to owner read/write
//
// Parameters:
//   - cfg: Archive section; Path is required, WALMode and BusyTimeout are optional
//
// Returns:
//   - *DB: Open pool limited to one connection
//   - error: ErrNoPath, or a wrapped open/ping failure
func Open(cfg config.ArchiveConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // In-memory or not yet flushed files have nothing to chmod

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// dsn builds the go-sqlite3 connection string.
// See: https://github.com/mattn/go-sqlite3#connection-string
func dsn(cfg config.ArchiveConfig) string {
	busy := defaultBusyTimeout
	if cfg.BusyTimeout > 0 {
		busy = time.Duration(cfg.BusyTimeout) * time.Second
	}

	s := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, busy.Milliseconds())
	if cfg.WALMode {
		s += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return s
}

// Close closes the connection pool. Safe on a nil or zero DB.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the database answers a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
