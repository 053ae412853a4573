// Package archive stores every received telemetry message in SQLite so the
// monitor keeps a queryable history next to its text log.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
	"github.com/nerrad567/gray-logic-telemetry/migrations"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// ErrDisabled is returned by Open when archive.enabled is false.
var ErrDisabled = errors.New("archive: disabled in configuration")

// Record is one archived message.
type Record struct {
	ID         int64
	ReceivedAt time.Time
	Topic      string
	DeviceID   string
	SensorType string
	Raw        bool
	Payload    string
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	DeviceID   string
	SensorType string
	Topic      string
	Limit      int // default 50, max 1000
}

// Repository defines the archive operations.
type Repository interface {
	Save(ctx context.Context, msg telemetry.Received) error
	List(ctx context.Context, filter Filter) ([]Record, error)
}

// SQLiteRepository reads and writes telemetry_messages.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Store owns the database and the repository on top of it.
type Store struct {
	*SQLiteRepository
	db *database.DB
}

// Open opens the archive database and applies the embedded migrations.
func Open(ctx context.Context, cfg config.ArchiveConfig) (*Store, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating archive: %w", err)
	}

	return &Store{
		SQLiteRepository: NewSQLiteRepository(db.DB),
		db:               db,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// HealthCheck verifies the archive database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Save inserts one message. Raw payloads are stored with raw=1 and no
// device or sensor type.
func (r *SQLiteRepository) Save(ctx context.Context, msg telemetry.Received) error {
	d := msg.Decoded

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	var deviceID string
	if !d.Raw && d.Has("device_id") {
		deviceID = d.Get("device_id")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO telemetry_messages (received_at, topic, device_id, sensor_type, raw, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		receivedAt.UTC().Format(time.RFC3339Nano),
		msg.Topic,
		nullableString(deviceID),
		nullableString(d.SensorType()),
		d.Raw,
		d.Payload,
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry message: %w", err)
	}
	return nil
}

// Forward implements the monitor's forwarder interface.
func (r *SQLiteRepository) Forward(ctx context.Context, msg telemetry.Received) error {
	return r.Save(ctx, msg)
}

// Recent returns the newest n messages, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, n int) ([]Record, error) {
	return r.List(ctx, Filter{Limit: n})
}

// List returns messages matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Record, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	var (
		conditions []string
		args       []any
	)
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.SensorType != "" {
		conditions = append(conditions, "sensor_type = ?")
		args = append(args, filter.SensorType)
	}
	if filter.Topic != "" {
		conditions = append(conditions, "topic = ?")
		args = append(args, filter.Topic)
	}

	query := `SELECT id, received_at, topic, device_id, sensor_type, raw, payload FROM telemetry_messages`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry messages: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			receivedAt string
			deviceID   sql.NullString
			sensorType sql.NullString
		)
		if err := rows.Scan(&rec.ID, &receivedAt, &rec.Topic, &deviceID, &sensorType, &rec.Raw, &rec.Payload); err != nil {
			return nil, fmt.Errorf("scanning telemetry message: %w", err)
		}
		rec.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt) //nolint:errcheck // Format is written by Save
		rec.DeviceID = deviceID.String
		rec.SensorType = sensorType.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry messages: %w", err)
	}
	return records, nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
