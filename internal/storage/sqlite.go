package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/tuskguard/internal/metrics"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	entities   *sqliteEntityRepo
	devices    *sqliteDeviceRepo
	readings   *sqliteReadingRepo
	geofences  *sqliteGeofenceRepo
	alerts     *sqliteAlertRepo
	recipients *sqliteRecipientRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers, which also makes
	// CreateIfQuiet transactions mutually exclusive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.db = db

	s.entities = &sqliteEntityRepo{db: db}
	s.devices = &sqliteDeviceRepo{db: db}
	s.readings = &sqliteReadingRepo{db: db}
	s.geofences = &sqliteGeofenceRepo{db: db}
	s.alerts = &sqliteAlertRepo{db: db}
	s.recipients = &sqliteRecipientRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Entities returns the entity repository.
func (s *SQLiteStorage) Entities() EntityRepository {
	return s.entities
}

// Devices returns the device repository.
func (s *SQLiteStorage) Devices() DeviceRepository {
	return s.devices
}

// Readings returns the location reading repository.
func (s *SQLiteStorage) Readings() ReadingRepository {
	return s.readings
}

// Geofences returns the geofence repository.
func (s *SQLiteStorage) Geofences() GeofenceRepository {
	return s.geofences
}

// Alerts returns the alert repository.
func (s *SQLiteStorage) Alerts() AlertRepository {
	return s.alerts
}

// Recipients returns the recipient repository.
func (s *SQLiteStorage) Recipients() RecipientRepository {
	return s.recipients
}

// observe records the latency of a storage operation. Use as
// defer observe("op")().
func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// Timestamps are stored as unix nanoseconds so range scans compare numerically.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
