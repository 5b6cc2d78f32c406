package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS entities (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				species TEXT,
				active INTEGER NOT NULL DEFAULT 1,
				last_lat REAL NOT NULL DEFAULT 0,
				last_lng REAL NOT NULL DEFAULT 0,
				last_update INTEGER NOT NULL DEFAULT 0,
				battery_level INTEGER NOT NULL DEFAULT 100,
				signal_strength INTEGER NOT NULL DEFAULT -50,
				online INTEGER NOT NULL DEFAULT 0,
				health_ok INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS devices (
				device_id TEXT PRIMARY KEY,
				entity_id TEXT NOT NULL,
				provider TEXT,
				active INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL,
				FOREIGN KEY (entity_id) REFERENCES entities(id)
			);

			CREATE TABLE IF NOT EXISTS location_readings (
				id TEXT PRIMARY KEY,
				entity_id TEXT NOT NULL,
				device_id TEXT NOT NULL,
				provider TEXT NOT NULL,
				latitude REAL NOT NULL,
				longitude REAL NOT NULL,
				ts INTEGER NOT NULL,
				speed REAL NOT NULL DEFAULT 0,
				heading REAL NOT NULL DEFAULT 0,
				altitude REAL NOT NULL DEFAULT 0,
				accuracy REAL NOT NULL DEFAULT 0,
				battery_level INTEGER NOT NULL DEFAULT 100,
				signal_strength INTEGER NOT NULL DEFAULT -50,
				raw_payload TEXT,
				FOREIGN KEY (entity_id) REFERENCES entities(id)
			);

			CREATE TABLE IF NOT EXISTS geofences (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				center_lat REAL NOT NULL,
				center_lng REAL NOT NULL,
				radius_meters REAL NOT NULL,
				kind TEXT NOT NULL,
				assigned_json TEXT NOT NULL DEFAULT '[]',
				active INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				entity_id TEXT NOT NULL,
				geofence_key TEXT NOT NULL DEFAULT '',
				geofence_name TEXT,
				entity_name TEXT,
				kind TEXT NOT NULL,
				level TEXT NOT NULL,
				message TEXT NOT NULL,
				snapshot_json TEXT NOT NULL,
				distance_meters REAL NOT NULL DEFAULT 0,
				stationary_hours REAL NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL,
				sent INTEGER NOT NULL DEFAULT 0,
				sent_at INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE IF NOT EXISTS recipients (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				phone TEXT,
				email TEXT,
				sms_enabled INTEGER NOT NULL DEFAULT 1,
				email_enabled INTEGER NOT NULL DEFAULT 1,
				active INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_readings_entity_ts ON location_readings(entity_id, ts);
			CREATE INDEX IF NOT EXISTS idx_devices_entity ON devices(entity_id);
			CREATE INDEX IF NOT EXISTS idx_geofences_active ON geofences(active);
			CREATE INDEX IF NOT EXISTS idx_alerts_key ON alerts(entity_id, kind, geofence_key, created_at);
			CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UnixNano(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
