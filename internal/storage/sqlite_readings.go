package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

type sqliteReadingRepo struct {
	db *sql.DB
}

const readingColumns = `id, entity_id, device_id, provider, latitude, longitude, ts,
	speed, heading, altitude, accuracy, battery_level, signal_strength, raw_payload`

func (r *sqliteReadingRepo) Append(ctx context.Context, rd *models.LocationReading) error {
	defer observe("reading_append")()

	query := `INSERT INTO location_readings (` + readingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rd.ID, rd.EntityID, rd.DeviceID, rd.Provider, rd.Latitude, rd.Longitude, toNanos(rd.Timestamp),
		rd.Speed, rd.Heading, rd.Altitude, rd.Accuracy, rd.BatteryLevel, rd.SignalStrength,
		nullString(string(rd.RawPayload)),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (r *sqliteReadingRepo) Latest(ctx context.Context, entityID string) (*models.LocationReading, error) {
	defer observe("reading_latest")()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+readingColumns+` FROM location_readings WHERE entity_id = ? ORDER BY ts DESC LIMIT 1`, entityID)
	rd, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return rd, nil
}

func (r *sqliteReadingRepo) Range(ctx context.Context, entityID string, from, to time.Time) ([]*models.LocationReading, error) {
	defer observe("reading_range")()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM location_readings
		WHERE entity_id = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC`,
		entityID, toNanos(from), toNanos(to))
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.LocationReading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, rd)
	}
	return readings, rows.Err()
}

func scanReading(s rowScanner) (*models.LocationReading, error) {
	rd := &models.LocationReading{}
	var ts int64
	var raw sql.NullString
	err := s.Scan(&rd.ID, &rd.EntityID, &rd.DeviceID, &rd.Provider, &rd.Latitude, &rd.Longitude, &ts,
		&rd.Speed, &rd.Heading, &rd.Altitude, &rd.Accuracy, &rd.BatteryLevel, &rd.SignalStrength, &raw)
	if err != nil {
		return nil, err
	}
	rd.Timestamp = fromNanos(ts)
	if raw.Valid {
		rd.RawPayload = []byte(raw.String)
	}
	return rd, nil
}
