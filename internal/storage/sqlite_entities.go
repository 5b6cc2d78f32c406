package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

type sqliteEntityRepo struct {
	db *sql.DB
}

const entityColumns = `id, name, species, active, last_lat, last_lng, last_update,
	battery_level, signal_strength, online, health_ok, created_at`

func (r *sqliteEntityRepo) Create(ctx context.Context, e *models.Entity) error {
	query := `INSERT INTO entities (` + entityColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Name, nullString(e.Species), boolToInt(e.Active),
		e.LastLatitude, e.LastLongitude, toNanos(e.LastUpdate),
		e.BatteryLevel, e.SignalStrength, boolToInt(e.Online), boolToInt(e.HealthOK),
		toNanos(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

func (r *sqliteEntityRepo) GetByID(ctx context.Context, id string) (*models.Entity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

func (r *sqliteEntityRepo) ListActive(ctx context.Context) ([]*models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (r *sqliteEntityRepo) UpdateState(ctx context.Context, e *models.Entity) error {
	query := `
		UPDATE entities SET last_lat = ?, last_lng = ?, last_update = ?,
			battery_level = ?, signal_strength = ?, online = ?, health_ok = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		e.LastLatitude, e.LastLongitude, toNanos(e.LastUpdate),
		e.BatteryLevel, e.SignalStrength, boolToInt(e.Online), boolToInt(e.HealthOK),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("update entity state: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("entity not found: %s", e.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(s rowScanner) (*models.Entity, error) {
	e := &models.Entity{}
	var species sql.NullString
	var active, online, healthOK int
	var lastUpdate, createdAt int64
	err := s.Scan(&e.ID, &e.Name, &species, &active, &e.LastLatitude, &e.LastLongitude, &lastUpdate,
		&e.BatteryLevel, &e.SignalStrength, &online, &healthOK, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Species = species.String
	e.Active = active == 1
	e.Online = online == 1
	e.HealthOK = healthOK == 1
	e.LastUpdate = fromNanos(lastUpdate)
	e.CreatedAt = fromNanos(createdAt)
	return e, nil
}

type sqliteDeviceRepo struct {
	db *sql.DB
}

func (r *sqliteDeviceRepo) Create(ctx context.Context, d *models.Device) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (device_id, entity_id, provider, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		d.DeviceID, d.EntityID, nullString(d.Provider), boolToInt(d.Active), toNanos(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (r *sqliteDeviceRepo) GetByDeviceID(ctx context.Context, deviceID string) (*models.Device, error) {
	d := &models.Device{}
	var provider sql.NullString
	var active int
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT device_id, entity_id, provider, active, created_at FROM devices WHERE device_id = ?`, deviceID,
	).Scan(&d.DeviceID, &d.EntityID, &provider, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	d.Provider = provider.String
	d.Active = active == 1
	d.CreatedAt = fromNanos(createdAt)
	return d, nil
}
