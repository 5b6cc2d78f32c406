package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("not found")

type sqliteGeofenceRepo struct {
	db *sql.DB
}

const geofenceColumns = `id, name, center_lat, center_lng, radius_meters, kind,
	assigned_json, active, created_at, updated_at`

func (r *sqliteGeofenceRepo) Create(ctx context.Context, g *models.Geofence) error {
	assigned, err := marshalAssigned(g.AssignedEntity)
	if err != nil {
		return err
	}
	query := `INSERT INTO geofences (` + geofenceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		g.ID, g.Name, g.CenterLat, g.CenterLng, g.RadiusMeters, g.Kind,
		assigned, boolToInt(g.Active), toNanos(g.CreatedAt), toNanos(g.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert geofence: %w", err)
	}
	return nil
}

func (r *sqliteGeofenceRepo) GetByID(ctx context.Context, id string) (*models.Geofence, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+geofenceColumns+` FROM geofences WHERE id = ?`, id)
	g, err := scanGeofence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get geofence: %w", err)
	}
	return g, nil
}

func (r *sqliteGeofenceRepo) Update(ctx context.Context, g *models.Geofence) error {
	assigned, err := marshalAssigned(g.AssignedEntity)
	if err != nil {
		return err
	}
	query := `
		UPDATE geofences SET name = ?, center_lat = ?, center_lng = ?, radius_meters = ?,
			kind = ?, assigned_json = ?, active = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		g.Name, g.CenterLat, g.CenterLng, g.RadiusMeters, g.Kind, assigned,
		boolToInt(g.Active), toNanos(g.UpdatedAt), g.ID,
	)
	if err != nil {
		return fmt.Errorf("update geofence: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("geofence %s: %w", g.ID, ErrNotFound)
	}
	return nil
}

func (r *sqliteGeofenceRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE geofences SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), toNanos(at), id)
	if err != nil {
		return fmt.Errorf("set geofence active: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("geofence %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteGeofenceRepo) ListActive(ctx context.Context) ([]*models.Geofence, error) {
	return r.List(ctx, false)
}

func (r *sqliteGeofenceRepo) List(ctx context.Context, includeInactive bool) ([]*models.Geofence, error) {
	query := `SELECT ` + geofenceColumns + ` FROM geofences`
	if !includeInactive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list geofences: %w", err)
	}
	defer rows.Close()

	var geofences []*models.Geofence
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan geofence: %w", err)
		}
		geofences = append(geofences, g)
	}
	return geofences, rows.Err()
}

func marshalAssigned(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal assigned entities: %w", err)
	}
	return string(data), nil
}

func scanGeofence(s rowScanner) (*models.Geofence, error) {
	g := &models.Geofence{}
	var assigned string
	var active int
	var createdAt, updatedAt int64
	err := s.Scan(&g.ID, &g.Name, &g.CenterLat, &g.CenterLng, &g.RadiusMeters, &g.Kind,
		&assigned, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(assigned), &g.AssignedEntity); err != nil {
		return nil, fmt.Errorf("unmarshal assigned entities: %w", err)
	}
	if len(g.AssignedEntity) == 0 {
		g.AssignedEntity = nil
	}
	g.Active = active == 1
	g.CreatedAt = fromNanos(createdAt)
	g.UpdatedAt = fromNanos(updatedAt)
	return g, nil
}
