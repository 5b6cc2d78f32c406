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

type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = `id, entity_id, geofence_key, geofence_name, entity_name, kind, level,
	message, snapshot_json, distance_meters, stationary_hours, created_at, sent, sent_at`

func (r *sqliteAlertRepo) CreateIfQuiet(ctx context.Context, a *models.Alert, window time.Duration) (bool, error) {
	defer observe("alert_create_if_quiet")()

	key := a.CooldownKey()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin alert transaction: %w", err)
	}
	defer tx.Rollback()

	if window > 0 {
		var last sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT MAX(created_at) FROM alerts WHERE entity_id = ? AND kind = ? AND geofence_key = ?`,
			key.EntityID, key.Kind, key.GeofenceID,
		).Scan(&last)
		if err != nil {
			return false, fmt.Errorf("query last alert: %w", err)
		}
		if last.Valid && a.CreatedAt.Sub(fromNanos(last.Int64)) < window {
			return false, nil
		}
	}

	if err := insertAlert(ctx, tx, a); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit alert: %w", err)
	}
	return true, nil
}

func insertAlert(ctx context.Context, tx *sql.Tx, a *models.Alert) error {
	snapshot, err := json.Marshal(a.Location)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := a.CooldownKey()
	query := `INSERT INTO alerts (` + alertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		a.ID, a.EntityID, key.GeofenceID, nullString(a.GeofenceName), nullString(a.EntityName),
		a.Kind, a.Level, a.Message, string(snapshot), a.DistanceMeters, a.StationaryHours,
		toNanos(a.CreatedAt), boolToInt(a.SentToAuthority), toNanos(a.SentAt),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (r *sqliteAlertRepo) LatestForKey(ctx context.Context, key models.CooldownKey) (*models.Alert, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts
		WHERE entity_id = ? AND kind = ? AND geofence_key = ?
		ORDER BY created_at DESC LIMIT 1`,
		key.EntityID, key.Kind, key.GeofenceID)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest alert for key: %w", err)
	}
	return a, nil
}

// MarkSent only sets sent_at on the first transition.
func (r *sqliteAlertRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET sent = 1, sent_at = ? WHERE id = ? AND sent = 0`, toNanos(at), id)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) List(ctx context.Context, filter AlertFilter) ([]*models.Alert, int64, error) {
	where := ""
	var args []any
	if filter.EntityID != "" {
		where = " WHERE entity_id = ?"
		args = append(args, filter.EntityID)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, total, rows.Err()
}

func scanAlert(s rowScanner) (*models.Alert, error) {
	a := &models.Alert{}
	var geofenceName, entityName sql.NullString
	var snapshot string
	var sent int
	var createdAt, sentAt int64
	err := s.Scan(&a.ID, &a.EntityID, &a.GeofenceID, &geofenceName, &entityName, &a.Kind, &a.Level,
		&a.Message, &snapshot, &a.DistanceMeters, &a.StationaryHours, &createdAt, &sent, &sentAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snapshot), &a.Location); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	a.GeofenceName = geofenceName.String
	a.EntityName = entityName.String
	a.SentToAuthority = sent == 1
	a.CreatedAt = fromNanos(createdAt)
	a.SentAt = fromNanos(sentAt)
	return a, nil
}
