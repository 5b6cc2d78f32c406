package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

type sqliteRecipientRepo struct {
	db *sql.DB
}

func (r *sqliteRecipientRepo) Create(ctx context.Context, rc *models.Recipient) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recipients (id, name, phone, email, sms_enabled, email_enabled, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rc.ID, rc.Name, nullString(rc.Phone), nullString(rc.Email),
		boolToInt(rc.SMSEnabled), boolToInt(rc.EmailEnabled), boolToInt(rc.Active), toNanos(rc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert recipient: %w", err)
	}
	return nil
}

func (r *sqliteRecipientRepo) Upsert(ctx context.Context, rc *models.Recipient) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recipients (id, name, phone, email, sms_enabled, email_enabled, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, phone = excluded.phone, email = excluded.email,
			sms_enabled = excluded.sms_enabled, email_enabled = excluded.email_enabled,
			active = excluded.active`,
		rc.ID, rc.Name, nullString(rc.Phone), nullString(rc.Email),
		boolToInt(rc.SMSEnabled), boolToInt(rc.EmailEnabled), boolToInt(rc.Active), toNanos(rc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert recipient: %w", err)
	}
	return nil
}

func (r *sqliteRecipientRepo) ListActive(ctx context.Context) ([]*models.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, phone, email, sms_enabled, email_enabled, active, created_at
		FROM recipients WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var recipients []*models.Recipient
	for rows.Next() {
		rc := &models.Recipient{}
		var phone, email sql.NullString
		var smsEnabled, emailEnabled, active int
		var createdAt int64
		if err := rows.Scan(&rc.ID, &rc.Name, &phone, &email, &smsEnabled, &emailEnabled, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		rc.Phone = phone.String
		rc.Email = email.String
		rc.SMSEnabled = smsEnabled == 1
		rc.EmailEnabled = emailEnabled == 1
		rc.Active = active == 1
		rc.CreatedAt = fromNanos(createdAt)
		recipients = append(recipients, rc)
	}
	return recipients, rows.Err()
}
