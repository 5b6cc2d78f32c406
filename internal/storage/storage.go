// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"time"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Entities() EntityRepository
	Devices() DeviceRepository
	Readings() ReadingRepository
	Geofences() GeofenceRepository
	Alerts() AlertRepository
	Recipients() RecipientRepository
}

// EntityRepository stores tracked animals and their latest state.
// Getters return (nil, nil) when the entity does not exist.
type EntityRepository interface {
	Create(ctx context.Context, entity *models.Entity) error
	GetByID(ctx context.Context, id string) (*models.Entity, error)
	ListActive(ctx context.Context) ([]*models.Entity, error)
	UpdateState(ctx context.Context, entity *models.Entity) error
}

// DeviceRepository maps collar identifiers to entities.
type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByDeviceID(ctx context.Context, deviceID string) (*models.Device, error)
}

// ReadingRepository is the append-only location time series.
type ReadingRepository interface {
	Append(ctx context.Context, reading *models.LocationReading) error
	// Latest returns the most recent reading for the entity, or nil.
	Latest(ctx context.Context, entityID string) (*models.LocationReading, error)
	// Range returns readings with from <= timestamp <= to, newest first.
	Range(ctx context.Context, entityID string, from, to time.Time) ([]*models.LocationReading, error)
}

// GeofenceRepository stores geofences. Deletion is a soft delete.
type GeofenceRepository interface {
	Create(ctx context.Context, geofence *models.Geofence) error
	// GetByID returns the geofence regardless of its active flag.
	GetByID(ctx context.Context, id string) (*models.Geofence, error)
	Update(ctx context.Context, geofence *models.Geofence) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	ListActive(ctx context.Context) ([]*models.Geofence, error)
	List(ctx context.Context, includeInactive bool) ([]*models.Geofence, error)
}

// AlertRepository stores raised alerts.
type AlertRepository interface {
	// CreateIfQuiet inserts the alert unless another alert with the same
	// cooldown key was created less than window before it. The check and the
	// insert are atomic. Returns false when the alert was suppressed.
	CreateIfQuiet(ctx context.Context, alert *models.Alert, window time.Duration) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	LatestForKey(ctx context.Context, key models.CooldownKey) (*models.Alert, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, filter AlertFilter) ([]*models.Alert, int64, error)
}

// AlertFilter narrows and pages an alert listing. An empty EntityID matches
// every entity.
type AlertFilter struct {
	EntityID string
	Limit    int
	Offset   int
}

// RecipientRepository stores notification recipients.
type RecipientRepository interface {
	Create(ctx context.Context, recipient *models.Recipient) error
	// Upsert creates the recipient or overwrites its contact details.
	Upsert(ctx context.Context, recipient *models.Recipient) error
	ListActive(ctx context.Context) ([]*models.Recipient, error)
}
