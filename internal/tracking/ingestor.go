// Package tracking applies normalized collar readings to stored state and
// manages geofences.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/alerting"
	"github.com/good-yellow-bee/tuskguard/internal/ingest"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/metrics"
	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/storage"
)

// Transport names used in metrics labels.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
	TransportCLI  = "cli"
)

// IngestResult is a stored reading and the alerts it raised.
type IngestResult struct {
	Reading   *models.LocationReading `json:"reading"`
	Detection string                  `json:"detection"`
	Alerts    []*models.Alert         `json:"alerts,omitempty"`
}

// Ingestor stores readings and raises real-time alerts.
type Ingestor struct {
	store      storage.Storage
	normalizer *ingest.Normalizer
	raiser     *alerting.Raiser
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngestor creates an ingestor. raiser may be nil to store readings
// without alerting.
func NewIngestor(store storage.Storage, normalizer *ingest.Normalizer, raiser *alerting.Raiser, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		store:      store,
		normalizer: normalizer,
		raiser:     raiser,
		logger:     logging.OrNop(logger),
		now:        time.Now,
	}
}

// SetClock overrides the clock used for alert timestamps.
func (i *Ingestor) SetClock(now func() time.Time) {
	i.now = now
}

// Ingest normalizes, stores and evaluates one payload. declared is an
// explicit provider name and may be empty. Validation failures are returned
// as the ingest package's typed errors. Alerting failures are logged and do
// not fail the ingestion.
func (i *Ingestor) Ingest(ctx context.Context, raw []byte, declared, transport string) (*IngestResult, error) {
	start := time.Now()
	provider := declared
	result := "stored"
	defer func() {
		if provider == "" {
			provider = "unknown"
		}
		metrics.ReadingsTotal.WithLabelValues(provider, transport, result).Inc()
		metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}()

	res, err := i.normalizer.Normalize(ctx, raw, declared)
	if err != nil {
		result = rejectReason(err)
		return nil, err
	}
	reading := res.Reading
	provider = reading.Provider

	if err := i.store.Readings().Append(ctx, reading); err != nil {
		result = "error"
		return nil, fmt.Errorf("store reading: %w", err)
	}

	entity, err := i.applyState(ctx, reading)
	if err != nil {
		// The reading is stored; latest state catches up on the next one.
		i.logger.Error("update entity state",
			zap.String("entity_id", reading.EntityID),
			zap.Error(err),
		)
	}

	out := &IngestResult{Reading: reading, Detection: res.Detection}
	out.Alerts = i.evaluate(ctx, entity, reading)

	i.logger.Debug("reading stored",
		zap.String("entity_id", reading.EntityID),
		zap.String("device_id", reading.DeviceID),
		zap.String("provider", reading.Provider),
		zap.String("detection", res.Detection),
		zap.Int("alerts", len(out.Alerts)),
	)
	return out, nil
}

// applyState updates the entity's latest fields unless the reading is older
// than what the entity already reflects.
func (i *Ingestor) applyState(ctx context.Context, r *models.LocationReading) (*models.Entity, error) {
	entity, err := i.store.Entities().GetByID(ctx, r.EntityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("entity %s not found", r.EntityID)
	}
	if !entity.LastUpdate.IsZero() && r.Timestamp.Before(entity.LastUpdate) {
		return entity, nil
	}
	entity.ApplyReading(r)
	if err := i.store.Entities().UpdateState(ctx, entity); err != nil {
		return entity, err
	}
	return entity, nil
}

// evaluate raises collar health and restricted-zone entry alerts.
func (i *Ingestor) evaluate(ctx context.Context, entity *models.Entity, r *models.LocationReading) []*models.Alert {
	if i.raiser == nil {
		return nil
	}
	now := i.now().UTC()

	var candidates []*models.Alert
	if a := alerting.HealthCandidate(entity, r, now); a != nil {
		candidates = append(candidates, a)
	}
	geofences, err := i.store.Geofences().ListActive(ctx)
	if err != nil {
		i.logger.Error("load geofences", zap.Error(err))
	} else {
		candidates = append(candidates, alerting.RestrictedEntries(entity, r, geofences, now)...)
	}
	if len(candidates) == 0 {
		return nil
	}

	recipients, err := i.store.Recipients().ListActive(ctx)
	if err != nil {
		i.logger.Error("load recipients", zap.Error(err))
	}

	var raised []*models.Alert
	for _, a := range candidates {
		out, err := i.raiser.Raise(ctx, a, recipients)
		if err != nil {
			i.logger.Error("raise alert",
				zap.String("entity_id", a.EntityID),
				zap.String("kind", string(a.Kind)),
				zap.Error(err),
			)
		}
		if !out.Admitted {
			continue
		}
		raised = append(raised, a)
	}
	return raised
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ingest.ErrInvalidCoordinate):
		return "invalid_coordinate"
	case errors.Is(err, ingest.ErrUnknownDevice):
		return "unknown_device"
	case errors.Is(err, ingest.ErrMalformedPayload):
		return "malformed"
	default:
		return "error"
	}
}
