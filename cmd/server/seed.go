package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/storage"
)

// seedFleet registers configured entities, collars and recipients. Existing
// entities and collars are left untouched; recipients are overwritten so
// contact changes in the config take effect on restart.
func seedFleet(ctx context.Context, store storage.Storage, fleet FleetConfig, logger *zap.Logger) error {
	now := time.Now().UTC()

	for _, seed := range fleet.Entities {
		existing, err := store.Entities().GetByID(ctx, seed.ID)
		if err != nil {
			return fmt.Errorf("lookup entity %s: %w", seed.ID, err)
		}
		if existing == nil {
			e := &models.Entity{
				ID:             seed.ID,
				Name:           seed.Name,
				Species:        seed.Species,
				Active:         true,
				BatteryLevel:   100,
				SignalStrength: -50,
				HealthOK:       true,
				CreatedAt:      now,
			}
			if err := store.Entities().Create(ctx, e); err != nil {
				return fmt.Errorf("create entity %s: %w", seed.ID, err)
			}
			logger.Info("registered entity", zap.String("entity_id", seed.ID), zap.String("name", seed.Name))
		}

		for _, d := range seed.Devices {
			dev, err := store.Devices().GetByDeviceID(ctx, d.ID)
			if err != nil {
				return fmt.Errorf("lookup collar %s: %w", d.ID, err)
			}
			if dev != nil {
				if dev.EntityID != seed.ID {
					logger.Warn("collar already registered to another entity",
						zap.String("device_id", d.ID),
						zap.String("registered_to", dev.EntityID),
						zap.String("configured_for", seed.ID))
				}
				continue
			}
			dev = &models.Device{
				DeviceID:  d.ID,
				EntityID:  seed.ID,
				Provider:  d.Provider,
				Active:    true,
				CreatedAt: now,
			}
			if err := store.Devices().Create(ctx, dev); err != nil {
				return fmt.Errorf("create collar %s: %w", d.ID, err)
			}
		}
	}

	for _, r := range fleet.Recipients {
		rc := &models.Recipient{
			ID:           r.ID,
			Name:         r.Name,
			Phone:        r.Phone,
			Email:        r.Email,
			SMSEnabled:   boolOr(r.SMSEnabled, true),
			EmailEnabled: boolOr(r.EmailEnabled, true),
			Active:       true,
			CreatedAt:    now,
		}
		if err := store.Recipients().Upsert(ctx, rc); err != nil {
			return fmt.Errorf("upsert recipient %s: %w", r.ID, err)
		}
	}

	return nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
