package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/tuskguard/internal/geo"
	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// PeriodicLevel maps a geofence kind to the severity of leaving it.
func PeriodicLevel(kind models.GeofenceKind) models.Level {
	switch kind {
	case models.GeofenceRestricted:
		return models.LevelHigh
	case models.GeofenceSafe:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// Containment is the evaluation of one geofence against one reading.
type Containment struct {
	Geofence       *models.Geofence
	Inside         bool
	DistanceMeters float64
}

// Contain evaluates every active geofence applying to the entity.
func Contain(entityID string, reading *models.LocationReading, geofences []*models.Geofence) []Containment {
	if reading == nil {
		return nil
	}
	var out []Containment
	for _, g := range geofences {
		if g == nil || !g.Active || !g.AppliesTo(entityID) {
			continue
		}
		d := geo.DistanceMeters(reading.Latitude, reading.Longitude, g.CenterLat, g.CenterLng)
		out = append(out, Containment{
			Geofence:       g,
			Inside:         d <= g.RadiusMeters,
			DistanceMeters: d,
		})
	}
	return out
}

// OutsideViolations returns a candidate alert for every assigned geofence the
// reading lies outside of. A nil reading yields no candidates.
func OutsideViolations(entity *models.Entity, reading *models.LocationReading, geofences []*models.Geofence, now time.Time) []*models.Alert {
	if reading == nil {
		return nil
	}
	entityID, name := entityLabel(entity, reading)

	var alerts []*models.Alert
	for _, c := range Contain(entityID, reading, geofences) {
		if c.Inside {
			continue
		}
		g := c.Geofence
		msg := fmt.Sprintf("%s is %s outside %s zone %q (radius %s)",
			name, formatDistance(c.DistanceMeters-g.RadiusMeters), g.Kind, g.Name, formatDistance(g.RadiusMeters))
		alerts = append(alerts, newGeofenceAlert(entityID, name, reading, c, PeriodicLevel(g.Kind), msg, now))
	}
	return alerts
}

// RestrictedEntries returns a critical candidate alert for every restricted
// geofence containing the reading.
func RestrictedEntries(entity *models.Entity, reading *models.LocationReading, geofences []*models.Geofence, now time.Time) []*models.Alert {
	if reading == nil {
		return nil
	}
	entityID, name := entityLabel(entity, reading)

	var alerts []*models.Alert
	for _, c := range Contain(entityID, reading, geofences) {
		if !c.Inside || c.Geofence.Kind != models.GeofenceRestricted {
			continue
		}
		g := c.Geofence
		msg := fmt.Sprintf("%s entered restricted zone %q, %s from its center",
			name, g.Name, formatDistance(c.DistanceMeters))
		alerts = append(alerts, newGeofenceAlert(entityID, name, reading, c, models.LevelCritical, msg, now))
	}
	return alerts
}

func newGeofenceAlert(entityID, name string, r *models.LocationReading, c Containment, level models.Level, msg string, now time.Time) *models.Alert {
	return &models.Alert{
		ID:             uuid.New().String(),
		EntityID:       entityID,
		EntityName:     name,
		GeofenceID:     c.Geofence.ID,
		GeofenceName:   c.Geofence.Name,
		Kind:           models.AlertKindGeofenceViolation,
		Level:          level,
		Message:        msg,
		Location:       r.Snapshot(),
		DistanceMeters: c.DistanceMeters,
		CreatedAt:      now.UTC(),
	}
}

func entityLabel(e *models.Entity, r *models.LocationReading) (id, name string) {
	id = r.EntityID
	if e != nil {
		id = e.ID
		if e.Name != "" {
			return id, e.Name
		}
	}
	return id, id
}

func formatDistance(m float64) string {
	if m < 0 {
		m = 0
	}
	if m >= 1000 {
		return fmt.Sprintf("%.1f km", m/1000)
	}
	return fmt.Sprintf("%.0f m", m)
}
