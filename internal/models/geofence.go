package models

import "time"

// GeofenceKind types a circular zone.
type GeofenceKind string

const (
	GeofenceRestricted GeofenceKind = "restricted"
	GeofenceSafe       GeofenceKind = "safe"
	GeofenceMonitoring GeofenceKind = "monitoring"
)

// ValidGeofenceKind reports whether s names a known kind.
func ValidGeofenceKind(s string) bool {
	switch GeofenceKind(s) {
	case GeofenceRestricted, GeofenceSafe, GeofenceMonitoring:
		return true
	}
	return false
}

// Geofence is a circular zone. Never hard-deleted; Active=false is a soft delete.
type Geofence struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	CenterLat      float64      `json:"center_lat"`
	CenterLng      float64      `json:"center_lng"`
	RadiusMeters   float64      `json:"radius_meters"`
	Kind           GeofenceKind `json:"kind"`
	AssignedEntity []string     `json:"assigned_entity_ids,omitempty"`
	Active         bool         `json:"active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// AppliesTo reports whether the geofence covers the entity.
// An empty assignment list applies to every entity.
func (g *Geofence) AppliesTo(entityID string) bool {
	if len(g.AssignedEntity) == 0 {
		return true
	}
	for _, id := range g.AssignedEntity {
		if id == entityID {
			return true
		}
	}
	return false
}
