package models

import (
	"fmt"
	"time"
)

// AlertKind identifies the condition that raised an alert.
type AlertKind string

const (
	AlertKindGeofenceViolation AlertKind = "geofence_violation"
	AlertKindStationary        AlertKind = "stationary"
	AlertKindCollarHealth      AlertKind = "collar_health"
	AlertKindManual            AlertKind = "manual"
)

// Level represents alert severity.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
	LevelWarning  Level = "warning"
	LevelInfo     Level = "info"
)

// ParseLevel converts a string to Level, defaulting to medium.
func ParseLevel(s string) Level {
	switch s {
	case "critical", "CRITICAL":
		return LevelCritical
	case "high", "HIGH":
		return LevelHigh
	case "medium", "MEDIUM":
		return LevelMedium
	case "low", "LOW":
		return LevelLow
	case "warning", "WARNING":
		return LevelWarning
	case "info", "INFO":
		return LevelInfo
	default:
		return LevelMedium
	}
}

// ParseAlertKind converts a string to AlertKind.
func ParseAlertKind(s string) (AlertKind, error) {
	switch AlertKind(s) {
	case AlertKindGeofenceViolation, AlertKindStationary, AlertKindCollarHealth, AlertKindManual:
		return AlertKind(s), nil
	default:
		return "", fmt.Errorf("unknown alert kind %q", s)
	}
}

// Snapshot is the entity position captured when an alert was raised.
type Snapshot struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Battery   int       `json:"battery_level"`
	Speed     float64   `json:"speed"`
}

// Alert is a raised condition for one entity.
type Alert struct {
	ID              string    `json:"id"`
	EntityID        string    `json:"entity_id"`
	EntityName      string    `json:"entity_name,omitempty"`
	GeofenceID      string    `json:"geofence_id,omitempty"`
	GeofenceName    string    `json:"geofence_name,omitempty"`
	Kind            AlertKind `json:"kind"`
	Level           Level     `json:"level"`
	Message         string    `json:"message"`
	Location        Snapshot  `json:"location"`
	DistanceMeters  float64   `json:"distance_meters,omitempty"`
	StationaryHours float64   `json:"stationary_hours,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	SentToAuthority bool      `json:"sent_to_authorities"`
	SentAt          time.Time `json:"sent_at,omitempty"`
}

// CooldownKey returns the deduplication key for the alert.
// Only geofence alerts are scoped by geofence.
func (a *Alert) CooldownKey() CooldownKey {
	k := CooldownKey{EntityID: a.EntityID, Kind: a.Kind}
	if a.Kind == AlertKindGeofenceViolation {
		k.GeofenceID = a.GeofenceID
	}
	return k
}

// MarkSent transitions the alert to sent. Repeated calls keep the first SentAt.
func (a *Alert) MarkSent(now time.Time) {
	if a.SentToAuthority {
		return
	}
	a.SentToAuthority = true
	a.SentAt = now
}

// CooldownKey identifies alerts that suppress each other within a cooldown window.
type CooldownKey struct {
	EntityID   string
	Kind       AlertKind
	GeofenceID string
}

// String renders the key as "entity:kind:geofence".
func (k CooldownKey) String() string {
	return k.EntityID + ":" + string(k.Kind) + ":" + k.GeofenceID
}
