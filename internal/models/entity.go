// Package models defines domain models for TuskGuard.
package models

import "time"

// Entity is a tracked animal wearing a collar.
type Entity struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Species        string    `json:"species,omitempty"`
	Active         bool      `json:"active"`
	LastLatitude   float64   `json:"last_latitude"`
	LastLongitude  float64   `json:"last_longitude"`
	LastUpdate     time.Time `json:"last_update,omitempty"`
	BatteryLevel   int       `json:"battery_level"`
	SignalStrength int       `json:"signal_strength"`
	Online         bool      `json:"online"`
	HealthOK       bool      `json:"health_ok"`
	CreatedAt      time.Time `json:"created_at"`
}

// Device is a physical collar registered to an entity.
type Device struct {
	DeviceID  string    `json:"device_id"`
	EntityID  string    `json:"entity_id"`
	Provider  string    `json:"provider,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Collar health thresholds.
const (
	LowBatteryPercent = 20
	WeakSignalDBm     = -80
)

// ApplyReading updates the latest-state fields from a stored reading.
func (e *Entity) ApplyReading(r *LocationReading) {
	e.LastLatitude = r.Latitude
	e.LastLongitude = r.Longitude
	e.LastUpdate = r.Timestamp
	e.BatteryLevel = r.BatteryLevel
	e.SignalStrength = r.SignalStrength
	e.Online = true
	e.HealthOK = !r.LowBattery() && !r.WeakSignal()
}
