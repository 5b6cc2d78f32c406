package models

import (
	"encoding/json"
	"time"
)

// LocationReading is one normalized GPS fix from a collar. Immutable once stored.
type LocationReading struct {
	ID             string          `json:"id"`
	EntityID       string          `json:"entity_id"`
	DeviceID       string          `json:"device_id"`
	Provider       string          `json:"provider"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	Timestamp      time.Time       `json:"timestamp"`
	Speed          float64         `json:"speed"`
	Heading        float64         `json:"heading"`
	Altitude       float64         `json:"altitude"`
	Accuracy       float64         `json:"accuracy"`
	BatteryLevel   int             `json:"battery_level"`
	SignalStrength int             `json:"signal_strength"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
}

// Moving reports whether the reading has a positive speed.
func (r *LocationReading) Moving() bool {
	return r.Speed > 0
}

// LowBattery reports battery below the health threshold.
func (r *LocationReading) LowBattery() bool {
	return r.BatteryLevel < LowBatteryPercent
}

// WeakSignal reports signal strength below the health threshold.
func (r *LocationReading) WeakSignal() bool {
	return r.SignalStrength < WeakSignalDBm
}

// Snapshot captures the reading as an alert location snapshot.
func (r *LocationReading) Snapshot() Snapshot {
	return Snapshot{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timestamp: r.Timestamp,
		Battery:   r.BatteryLevel,
		Speed:     r.Speed,
	}
}
