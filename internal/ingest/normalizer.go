package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/tuskguard/internal/geo"
	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// DeviceLookup resolves a collar identifier to its registration.
// It returns (nil, nil) when the device is unknown.
type DeviceLookup interface {
	GetByDeviceID(ctx context.Context, deviceID string) (*models.Device, error)
}

// Result is a normalized reading plus how its provider was chosen.
type Result struct {
	Reading   *models.LocationReading
	Detection string
}

// DefaultMaxClockSkew is how far past the ingest clock a reading
// timestamp may lie before it is rejected.
const DefaultMaxClockSkew = 5 * time.Minute

// Normalizer turns raw provider payloads into validated readings.
type Normalizer struct {
	registry *Registry
	devices  DeviceLookup
	now      func() time.Time
	maxSkew  time.Duration
}

// NewNormalizer creates a normalizer. devices may be nil for offline use,
// in which case device resolution is skipped.
func NewNormalizer(registry *Registry, devices DeviceLookup) *Normalizer {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	return &Normalizer{
		registry: registry,
		devices:  devices,
		now:      time.Now,
		maxSkew:  DefaultMaxClockSkew,
	}
}

// SetClock overrides the clock used for absent timestamps and the
// future-timestamp check.
func (n *Normalizer) SetClock(now func() time.Time) {
	n.now = now
}

// SetMaxClockSkew sets the allowed lead of a reading over the ingest clock.
// Non-positive values restore the default.
func (n *Normalizer) SetMaxClockSkew(d time.Duration) {
	if d <= 0 {
		d = DefaultMaxClockSkew
	}
	n.maxSkew = d
}

// Normalize parses, validates and resolves a payload. declared is an
// explicit provider from a header, path or topic; it may be empty.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, declared string) (*Result, error) {
	res, err := n.Decode(raw, declared)
	if err != nil {
		return nil, err
	}
	if n.devices == nil {
		return res, nil
	}

	device, err := n.devices.GetByDeviceID(ctx, res.Reading.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("lookup device: %w", err)
	}
	if device == nil || !device.Active {
		return nil, &UnknownDeviceError{DeviceID: res.Reading.DeviceID}
	}
	res.Reading.EntityID = device.EntityID
	return res, nil
}

// Decode parses and validates a payload without resolving the device.
func (n *Normalizer) Decode(raw []byte, declared string) (*Result, error) {
	payload, err := DecodePayload(raw)
	if err != nil {
		return nil, err
	}

	parser, detection := n.registry.Detect(payload, declared)
	fields, err := parser.Parse(payload)
	if err != nil {
		return nil, err
	}

	if fields.DeviceID == "" {
		return nil, malformed("no device identifier found", nil)
	}
	if !fields.HasLatitude {
		return nil, &InvalidCoordinateError{Field: "latitude", Missing: true}
	}
	if !fields.HasLongitude {
		return nil, &InvalidCoordinateError{Field: "longitude", Missing: true}
	}
	if !geo.ValidLatitude(fields.Latitude) {
		return nil, &InvalidCoordinateError{Field: "latitude", Value: fields.Latitude}
	}
	if !geo.ValidLongitude(fields.Longitude) {
		return nil, &InvalidCoordinateError{Field: "longitude", Value: fields.Longitude}
	}
	if fields.Speed < 0 {
		return nil, malformed(fmt.Sprintf("negative speed %v", fields.Speed), nil)
	}

	now := n.now().UTC()
	ts := now
	if fields.Timestamp != nil {
		ts, err = parseTimestamp(fields.Timestamp)
		if err != nil {
			return nil, malformed("unparseable timestamp", err)
		}
	}
	// A future reading would pin the entity's latest state until the
	// wall clock catches up with it.
	if ts.After(now.Add(n.maxSkew)) {
		return nil, malformed(fmt.Sprintf("timestamp %s is ahead of server time", ts.Format(time.RFC3339)), nil)
	}

	reading := &models.LocationReading{
		ID:             uuid.New().String(),
		DeviceID:       fields.DeviceID,
		Provider:       parser.Name(),
		Latitude:       fields.Latitude,
		Longitude:      fields.Longitude,
		Timestamp:      ts,
		Speed:          fields.Speed,
		Heading:        fields.Heading,
		Altitude:       fields.Altitude,
		Accuracy:       fields.Accuracy,
		BatteryLevel:   clampBattery(fields.Battery),
		SignalStrength: int(math.Round(fields.SignalStrength)),
		RawPayload:     compact(raw),
	}

	return &Result{Reading: reading, Detection: detection}, nil
}

func clampBattery(v float64) int {
	if math.IsNaN(v) {
		return DefaultBattery
	}
	b := int(math.Round(v))
	if b < 0 {
		return 0
	}
	if b > 100 {
		return 100
	}
	return b
}

func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return json.RawMessage(raw)
	}
	return json.RawMessage(buf.Bytes())
}
