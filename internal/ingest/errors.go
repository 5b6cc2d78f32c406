package ingest

import (
	"errors"
	"fmt"
)

// Sentinel kinds for errors.Is.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrUnknownDevice     = errors.New("unknown device")
	ErrMalformedPayload  = errors.New("malformed payload")
)

// InvalidCoordinateError reports a missing or out-of-range coordinate.
type InvalidCoordinateError struct {
	Field   string
	Value   float64
	Missing bool
}

func (e *InvalidCoordinateError) Error() string {
	if e.Missing {
		return fmt.Sprintf("invalid coordinate: %s is required", e.Field)
	}
	return fmt.Sprintf("invalid coordinate: %s %v out of range", e.Field, e.Value)
}

func (e *InvalidCoordinateError) Unwrap() error { return ErrInvalidCoordinate }

// UnknownDeviceError reports a collar that is not registered to an entity.
type UnknownDeviceError struct {
	DeviceID string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown device: %q is not registered", e.DeviceID)
}

func (e *UnknownDeviceError) Unwrap() error { return ErrUnknownDevice }

// MalformedPayloadError reports a payload that cannot be normalized.
type MalformedPayloadError struct {
	Reason string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed payload: %s: %v", e.Reason, e.Err)
	}
	return "malformed payload: " + e.Reason
}

// Is matches ErrMalformedPayload while Unwrap still exposes the cause.
func (e *MalformedPayloadError) Is(target error) bool { return target == ErrMalformedPayload }

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

func malformed(reason string, err error) error {
	return &MalformedPayloadError{Reason: reason, Err: err}
}
