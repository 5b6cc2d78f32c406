// Package alerting evaluates geofence and stationary conditions for tracked
// entities and gates the resulting alerts through per-key cooldowns.
package alerting

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// Default policy values.
const (
	DefaultGeofenceCooldown    = 6 * time.Hour
	DefaultStationaryCooldown  = 12 * time.Hour
	DefaultHealthCooldown      = 6 * time.Hour
	DefaultStationaryWindow    = 48 * time.Hour
	DefaultStationaryThreshold = 24 * time.Hour
)

// Policy holds cooldown windows and detector thresholds.
type Policy struct {
	Cooldowns           map[models.AlertKind]time.Duration
	StationaryWindow    time.Duration
	StationaryThreshold time.Duration
}

// DefaultPolicy returns the built-in policy. Manual alerts have no cooldown.
func DefaultPolicy() *Policy {
	return &Policy{
		Cooldowns: map[models.AlertKind]time.Duration{
			models.AlertKindGeofenceViolation: DefaultGeofenceCooldown,
			models.AlertKindStationary:        DefaultStationaryCooldown,
			models.AlertKindCollarHealth:      DefaultHealthCooldown,
			models.AlertKindManual:            0,
		},
		StationaryWindow:    DefaultStationaryWindow,
		StationaryThreshold: DefaultStationaryThreshold,
	}
}

// Window returns the cooldown window for kind. Unknown kinds have none.
func (p *Policy) Window(kind models.AlertKind) time.Duration {
	if p == nil {
		return DefaultPolicy().Window(kind)
	}
	return p.Cooldowns[kind]
}

// PolicyConfig is the YAML form of a policy. Durations use Go syntax ("6h").
type PolicyConfig struct {
	Cooldowns           map[string]string `yaml:"cooldowns,omitempty"`
	StationaryWindow    string            `yaml:"stationary_window,omitempty"`
	StationaryThreshold string            `yaml:"stationary_threshold,omitempty"`
}

// Build overlays the configuration on the default policy.
func (c PolicyConfig) Build() (*Policy, error) {
	p := DefaultPolicy()

	for name, raw := range c.Cooldowns {
		kind, err := models.ParseAlertKind(name)
		if err != nil {
			return nil, fmt.Errorf("cooldowns: %w", err)
		}
		d, err := parseNonNegative(raw)
		if err != nil {
			return nil, fmt.Errorf("cooldowns.%s: %w", name, err)
		}
		p.Cooldowns[kind] = d
	}

	if c.StationaryWindow != "" {
		d, err := parseNonNegative(c.StationaryWindow)
		if err != nil || d == 0 {
			return nil, fmt.Errorf("invalid stationary_window %q", c.StationaryWindow)
		}
		p.StationaryWindow = d
	}
	if c.StationaryThreshold != "" {
		d, err := parseNonNegative(c.StationaryThreshold)
		if err != nil {
			return nil, fmt.Errorf("stationary_threshold: %w", err)
		}
		p.StationaryThreshold = d
	}
	if p.StationaryThreshold >= p.StationaryWindow {
		return nil, fmt.Errorf("stationary_threshold (%s) must be shorter than stationary_window (%s)",
			p.StationaryThreshold, p.StationaryWindow)
	}

	return p, nil
}

func parseNonNegative(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

// LoadPolicy loads a policy from a YAML reader.
func LoadPolicy(r io.Reader) (*Policy, error) {
	var cfg PolicyConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	return cfg.Build()
}
