// Package ingest normalizes heterogeneous collar payloads into location readings.
package ingest

import (
	"fmt"
	"strings"
)

// Parser extracts provider fields from a decoded payload.
type Parser interface {
	// Name returns the provider name (e.g., "vectronic").
	Name() string

	// CanParse reports whether the payload carries this provider's identifier fields.
	CanParse(p Payload) bool

	// Parse extracts fields without validating them.
	Parse(p Payload) (*Fields, error)
}

// Fields are the raw values a parser found, before defaults and validation.
type Fields struct {
	DeviceID string

	Latitude     float64
	HasLatitude  bool
	Longitude    float64
	HasLongitude bool

	// Timestamp is the raw timestamp value, nil when absent.
	Timestamp any

	Speed    float64
	Heading  float64
	Altitude float64
	Accuracy float64

	Battery        float64
	SignalStrength float64
}

// Defaults applied when a field is absent.
const (
	DefaultBattery  = 100
	DefaultSignal   = -50
	DefaultAccuracy = 5.0
)

// ProviderConfig describes a provider format as field alias lists.
// Keys may use dots to reach nested objects.
type ProviderConfig struct {
	Name      string   `yaml:"name"`
	IDFields  []string `yaml:"id_fields"`
	LatFields []string `yaml:"lat_fields"`
	LngFields []string `yaml:"lng_fields"`
	// TimeFields default to the generic aliases when empty, as do the others below.
	TimeFields     []string `yaml:"time_fields,omitempty"`
	SpeedFields    []string `yaml:"speed_fields,omitempty"`
	HeadingFields  []string `yaml:"heading_fields,omitempty"`
	AltitudeFields []string `yaml:"altitude_fields,omitempty"`
	AccuracyFields []string `yaml:"accuracy_fields,omitempty"`
	BatteryFields  []string `yaml:"battery_fields,omitempty"`
	SignalFields   []string `yaml:"signal_fields,omitempty"`
}

// TableParser implements Parser from a ProviderConfig.
type TableParser struct {
	cfg ProviderConfig
}

// NewTableParser creates a parser from a provider configuration.
func NewTableParser(cfg ProviderConfig) (*TableParser, error) {
	cfg.Name = strings.ToLower(strings.TrimSpace(cfg.Name))
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if len(cfg.IDFields) == 0 {
		return nil, fmt.Errorf("provider %q: id_fields is required", cfg.Name)
	}
	if len(cfg.LatFields) == 0 || len(cfg.LngFields) == 0 {
		return nil, fmt.Errorf("provider %q: lat_fields and lng_fields are required", cfg.Name)
	}

	g := genericConfig
	cfg.TimeFields = orDefault(cfg.TimeFields, g.TimeFields)
	cfg.SpeedFields = orDefault(cfg.SpeedFields, g.SpeedFields)
	cfg.HeadingFields = orDefault(cfg.HeadingFields, g.HeadingFields)
	cfg.AltitudeFields = orDefault(cfg.AltitudeFields, g.AltitudeFields)
	cfg.AccuracyFields = orDefault(cfg.AccuracyFields, g.AccuracyFields)
	cfg.BatteryFields = orDefault(cfg.BatteryFields, g.BatteryFields)
	cfg.SignalFields = orDefault(cfg.SignalFields, g.SignalFields)

	return &TableParser{cfg: cfg}, nil
}

func mustTableParser(cfg ProviderConfig) *TableParser {
	p, err := NewTableParser(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// Name returns the provider name.
func (t *TableParser) Name() string {
	return t.cfg.Name
}

// CanParse reports whether one of the provider's identifier fields is present.
func (t *TableParser) CanParse(p Payload) bool {
	return p.Has(t.cfg.IDFields...)
}

// Parse extracts fields using the configured aliases.
func (t *TableParser) Parse(p Payload) (*Fields, error) {
	f := &Fields{
		DeviceID: p.firstString(t.cfg.IDFields),
	}

	lat, present, err := p.firstFloat(t.cfg.LatFields)
	if err != nil {
		return nil, malformed("latitude is not numeric", err)
	}
	f.Latitude, f.HasLatitude = lat, present

	lng, present, err := p.firstFloat(t.cfg.LngFields)
	if err != nil {
		return nil, malformed("longitude is not numeric", err)
	}
	f.Longitude, f.HasLongitude = lng, present

	if v, ok := p.first(t.cfg.TimeFields); ok {
		if s, isStr := v.(string); !isStr || strings.TrimSpace(s) != "" {
			f.Timestamp = v
		}
	}

	optional := []struct {
		name string
		keys []string
		def  float64
		dst  *float64
	}{
		{"speed", t.cfg.SpeedFields, 0, &f.Speed},
		{"heading", t.cfg.HeadingFields, 0, &f.Heading},
		{"altitude", t.cfg.AltitudeFields, 0, &f.Altitude},
		{"accuracy", t.cfg.AccuracyFields, DefaultAccuracy, &f.Accuracy},
		{"battery", t.cfg.BatteryFields, DefaultBattery, &f.Battery},
		{"signal", t.cfg.SignalFields, DefaultSignal, &f.SignalStrength},
	}
	for _, o := range optional {
		v, err := p.floatOr(o.keys, o.def)
		if err != nil {
			return nil, malformed(o.name+" is not a finite number", err)
		}
		*o.dst = v
	}

	return f, nil
}

// Detection sources, reported with each normalized reading.
const (
	DetectedExplicit = "explicit"
	DetectedMarker   = "marker"
	DetectedSniffed  = "sniffed"
	DetectedFallback = "fallback"
)

// markerFields hold a provider name embedded in the payload itself.
var markerFields = []string{"vendor", "manufacturer", "source", "collar_vendor"}

// Registry holds parsers in priority order.
type Registry struct {
	parsers  []Parser
	fallback Parser
}

// NewRegistry creates a registry with the given fallback parser.
func NewRegistry(fallback Parser) *Registry {
	return &Registry{fallback: fallback}
}

// NewDefaultRegistry creates a registry with the built-in vendors.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(mustTableParser(genericConfig))
	for _, cfg := range vendorConfigs {
		r.Register(mustTableParser(cfg))
	}
	return r
}

// Register appends a parser. Earlier parsers win when sniffing.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// GetByName returns a parser by name, including the fallback.
func (r *Registry) GetByName(name string) (Parser, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, false
	}
	for _, p := range r.parsers {
		if p.Name() == name {
			return p, true
		}
	}
	if r.fallback != nil && r.fallback.Name() == name {
		return r.fallback, true
	}
	return nil, false
}

// Names returns the registered provider names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.parsers)+1)
	for _, p := range r.parsers {
		names = append(names, p.Name())
	}
	if r.fallback != nil {
		names = append(names, r.fallback.Name())
	}
	return names
}

// Detect picks a parser: explicit declaration, then the payload's own
// provider field, then an embedded vendor marker, then identifier sniffing,
// then the fallback. Unknown names are ignored.
func (r *Registry) Detect(p Payload, declared string) (Parser, string) {
	if parser, ok := r.GetByName(declared); ok {
		return parser, DetectedExplicit
	}
	if parser, ok := r.GetByName(p.firstString([]string{"provider"})); ok {
		return parser, DetectedExplicit
	}
	if marker := strings.ToLower(p.firstString(markerFields)); marker != "" {
		for _, parser := range r.parsers {
			if strings.Contains(marker, parser.Name()) {
				return parser, DetectedMarker
			}
		}
	}
	for _, parser := range r.parsers {
		if parser.CanParse(p) {
			return parser, DetectedSniffed
		}
	}
	return r.fallback, DetectedFallback
}

// RegisterProviders adds configured providers, rejecting duplicate names.
func RegisterProviders(r *Registry, configs []ProviderConfig) error {
	seen := make(map[string]bool)
	for _, cfg := range configs {
		name := strings.ToLower(strings.TrimSpace(cfg.Name))
		if _, ok := r.GetByName(name); ok {
			return fmt.Errorf("provider name %q conflicts with existing provider", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate provider name: %q", name)
		}
		seen[name] = true
	}

	for _, cfg := range configs {
		p, err := NewTableParser(cfg)
		if err != nil {
			return fmt.Errorf("load provider %q: %w", cfg.Name, err)
		}
		r.Register(p)
	}
	return nil
}
