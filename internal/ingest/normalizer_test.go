package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

type fakeDevices map[string]*models.Device

func (f fakeDevices) GetByDeviceID(ctx context.Context, id string) (*models.Device, error) {
	return f[id], nil
}

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	devices := fakeDevices{
		"VEC-001": {DeviceID: "VEC-001", EntityID: "elephant-1", Active: true},
		"LTK-77":  {DeviceID: "LTK-77", EntityID: "elephant-2", Active: true},
		"FIT-9":   {DeviceID: "FIT-9", EntityID: "elephant-3", Active: true},
		"SAV-3":   {DeviceID: "SAV-3", EntityID: "elephant-4", Active: true},
		"GEN-5":   {DeviceID: "GEN-5", EntityID: "elephant-5", Active: true},
		"OLD-1":   {DeviceID: "OLD-1", EntityID: "elephant-6", Active: false},
	}
	n := NewNormalizer(NewDefaultRegistry(), devices)
	n.SetClock(func() time.Time { return fixedNow })
	return n
}

func TestNormalize_Vendors(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		declared   string
		provider   string
		entity     string
		lat, lng   float64
		detection  string
		battery    int
		speed      float64
		wantTimeTS time.Time
	}{
		{
			name:       "vectronic sniffed",
			payload:    `{"collarID":"VEC-001","latitude":6.1,"longitude":80.2,"acquisitionTime":"2024-03-10T08:00:00Z","batteryPercent":55}`,
			provider:   "vectronic",
			entity:     "elephant-1",
			lat:        6.1,
			lng:        80.2,
			detection:  DetectedSniffed,
			battery:    55,
			wantTimeTS: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		},
		{
			name:       "lotek snake case",
			payload:    `{"device_serial":"LTK-77","Latitude":"6.5","Longitude":"80.5","RecDateTime":1710057600,"Speed":3.5}`,
			provider:   "lotek",
			entity:     "elephant-2",
			lat:        6.5,
			lng:        80.5,
			detection:  DetectedSniffed,
			battery:    DefaultBattery,
			speed:      3.5,
			wantTimeTS: time.Unix(1710057600, 0).UTC(),
		},
		{
			name:       "followit nested position with millis",
			payload:    `{"unitId":"FIT-9","position":{"lat":6.2,"lng":80.3,"speed":1.2},"time":1710057600000,"batteryLevel":140}`,
			provider:   "followit",
			entity:     "elephant-3",
			lat:        6.2,
			lng:        80.3,
			detection:  DetectedSniffed,
			battery:    100,
			speed:      1.2,
			wantTimeTS: time.Unix(1710057600, 0).UTC(),
		},
		{
			name:       "savannah explicit",
			payload:    `{"tagId":"SAV-3","fix":{"lat":-1.5,"lon":35.1,"time":"2024-03-10 06:30:00"},"batt":12}`,
			declared:   "savannah",
			provider:   "savannah",
			entity:     "elephant-4",
			lat:        -1.5,
			lng:        35.1,
			detection:  DetectedExplicit,
			battery:    12,
			wantTimeTS: time.Date(2024, 3, 10, 6, 30, 0, 0, time.UTC),
		},
		{
			name:       "generic fallback aliases",
			payload:    `{"deviceId":"GEN-5","y":7.0,"x":81.0,"batt":"33"}`,
			provider:   "generic",
			entity:     "elephant-5",
			lat:        7.0,
			lng:        81.0,
			detection:  DetectedFallback,
			battery:    33,
			wantTimeTS: fixedNow,
		},
		{
			name:       "embedded marker",
			payload:    `{"vendor":"Vectronic Aerospace","collar_id":"VEC-001","latitude":6.0,"longitude":80.0,"timestamp":"2024-03-10T09:00:00+05:30"}`,
			provider:   "vectronic",
			entity:     "elephant-1",
			lat:        6.0,
			lng:        80.0,
			detection:  DetectedMarker,
			battery:    DefaultBattery,
			wantTimeTS: time.Date(2024, 3, 10, 3, 30, 0, 0, time.UTC),
		},
		{
			name:       "unknown declared provider falls through",
			payload:    `{"collar_id":"VEC-001","lat":6.0,"lon":80.0}`,
			declared:   "acme",
			provider:   "vectronic",
			entity:     "elephant-1",
			lat:        6.0,
			lng:        80.0,
			detection:  DetectedSniffed,
			battery:    DefaultBattery,
			wantTimeTS: fixedNow,
		},
	}

	n := newTestNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := n.Normalize(context.Background(), []byte(tt.payload), tt.declared)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			r := res.Reading
			if r.Provider != tt.provider {
				t.Errorf("Provider = %q, want %q", r.Provider, tt.provider)
			}
			if res.Detection != tt.detection {
				t.Errorf("Detection = %q, want %q", res.Detection, tt.detection)
			}
			if r.EntityID != tt.entity {
				t.Errorf("EntityID = %q, want %q", r.EntityID, tt.entity)
			}
			if r.Latitude != tt.lat || r.Longitude != tt.lng {
				t.Errorf("position = (%v,%v), want (%v,%v)", r.Latitude, r.Longitude, tt.lat, tt.lng)
			}
			if r.BatteryLevel != tt.battery {
				t.Errorf("BatteryLevel = %d, want %d", r.BatteryLevel, tt.battery)
			}
			if r.Speed != tt.speed {
				t.Errorf("Speed = %v, want %v", r.Speed, tt.speed)
			}
			if !r.Timestamp.Equal(tt.wantTimeTS) {
				t.Errorf("Timestamp = %v, want %v", r.Timestamp, tt.wantTimeTS)
			}
			if r.ID == "" || len(r.RawPayload) == 0 {
				t.Error("reading should carry an id and the raw payload")
			}
		})
	}
}

func TestNormalize_Defaults(t *testing.T) {
	n := newTestNormalizer()
	res, err := n.Normalize(context.Background(), []byte(`{"device_id":"GEN-5","lat":6,"lon":80}`), "")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	r := res.Reading
	if r.BatteryLevel != 100 || r.SignalStrength != -50 || r.Accuracy != 5.0 {
		t.Errorf("defaults not applied: battery=%d signal=%d accuracy=%v", r.BatteryLevel, r.SignalStrength, r.Accuracy)
	}
	if r.Speed != 0 || r.Heading != 0 || r.Altitude != 0 {
		t.Errorf("motion defaults not zero: %+v", r)
	}
	if !r.Timestamp.Equal(fixedNow) {
		t.Errorf("absent timestamp should default to now, got %v", r.Timestamp)
	}
}

func TestNormalize_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"latitude out of range", `{"collarID":"VEC-001","latitude":95,"longitude":80}`, ErrInvalidCoordinate},
		{"longitude out of range", `{"collarID":"VEC-001","latitude":6,"longitude":-181}`, ErrInvalidCoordinate},
		{"missing latitude", `{"collarID":"VEC-001","longitude":80}`, ErrInvalidCoordinate},
		{"unregistered device", `{"collarID":"VEC-999","latitude":6,"longitude":80}`, ErrUnknownDevice},
		{"inactive device", `{"device_id":"OLD-1","lat":6,"lon":80}`, ErrUnknownDevice},
		{"no identifier", `{"lat":6,"lon":80}`, ErrMalformedPayload},
		{"not json", `lat=6`, ErrMalformedPayload},
		{"json array", `[1,2]`, ErrMalformedPayload},
		{"unparseable timestamp", `{"collarID":"VEC-001","latitude":6,"longitude":80,"timestamp":"yesterday-ish"}`, ErrMalformedPayload},
		{"negative speed", `{"collarID":"VEC-001","latitude":6,"longitude":80,"speed":-2}`, ErrMalformedPayload},
		{"non numeric latitude", `{"collarID":"VEC-001","latitude":"north","longitude":80}`, ErrMalformedPayload},
		{"NaN latitude", `{"collarID":"VEC-001","latitude":"NaN","longitude":80}`, ErrMalformedPayload},
		{"NaN heading", `{"collarID":"VEC-001","latitude":6,"longitude":80,"heading":"NaN"}`, ErrMalformedPayload},
		{"infinite speed", `{"collarID":"VEC-001","latitude":6,"longitude":80,"speed":"Inf"}`, ErrMalformedPayload},
		{"negative infinite altitude", `{"collarID":"VEC-001","latitude":6,"longitude":80,"altitude":"-Inf"}`, ErrMalformedPayload},
		{"NaN dilution of precision", `{"collarID":"VEC-001","latitude":6,"longitude":80,"dop":"nan"}`, ErrMalformedPayload},
		{"infinite battery", `{"collarID":"VEC-001","latitude":6,"longitude":80,"batteryPercent":"+Inf"}`, ErrMalformedPayload},
		{"non numeric signal", `{"collarID":"VEC-001","latitude":6,"longitude":80,"rssi":"strong"}`, ErrMalformedPayload},
		{"far future timestamp", `{"collarID":"VEC-001","latitude":6,"longitude":80,"timestamp":"2099-01-01T00:00:00Z"}`, ErrMalformedPayload},
	}

	n := newTestNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(context.Background(), []byte(tt.payload), "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Normalize() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNormalize_ClockSkew(t *testing.T) {
	n := newTestNormalizer()
	payload := func(ts time.Time) []byte {
		return []byte(`{"collarID":"VEC-001","latitude":6,"longitude":80,"timestamp":"` + ts.Format(time.RFC3339) + `"}`)
	}

	res, err := n.Normalize(context.Background(), payload(fixedNow.Add(4*time.Minute)), "")
	if err != nil {
		t.Fatalf("reading within default skew: %v", err)
	}
	if !res.Reading.Timestamp.Equal(fixedNow.Add(4 * time.Minute)) {
		t.Errorf("Timestamp = %v, want it kept as sent", res.Reading.Timestamp)
	}

	if _, err := n.Normalize(context.Background(), payload(fixedNow.Add(10*time.Minute)), ""); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("reading 10m ahead: error = %v, want malformed", err)
	}

	n.SetMaxClockSkew(time.Hour)
	if _, err := n.Normalize(context.Background(), payload(fixedNow.Add(10*time.Minute)), ""); err != nil {
		t.Errorf("reading 10m ahead with 1h skew: %v", err)
	}
}

func TestNormalize_EmptyOptionalUsesDefault(t *testing.T) {
	n := newTestNormalizer()
	res, err := n.Normalize(context.Background(), []byte(`{"device_id":"GEN-5","lat":6,"lon":80,"speed":"","battery":" "}`), "")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Reading.Speed != 0 || res.Reading.BatteryLevel != DefaultBattery {
		t.Errorf("empty optional fields: speed=%v battery=%d", res.Reading.Speed, res.Reading.BatteryLevel)
	}
}

func TestNormalize_TypedErrors(t *testing.T) {
	n := newTestNormalizer()

	_, err := n.Normalize(context.Background(), []byte(`{"collarID":"VEC-404","latitude":6,"longitude":80}`), "")
	var unknown *UnknownDeviceError
	if !errors.As(err, &unknown) || unknown.DeviceID != "VEC-404" {
		t.Errorf("expected UnknownDeviceError for VEC-404, got %v", err)
	}

	_, err = n.Normalize(context.Background(), []byte(`{"collarID":"VEC-001","latitude":95,"longitude":80}`), "")
	var coord *InvalidCoordinateError
	if !errors.As(err, &coord) || coord.Field != "latitude" || coord.Value != 95 {
		t.Errorf("expected InvalidCoordinateError on latitude, got %v", err)
	}
}

func TestDecode_OfflineSkipsDeviceLookup(t *testing.T) {
	n := NewNormalizer(nil, nil)
	res, err := n.Normalize(context.Background(), []byte(`{"collarID":"ANY","latitude":6,"longitude":80}`), "")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Reading.EntityID != "" || res.Reading.DeviceID != "ANY" {
		t.Errorf("unexpected reading: %+v", res.Reading)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   any
		want time.Time
	}{
		{"1710057600", time.Unix(1710057600, 0).UTC()},
		{"1710057600500", time.UnixMilli(1710057600500).UTC()},
		{"2024-03-10T08:00:00.123Z", time.Date(2024, 3, 10, 8, 0, 0, 123000000, time.UTC)},
		{"10.03.2024 08:00:00", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)},
		{"2024-03-10", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{float64(1710057600.5), time.Unix(1710057600, 500000000).UTC()},
	}
	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		if err != nil {
			t.Errorf("parseTimestamp(%v) error = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []any{"soon", "-5", true} {
		if _, err := parseTimestamp(bad); err == nil {
			t.Errorf("parseTimestamp(%v) should fail", bad)
		}
	}
}

func TestRegisterProviders(t *testing.T) {
	r := NewDefaultRegistry()

	err := RegisterProviders(r, []ProviderConfig{{
		Name:      "ats",
		IDFields:  []string{"ctn"},
		LatFields: []string{"gps.lat"},
		LngFields: []string{"gps.lon"},
	}})
	if err != nil {
		t.Fatalf("RegisterProviders() error = %v", err)
	}

	payload, _ := DecodePayload([]byte(`{"ctn":"A1","gps":{"lat":1,"lon":2}}`))
	p, how := r.Detect(payload, "")
	if p.Name() != "ats" || how != DetectedSniffed {
		t.Errorf("Detect() = %s/%s, want ats/sniffed", p.Name(), how)
	}

	names := r.Names()
	if names[len(names)-1] != "generic" || names[len(names)-2] != "ats" {
		t.Errorf("Names() = %v, want custom provider before generic fallback", names)
	}

	if err := RegisterProviders(r, []ProviderConfig{{Name: "lotek", IDFields: []string{"a"}, LatFields: []string{"b"}, LngFields: []string{"c"}}}); err == nil {
		t.Error("duplicate built-in name should be rejected")
	}
	if err := RegisterProviders(r, []ProviderConfig{{Name: "x"}}); err == nil {
		t.Error("provider without id fields should be rejected")
	}
}
