package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Payload is a decoded provider JSON object.
type Payload map[string]any

// DecodePayload parses raw JSON into a Payload, keeping numbers exact.
func DecodePayload(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, malformed("invalid JSON object", err)
	}
	if p == nil {
		return nil, malformed("payload is null", nil)
	}
	return p, nil
}

// lookup resolves a key, following dots into nested objects ("position.lat").
func (p Payload) lookup(key string) (any, bool) {
	var cur any = map[string]any(p)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok || v == nil {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// first returns the first key that is present.
func (p Payload) first(keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := p.lookup(k); ok {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether any of keys is present.
func (p Payload) Has(keys ...string) bool {
	_, ok := p.first(keys)
	return ok
}

func (p Payload) firstString(keys []string) string {
	v, ok := p.first(keys)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// firstFloat returns the first present key coerced to a float.
// present is true when a key exists even if it could not be coerced.
func (p Payload) firstFloat(keys []string) (value float64, present bool, err error) {
	v, ok := p.first(keys)
	if !ok {
		return 0, false, nil
	}
	f, err := toFloat(v)
	return f, true, err
}

// floatOr returns def when no key is present or the value is an empty
// string. A present value that is not a finite number is an error.
func (p Payload) floatOr(keys []string, def float64) (float64, error) {
	v, ok := p.first(keys)
	if !ok {
		return def, nil
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return def, nil
	}
	return toFloat(v)
}

// toFloat coerces a JSON number or numeric string. NaN and infinities are
// rejected so they never reach storage or JSON encoding.
func toFloat(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, fmt.Errorf("empty number")
		}
		f, err = strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("unsupported number type %T", v)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}

// Epoch values above this are treated as milliseconds.
const epochMillisThreshold = 1e12

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"02.01.2006 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// parseTimestamp converts an epoch number or date string to UTC.
// Layouts without a zone are read as UTC.
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case json.Number, float64, int:
		f, err := toFloat(t)
		if err != nil {
			return time.Time{}, err
		}
		return fromEpoch(f)
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

func fromEpoch(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return time.Time{}, fmt.Errorf("invalid epoch %v", f)
	}
	if f >= epochMillisThreshold {
		ms := int64(f)
		return time.UnixMilli(ms).UTC(), nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
