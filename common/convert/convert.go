package convert

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FloatFromString converts a string-typed interface value to a float64
func FloatFromString(raw interface{}) (float64, error) {
	str, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("unable to parse, value not string: %T", raw)
	}
	flt, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("could not convert value: %s Error: %s", str, err)
	}
	return flt, nil
}

// FloatFromScalar converts a decoded JSON scalar to a float64, accepting
// both string and numeric forms. Venues that mix the two on one field
// decode into interface{} and coerce through here.
func FloatFromScalar(raw interface{}) (float64, error) {
	s, ok := scalar(raw)
	if !ok {
		return 0, fmt.Errorf("unable to parse, value absent or non-scalar: %T", raw)
	}
	flt, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("could not convert value: %s Error: %s", s, err)
	}
	return flt, nil
}

// Int64FromString converts a string-typed interface value to an int64
func Int64FromString(raw interface{}) (int64, error) {
	str, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("unable to parse, value not string: %T", raw)
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse as int64: %T", raw)
	}
	return n, nil
}

// scalar normalizes a decoded JSON value to a string representation, with
// ok=false for the shapes coercers treat as absent: missing handled by the
// caller, nil, and the empty string.
func scalar(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// FloatFromMap returns the float value at key, or def when the key is
// missing, null, empty or unparseable
func FloatFromMap(m map[string]interface{}, key string, def float64) float64 {
	s, ok := scalar(m[key])
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

// FloatFromMap2 returns the first present float of two keys, or def
func FloatFromMap2(m map[string]interface{}, key, key2 string, def float64) float64 {
	if _, ok := scalar(m[key]); ok {
		return FloatFromMap(m, key, def)
	}
	return FloatFromMap(m, key2, def)
}

// IntFromMap returns the integer value at key, or def when absent or
// unparseable. Fractional inputs truncate.
func IntFromMap(m map[string]interface{}, key string, def int64) int64 {
	s, ok := scalar(m[key])
	if !ok {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return def
}

// StringFromMap returns the string value at key, or def when absent
func StringFromMap(m map[string]interface{}, key, def string) string {
	s, ok := scalar(m[key])
	if !ok {
		return def
	}
	return s
}

// StringFromMap2 returns the first present string of two keys, or def
func StringFromMap2(m map[string]interface{}, key, key2, def string) string {
	if s, ok := scalar(m[key]); ok {
		return s
	}
	if s, ok := scalar(m[key2]); ok {
		return s
	}
	return def
}

// UpperFromMap returns the uppercased string value at key, or def as-is
func UpperFromMap(m map[string]interface{}, key, def string) string {
	s, ok := scalar(m[key])
	if !ok {
		return def
	}
	return strings.ToUpper(s)
}

// LowerFromMap returns the lowercased string value at key, or def as-is
func LowerFromMap(m map[string]interface{}, key, def string) string {
	s, ok := scalar(m[key])
	if !ok {
		return def
	}
	return strings.ToLower(s)
}

// BoolFromMap returns the boolean at key, accepting JSON booleans and the
// strings "true"/"false", or def when absent
func BoolFromMap(m map[string]interface{}, key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	s, ok := scalar(m[key])
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

// TimeFromUnixMilli converts a millisecond timestamp to time.Time
func TimeFromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// TimeFromUnixSec converts a second-resolution timestamp to time.Time
func TimeFromUnixSec(sec int64) time.Time {
	return time.Unix(sec, 0)
}

// TimeFromUnixTimestampFloat converts a float64 millisecond timestamp, the
// shape venues emit inside decoded JSON, to time.Time
func TimeFromUnixTimestampFloat(raw interface{}) (time.Time, error) {
	ts, ok := raw.(float64)
	if !ok {
		return time.Time{}, fmt.Errorf("unable to parse, value not float64: %T", raw)
	}
	return time.UnixMilli(int64(ts)), nil
}

// UnixMillis converts a time.Time to a millisecond timestamp
func UnixMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// RecvWindow converts a supplied time.Duration to milliseconds
func RecvWindow(d time.Duration) int64 {
	return int64(d) / int64(time.Millisecond)
}

// ISO8601 renders a time in the unified millisecond RFC 3339 form used on
// outbound date parameters, always UTC
func ISO8601(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// iso8601Layouts covers the datetime spellings venues emit
var iso8601Layouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDatetime parses a venue datetime string, tolerating second and
// sub-second precision with or without zone designators. Zoneless inputs are
// taken as UTC.
func ParseDatetime(s string) (time.Time, error) {
	for _, layout := range iso8601Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Location() == time.Local {
				return t.UTC(), nil
			}
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime %q", s)
}

// BoolPtr takes in boolean condition and returns pointer version of it
func BoolPtr(condition bool) *bool {
	b := condition
	return &b
}
