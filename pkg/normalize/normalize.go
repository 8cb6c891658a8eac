// Package normalize resolves canonical attributes from loosely shaped JSON
// objects. Each attribute is described by a Field: an ordered list of
// candidate keys and the kind of value expected under them. The first key
// that is present and holds a value of the right kind wins; anything else
// falls through to the caller's default. Nothing in this package panics on
// malformed input.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindList
	KindObject
	KindDate
)

// Field is one row of a decision table.
type Field struct {
	Name string
	Keys []string
	Kind Kind
}

func (f Field) String() string { return f.Name }

// String returns the first non-empty string under f's keys, trimmed.
func String(obj map[string]any, f Field, def string) string {
	for _, k := range f.Keys {
		if s, ok := asString(value(obj, k)); ok {
			return s
		}
	}
	return def
}

// Number returns the first finite number under f's keys. Numeric strings
// and extended-JSON number wrappers are accepted.
func Number(obj map[string]any, f Field) (float64, bool) {
	for _, k := range f.Keys {
		if n, ok := asNumber(value(obj, k)); ok {
			return n, true
		}
	}
	return 0, false
}

func NumberOr(obj map[string]any, f Field, def float64) float64 {
	if n, ok := Number(obj, f); ok {
		return n
	}
	return def
}

// Int is Number truncated toward zero.
func Int(obj map[string]any, f Field) (int, bool) {
	n, ok := Number(obj, f)
	if !ok || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}

func Bool(obj map[string]any, f Field, def bool) bool {
	for _, k := range f.Keys {
		switch v := value(obj, k).(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b
			}
		}
	}
	return def
}

// List returns the first list under f's keys. A string holding a JSON array
// is decoded. An empty list still counts as present.
func List(obj map[string]any, f Field) ([]any, bool) {
	for _, k := range f.Keys {
		if l, ok := AsList(value(obj, k)); ok {
			return l, true
		}
	}
	return nil, false
}

// Object returns the first object under f's keys; JSON-encoded objects are
// decoded.
func Object(obj map[string]any, f Field) (map[string]any, bool) {
	for _, k := range f.Keys {
		if m, ok := AsObject(value(obj, k)); ok {
			return m, true
		}
	}
	return nil, false
}

// Date returns the first parseable calendar date under f's keys, as UTC
// midnight.
func Date(obj map[string]any, f Field) (time.Time, bool) {
	for _, k := range f.Keys {
		if t, ok := AsDate(value(obj, k)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func DateOr(obj map[string]any, f Field, def time.Time) time.Time {
	if t, ok := Date(obj, f); ok {
		return t
	}
	return def
}

// Strings collects string values under the first key that yields any. A
// single string counts as a one-element list; list entries may also be
// objects carrying a "url".
func Strings(obj map[string]any, f Field) []string {
	for _, k := range f.Keys {
		v := value(obj, k)
		if s, ok := asString(v); ok {
			return []string{s}
		}
		l, ok := AsList(v)
		if !ok {
			continue
		}
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := asString(Unwrap(item)); ok {
				out = append(out, s)
				continue
			}
			if m, ok := item.(map[string]any); ok {
				if s := String(m, photoURL, ""); s != "" {
					out = append(out, s)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

var photoURL = Field{Name: "photo_url", Keys: []string{"url", "photo_url", "src"}, Kind: KindString}

// Envelope peels wrapper objects such as {"plan": {...}} or {"data": {...}}.
// Non-objects yield nil.
func Envelope(raw any, keys ...string) map[string]any {
	obj, ok := AsObject(raw)
	if !ok {
		return nil
	}
	if len(keys) == 0 {
		keys = []string{"plan", "travel_plan", "data"}
	}
	for _, k := range keys {
		if inner, ok := AsObject(obj[k]); ok {
			return inner
		}
	}
	return obj
}

func value(obj map[string]any, key string) any {
	if obj == nil {
		return nil
	}
	v, ok := obj[key]
	if !ok {
		return nil
	}
	return Unwrap(v)
}

// Unwrap strips single-key extended-JSON wrappers: {"$oid": ...} becomes the
// hex string, {"$date": ...} a time.Time, {"$numberLong": ...} and friends a
// float64. Other values pass through.
func Unwrap(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for k, inner := range m {
		switch k {
		case "$oid":
			s, ok := asString(inner)
			if !ok {
				return nil
			}
			if oid, err := primitive.ObjectIDFromHex(s); err == nil {
				return oid.Hex()
			}
			return s
		case "$date":
			if t, ok := unwrapDate(inner); ok {
				return t
			}
			return nil
		case "$numberInt", "$numberLong", "$numberDouble", "$numberDecimal":
			if n, ok := asNumber(inner); ok {
				return n
			}
			return nil
		}
	}
	return v
}

func unwrapDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		return parseDate(x)
	case map[string]any:
		if n, ok := asNumber(Unwrap(x)); ok {
			return primitive.DateTime(int64(n)).Time().UTC(), true
		}
	default:
		if n, ok := asNumber(x); ok {
			return primitive.DateTime(int64(n)).Time().UTC(), true
		}
	}
	return time.Time{}, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "undefined" || s == "null" {
		return "", false
	}
	return s, true
}

func asNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// AsList accepts a decoded JSON array or a string containing one.
func AsList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	case string:
		s := strings.TrimSpace(x)
		if !strings.HasPrefix(s, "[") {
			return nil, false
		}
		var out []any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// AsObject accepts a decoded JSON object or a string containing one.
func AsObject(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		if !strings.HasPrefix(s, "{") {
			return nil, false
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// AsDate accepts a time.Time, a date string, or a {"$date": ...} wrapper.
func AsDate(v any) (time.Time, bool) {
	switch x := Unwrap(v).(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return Midnight(x), true
	case string:
		return parseDate(x)
	}
	return time.Time{}, false
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Midnight(t), true
		}
	}
	return time.Time{}, false
}

// Midnight truncates t to its calendar date at UTC midnight, keeping the
// date as written rather than converting the instant.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
