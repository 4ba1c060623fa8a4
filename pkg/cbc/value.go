package cbc

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Value is a typed view over one raw JSON-decoded field.
//
// The zero Value is Missing. A present field whose JSON value was null is
// present but IsNull.
type Value struct {
	raw     any
	present bool
}

// Missing is returned for fields a document does not carry.
var Missing = Value{}

// ValueOf wraps a raw decoded value.
func ValueOf(raw any) Value {
	return Value{raw: raw, present: true}
}

// IsMissing reports whether the field was absent.
func (v Value) IsMissing() bool {
	return !v.present
}

// IsNull reports whether the field was present with a null value.
func (v Value) IsNull() bool {
	return v.present && v.raw == nil
}

// Raw returns the underlying decoded value.
func (v Value) Raw() any {
	return v.raw
}

// String returns the value as a string. Numbers and booleans are formatted.
func (v Value) String() string {
	switch t := v.raw.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}

		return string(data)
	}
}

// Int64 returns the value as an integer, or 0 when it is not numeric.
func (v Value) Int64() int64 {
	switch t := v.raw.(type) {
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0
			}

			return int64(f)
		}

		return n
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}

		return n
	default:
		return 0
	}
}

// Int returns the value as an int.
func (v Value) Int() int {
	return int(v.Int64())
}

// Float64 returns the value as a float, or 0 when it is not numeric.
func (v Value) Float64() float64 {
	switch t := v.raw.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}

		return f
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}

		return f
	default:
		return 0
	}
}

// Bool returns the value as a boolean.
func (v Value) Bool() bool {
	switch t := v.raw.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)

		return err == nil && b
	default:
		return false
	}
}

// Time parses the value as an RFC 3339 timestamp.
func (v Value) Time() time.Time {
	s, ok := v.raw.(string)
	if !ok || s == "" {
		return time.Time{}
	}

	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return ts
}

// Slice returns the value as a list.
func (v Value) Slice() []any {
	if s, ok := v.raw.([]any); ok {
		return s
	}

	return nil
}

// Strings returns the value as a list of strings. A scalar becomes a one-element list.
func (v Value) Strings() []string {
	switch t := v.raw.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, ValueOf(item).String())
		}

		return out
	case []string:
		return t
	case nil:
		return nil
	default:
		return []string{v.String()}
	}
}

// Map returns the value as a nested object.
func (v Value) Map() map[string]any {
	if m, ok := v.raw.(map[string]any); ok {
		return m
	}

	return nil
}

// Get reads a nested field of an object value.
func (v Value) Get(name string) Value {
	return Fields(v.Map()).Get(name)
}

// Fields is a decoded JSON document.
type Fields map[string]any

// Get reads a field. Dotted names walk nested objects.
func (f Fields) Get(name string) Value {
	if f == nil {
		return Missing
	}

	if raw, ok := f[name]; ok {
		return ValueOf(raw)
	}

	if !strings.Contains(name, ".") {
		return Missing
	}

	current := map[string]any(f)
	parts := strings.Split(name, ".")

	for i, part := range parts {
		raw, ok := current[part]
		if !ok {
			return Missing
		}

		if i == len(parts)-1 {
			return ValueOf(raw)
		}

		next, ok := raw.(map[string]any)
		if !ok {
			return Missing
		}

		current = next
	}

	return Missing
}

// Has reports whether a top-level field is present.
func (f Fields) Has(name string) bool {
	_, ok := f[name]

	return ok
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}

	return out
}

// Merge copies every field from other into f.
func (f Fields) Merge(other map[string]any) {
	for k, v := range other {
		f[k] = v
	}
}
