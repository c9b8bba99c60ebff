package logentry

import (
	"fmt"
	"strconv"
)

// Raw is the source-specific payload bag attached to a log entry.
type Raw map[string]any

// Str returns the value under key as a string. Numbers and booleans are formatted, anything else is "".
func (r Raw) Str(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	}
	return ""
}

// Float returns a numeric value under key. Numeric strings are accepted.
func (r Raw) Float(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Map returns a nested object under key, or nil.
func (r Raw) Map(key string) Raw {
	switch t := r[key].(type) {
	case map[string]any:
		return Raw(t)
	case Raw:
		return t
	}
	return nil
}

// Lookup returns the raw value and whether the key exists.
func (r Raw) Lookup(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}
