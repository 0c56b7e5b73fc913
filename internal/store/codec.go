package store

import (
	"encoding/json"
	"time"
)

// EncodeJSON marshals v for storage in a text/jsonb column, panicking
// only on a programmer error (v must always be one of the small,
// JSON-safe domain types this package stores).
func EncodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic("store: unmarshalable value: " + err.Error())
	}
	return string(b)
}

// DecodeJSON unmarshals a stored column back into v.
func DecodeJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// FormatTime renders t for storage, or "" for a nil/zero time.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a stored timestamp, returning nil for an empty string.
func ParseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
