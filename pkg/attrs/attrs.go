// Package attrs works with slog-style key-value attribute slices.
package attrs

import "fmt"

// ExtractString extracts a string value from a key-value attribute slice.
// The slice should be formatted as [key1, value1, key2, value2, ...].
// Returns empty string if the key is not found or the value is not a string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok {
			continue
		}
		if k == key {
			if v, ok := attrs[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}

// ToDetail converts a key-value attribute slice into a string map, skipping
// entries whose key is not a string. Values are stringified with fmt.Sprint
// so callers can pass numbers and booleans. Audit events use this to carry
// free-form detail without depending on slog.
func ToDetail(attrs []any) map[string]string {
	if len(attrs) < 2 {
		return nil
	}
	detail := make(map[string]string, len(attrs)/2)
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok {
			continue
		}
		detail[k] = fmt.Sprint(attrs[i+1])
	}
	if len(detail) == 0 {
		return nil
	}
	return detail
}
