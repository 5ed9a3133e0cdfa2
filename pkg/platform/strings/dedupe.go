// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitAndDedupe splits a comma-separated list and dedupes the parts.
// Used for env vars that carry address lists (broker endpoints).
//
// Example:
//
//	SplitAndDedupe("a:9092, b:9092,a:9092,")
//	// Returns: []string{"a:9092", "b:9092"}
func SplitAndDedupe(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(list, ","))
}
