// Package strings holds small helpers for list-valued settings.
package strings

import (
	"strings"
)

// Compact trims each value and drops blanks and repeats, keeping the first
// occurrence of every value. A nil or empty input is returned as is.
//
//	Compact([]string{" kafka-1:9092", "kafka-2:9092", "", "kafka-1:9092"})
//	// []string{"kafka-1:9092", "kafka-2:9092"}
func Compact(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
