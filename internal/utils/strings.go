package utils

import "strings"

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseKeyValues parses "K1=V1,K2=V2" into a map. Keys are upper-cased.
// Entries without "=" are returned in invalid.
func ParseKeyValues(s string) (values map[string]string, invalid []string) {
	values = make(map[string]string)
	for _, entry := range ParseCSV(s) {
		key, value, ok := strings.Cut(entry, "=")
		key, value = strings.ToUpper(strings.TrimSpace(key)), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			invalid = append(invalid, entry)
			continue
		}
		values[key] = value
	}
	return values, invalid
}
