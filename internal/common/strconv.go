package common

import "strconv"

// AtoiDefault parses value as an integer, returning def for empty or
// unparseable input.
func AtoiDefault(value string, def int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
