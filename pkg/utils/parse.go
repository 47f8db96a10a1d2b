package utils

import "strconv"

// ParseInt parses s to int, returning defaultValue if s is empty or
// unparseable. Used for the CLI's environment-variable overrides of
// numeric flag defaults (e.g. TABDIFF_WORKERS).
func ParseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// ParseBool parses s to bool, returning defaultValue if s is empty or
// unparseable. Accepts the same forms as strconv.ParseBool ("1", "t",
// "true", ... and their false counterparts).
func ParseBool(s string, defaultValue bool) bool {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue
	}
	return val
}
