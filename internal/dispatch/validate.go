package dispatch

import (
	"fmt"
	"time"
)

// stringArg extracts an optional string argument. A missing key or a
// non-string value yields the empty string with ok=false only on type
// mismatch.
func stringArg(args map[string]any, key string) (string, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

// requiredString extracts a mandatory non-empty string argument.
func requiredString(args map[string]any, key string) (string, error) {
	s, err := stringArg(args, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// timeArg extracts a mandatory RFC3339 timestamp argument.
func timeArg(args map[string]any, key string) (time.Time, error) {
	s, err := requiredString(args, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp, e.g. 2026-08-23T14:00:00Z", key)
	}
	return t, nil
}

// optionalTimeArg extracts an RFC3339 timestamp if present; a zero time means
// the argument was absent.
func optionalTimeArg(args map[string]any, key string) (time.Time, error) {
	s, err := stringArg(args, key)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp, e.g. 2026-08-23T14:00:00Z", key)
	}
	return t, nil
}

// intArg extracts an optional integer argument. JSON decoding yields
// float64, so both numeric shapes are accepted.
func intArg(args map[string]any, key string) (int64, bool, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true, nil
	case int:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer", key)
	}
}

// clampMaxResults bounds a requested result count to the allowed range,
// falling back to the default when absent.
func clampMaxResults(requested int64, present bool, def, cap int64) int64 {
	if !present {
		return def
	}
	if requested < 1 {
		return 1
	}
	if requested > cap {
		return cap
	}
	return requested
}
