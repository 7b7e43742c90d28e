package qinput

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// parseNumber accepts JSON numbers and numeric strings. ok is false for
// anything else, including NaN and infinities.
func parseNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clamp(f float64, lo, hi *float64) float64 {
	if lo != nil && f < *lo {
		f = *lo
	}
	if hi != nil && f > *hi {
		f = *hi
	}
	return f
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var truthy = map[string]bool{"true": true, "1": true, "yes": true, "on": true, "y": true, "t": true}

// parseBool reports the truthiness of v and whether v was usable at all.
func parseBool(v any) (bool, bool) {
	switch b := v.(type) {
	case nil:
		return false, false
	case bool:
		return b, true
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(b))], true
	}
	if f, ok := parseNumber(v); ok {
		return f != 0, true
	}
	return false, true
}

// parseText stringifies scalars. ok is false for nil and for composite
// values (objects, arrays).
func parseText(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case json.Number:
		return s.String(), true
	}
	if f, ok := parseNumber(v); ok {
		return formatNumber(f), true
	}
	return "", false
}
