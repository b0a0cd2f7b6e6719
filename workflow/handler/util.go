package handler

import (
	"encoding/json"
	"strconv"
)

// encodeJSON renders v as compact JSON, falling back to "null" on a
// marshal failure (config values are JSON-shaped by construction, so a
// failure here means a handler put something exotic in its own output).
func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// toNumber coerces v to float64. Coercion happens only at explicit
// handler sites like this one, never inside the template engine. Strings
// are parsed; every numeric Go type is widened.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toBool coerces v to a bool at an explicit handler-site declaration.
func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	default:
		return false, false
	}
}

// stringOr returns input[key] as a string, or fallback when absent or not
// a string.
func stringOr(input map[string]any, key, fallback string) string {
	if s, ok := input[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
