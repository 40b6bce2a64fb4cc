package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// textKeys are probed, in order, when a free-text field arrives as an object.
var textKeys = []string{"message", "text", "content"}

// listKeys are probed, in order, when a string-list element arrives as an object.
var listKeys = []string{"point", "issue", "description", "name", "region", "state", "message"}

// Text coerces v to a flat string. A string passes through unchanged.
// Objects yield their trimmed message/text/content field when present and
// their JSON encoding otherwise.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		for _, key := range textKeys {
			if s, ok := t[key].(string); ok {
				return strings.TrimSpace(s)
			}
		}
		return encode(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return encode(t)
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Strings coerces v to a list of strings. A single string becomes a one
// element list; object elements are reduced through listKeys.
func Strings(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return []string{}
	case []any:
		out := make([]string, 0, len(t))
		for _, el := range t {
			if s := element(el); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := element(t); s != "" {
			return []string{s}
		}
		return []string{}
	}
}

func element(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, key := range listKeys {
			if s, ok := t[key].(string); ok && s != "" {
				return strings.TrimSpace(s)
			}
		}
		return encode(t)
	default:
		return Text(t)
	}
}

// Number coerces v to a float. Numeric strings such as "4.5" or "80%" are
// accepted; anything else is zero.
func Number(v any) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return t
	case int:
		return float64(t)
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case map[string]any:
		for _, key := range []string{"value", "score"} {
			if inner, ok := t[key]; ok {
				return Number(inner)
			}
		}
	}
	return 0
}

// Integer coerces v to an int, truncating fractions. Strings like "1,204" parse.
func Integer(v any) int {
	if s, ok := v.(string); ok {
		v = strings.ReplaceAll(s, ",", "")
	}
	return int(Number(v))
}

// Boolean coerces v to a bool. ok is false when v carried no verdict.
func Boolean(v any) (value bool, ok bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "approved":
			return true, true
		case "false", "no", "rejected":
			return false, true
		}
	case float64:
		return t != 0, true
	}
	return false, false
}

// Field returns the first present value among keys.
func Field(obj map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := obj[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// Nested returns obj[key] as an object, or an empty map.
func Nested(obj map[string]any, keys ...string) map[string]any {
	if m, ok := Field(obj, keys...).(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func encode(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
