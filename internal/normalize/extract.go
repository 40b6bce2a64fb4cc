// Package normalize turns free-text model output into values of a fixed shape.
//
// Nothing in this package returns an error: every decoder yields a value of
// the expected shape and a flag telling whether the fallback was used.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Shape is the top-level container kind of a JSON payload.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeObject
	ShapeArray
)

var fenceExpr = regexp.MustCompile("(?m)^\\s*```[a-zA-Z0-9_-]*\\s*$")

// StripFences removes markdown code-fence marker lines such as ```json and ```.
func StripFences(raw string) string {
	cleaned := fenceExpr.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// ExtractJSON locates the outermost JSON-looking span in raw. The container
// that opens first wins and is closed by the last matching delimiter.
func ExtractJSON(raw string) (string, Shape) {
	text := StripFences(raw)

	obj := strings.IndexByte(text, '{')
	arr := strings.IndexByte(text, '[')

	var (
		start  int
		closer byte
		shape  Shape
	)
	switch {
	case obj >= 0 && (arr < 0 || obj < arr):
		start, closer, shape = obj, '}', ShapeObject
	case arr >= 0:
		start, closer, shape = arr, ']', ShapeArray
	default:
		return "", ShapeNone
	}

	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", ShapeNone
	}
	return text[start : end+1], shape
}

// Object parses raw as a JSON object. ok is false when the empty fallback was
// returned.
func Object(raw string) (map[string]any, bool) {
	span, shape := ExtractJSON(raw)
	if shape != ShapeObject {
		return map[string]any{}, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(span), &out); err != nil || out == nil {
		return map[string]any{}, false
	}
	return out, true
}

// Array parses raw as a JSON array. An object payload wrapping a single array
// field (for example {"businesses": [...]}) is unwrapped.
func Array(raw string) ([]any, bool) {
	span, shape := ExtractJSON(raw)
	switch shape {
	case ShapeArray:
		var out []any
		if err := json.Unmarshal([]byte(span), &out); err != nil || out == nil {
			return []any{}, false
		}
		return out, true
	case ShapeObject:
		var obj map[string]any
		if err := json.Unmarshal([]byte(span), &obj); err != nil {
			return []any{}, false
		}
		for _, v := range obj {
			if list, ok := v.([]any); ok && len(obj) == 1 {
				return list, true
			}
		}
	}
	return []any{}, false
}
