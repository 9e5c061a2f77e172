package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"shopbridge/internal/gid"
)

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

// get walks a dotted path through nested records.
func get(m map[string]any, path string) any {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		rec, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = rec[part]
	}
	return cur
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return gid.Stringify(v)
}

// toInt reads JSON numbers and numeric strings; a "?model_name=..." suffix
// on an id is ignored. Anything else yields 0.
func toInt(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(math.Round(t))
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, _ := t.Float64()
			return int64(math.Round(f))
		}
		return n
	case string:
		if n, ok := gid.NumericID(t); ok {
			return n
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return int64(math.Round(f))
		}
	}
	return 0
}

// intOrNil is toInt for optional ids.
func intOrNil(v any) any {
	if v == nil || v == "" {
		return nil
	}
	return toInt(v)
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	}
	return 0
}

func lowerOrNil(v any) any {
	s := str(v)
	if s == "" {
		return nil
	}
	return strings.ToLower(s)
}

// joinTags renders a tag list the way REST does.
func joinTags(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var parts []string
	for _, t := range asSlice(v) {
		if s := str(t); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func apiID(id any, resourceType string) any {
	s := str(id)
	if s == "" {
		return nil
	}
	return gid.ToGlobalID(s, resourceType)
}

func amount(m map[string]any, set string) any {
	return get(m, set+".shop_money.amount")
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
