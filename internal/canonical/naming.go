package canonical

import (
	"strings"
	"sync"
	"unicode"
)

// Field names form a small stable set, so conversions are memoized for the
// life of the process.
var (
	snakeCache  sync.Map
	camelCache  sync.Map
	studlyCache sync.Map
)

// SnakeCase converts "countryCodeV2" to "country_code_v2".
func SnakeCase(s string) string {
	if v, ok := snakeCache.Load(s); ok {
		return v.(string)
	}
	out := toSnake(s)
	snakeCache.Store(s, out)
	return out
}

func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '_' && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == ' ' || r == '-':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StudlyCase converts "line_items" to "LineItems".
func StudlyCase(s string) string {
	if v, ok := studlyCache.Load(s); ok {
		return v.(string)
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	var b strings.Builder
	for _, p := range parts {
		rs := []rune(p)
		rs[0] = unicode.ToUpper(rs[0])
		b.WriteString(string(rs))
	}
	out := b.String()
	studlyCache.Store(s, out)
	return out
}

// CamelCase converts "body_html" to "bodyHtml".
func CamelCase(s string) string {
	if v, ok := camelCache.Load(s); ok {
		return v.(string)
	}
	studly := []rune(StudlyCase(s))
	if len(studly) > 0 {
		studly[0] = unicode.ToLower(studly[0])
	}
	out := string(studly)
	camelCache.Store(s, out)
	return out
}

// SnakeKeys returns a deep copy of v with every map key snake_cased.
func SnakeKeys(v any) any {
	return convertKeys(v, SnakeCase)
}

// CamelKeys returns a deep copy of v with every map key camelCased.
func CamelKeys(v any) any {
	return convertKeys(v, CamelCase)
}

func convertKeys(v any, conv func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[conv(k)] = convertKeys(val, conv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = convertKeys(val, conv)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = convertKeys(val, conv)
		}
		return out
	default:
		return v
	}
}
