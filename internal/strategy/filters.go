package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"shopbridge/internal/gid"
	"shopbridge/internal/request"
)

// queryParams returns the GET query carried by a read operation.
func queryParams(rc *request.Context) map[string]any {
	if m, ok := rc.Payload().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// filterClause builds `query: "<clause>"` from the recognized filter keys,
// OR-joined. It returns "" when no key is present.
func filterClause(q map[string]any) string {
	var terms []string
	for _, id := range splitList(q["ids"]) {
		terms = append(terms, fmt.Sprintf("(id:%s)", gid.FromGlobalID(id)))
	}
	if name := str(q["name"]); name != "" {
		terms = append(terms, fmt.Sprintf("(name:%s)", name))
	}
	if min := str(q["created_at_min"]); min != "" {
		terms = append(terms, fmt.Sprintf("(created_at:>=%s)", min))
	}
	if len(terms) == 0 {
		return ""
	}
	return fmt.Sprintf("query: %q", strings.Join(terms, " OR "))
}

// sortClause turns "title desc" into "sortKey: TITLE, reverse: true". A
// single token is only uppercased.
func sortClause(q map[string]any) string {
	parts := strings.Fields(str(q["order"]))
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return "sortKey: " + strings.ToUpper(parts[0])
	default:
		reverse := strings.EqualFold(parts[1], "desc")
		return fmt.Sprintf("sortKey: %s, reverse: %t", strings.ToUpper(parts[0]), reverse)
	}
}

func filtersAndSort(q map[string]any) string {
	return joinArgs(filterClause(q), sortClause(q))
}

func joinArgs(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// limit reads the "limit" query key, falling back to def and capping at max
// when max is positive.
func limit(q map[string]any, def, max int) int {
	n := def
	switch v := q["limit"].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			n = parsed
		}
	}
	if n <= 0 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

func str(v any) string {
	return strings.TrimSpace(gid.Stringify(v))
}

func splitList(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	case []any:
		for _, p := range t {
			if s := str(p); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, p := range t {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// pick keeps only the allowed keys of m, renaming them as mapped.
func pick(m map[string]any, allow map[string]string) map[string]any {
	out := make(map[string]any, len(allow))
	for from, to := range allow {
		if v, ok := m[from]; ok {
			out[to] = v
		}
	}
	return out
}

func asRecord(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	case map[string]any:
		return []any{t}
	default:
		return nil
	}
}

// tagList accepts REST's comma-joined tags or a list.
func tagList(v any) []any {
	out := []any{}
	for _, t := range splitList(v) {
		out = append(out, t)
	}
	return out
}

func boolOr(v any, def bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

func upper(v any) string {
	return strings.ToUpper(str(v))
}
