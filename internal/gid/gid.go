// Package gid converts between the platform's global identifiers
// (gid://shopify/<Type>/<id>) and the plain ids used by REST payloads.
package gid

import (
	"fmt"
	"strconv"
	"strings"
)

const prefix = "gid://"

// Namespace is the fixed namespace segment of every global id.
const Namespace = "shopify"

// IsGlobalID reports whether id is already an encoded global id.
func IsGlobalID(id string) bool {
	return strings.HasPrefix(id, prefix)
}

// ToGlobalID encodes id as a global id of the given resource type.
// Already encoded ids are returned unchanged.
func ToGlobalID(id, resourceType string) string {
	if IsGlobalID(id) {
		return id
	}
	return fmt.Sprintf("%s%s/%s/%s", prefix, Namespace, resourceType, id)
}

// FromGlobalID returns the final path segment of id. Empty input yields "".
func FromGlobalID(id string) string {
	if id == "" {
		return ""
	}
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// IDClause renders `id: "<gid>"` for splicing into a document.
func IDClause(id, resourceType string) string {
	return fmt.Sprintf("id: %q", ToGlobalID(id, resourceType))
}

// NumericID decodes id (global or plain) into an int64. A trailing query
// string such as "?model_name=CustomerAddress" is ignored.
func NumericID(id string) (int64, bool) {
	seg := FromGlobalID(id)
	if i := strings.IndexByte(seg, '?'); i >= 0 {
		seg = seg[:i]
	}
	n, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Stringify renders an identifier-like value (string, integer or float
// decoded from JSON) in its canonical string form.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
