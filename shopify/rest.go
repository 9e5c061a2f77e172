package shopify

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/request"
)

// restPath builds "/<base>/<parents>/<endpoint>" for res. When the endpoint
// takes as many ids as were given it addresses the entity; with one id
// fewer it addresses the collection. suffix is spliced in before ".json".
func restPath(base string, res canonical.Resource, ids []string, chain []request.Hop, suffix string) (string, error) {
	def := res.Definition()
	if def.Endpoint == "" {
		return "", &InvalidEndpointError{Resource: string(res)}
	}
	placeholders := strings.Count(def.Endpoint, "%s")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var endpoint string
	switch placeholders {
	case len(ids):
		endpoint = fmt.Sprintf(def.Endpoint, args...)
	case len(ids) + 1:
		endpoint = fmt.Sprintf(strings.Replace(def.Endpoint, "/%s.json", ".json", 1), args...)
	default:
		return "", &InvalidEndpointError{Resource: string(res), Endpoint: def.Endpoint, IDs: ids}
	}

	var b strings.Builder
	b.WriteString("/")
	b.WriteString(strings.Trim(base, "/"))
	b.WriteString("/")
	for _, h := range chain {
		if h.Terminal {
			continue
		}
		b.WriteString(h.Resource)
		b.WriteString("/")
		if h.ID != "" {
			b.WriteString(h.ID)
			b.WriteString("/")
		}
	}
	b.WriteString(endpoint)

	path := b.String()
	if suffix = strings.Trim(suffix, "/"); suffix != "" {
		path = strings.Replace(path, ".json", "/"+suffix+".json", 1)
	}
	return path, nil
}

// restBody nests payload under the resource's entity key. A record takes
// its id from the last numeric positional id when it carries none.
func restBody(res canonical.Resource, raw any, record map[string]any, isRecord bool, ids []string) map[string]any {
	entity := res.Definition().Entity
	if !isRecord && raw != nil {
		return map[string]any{entity: raw}
	}
	return map[string]any{entity: withID(record, ids)}
}

func withID(payload map[string]any, ids []string) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	if _, ok := out["id"]; ok {
		return out
	}
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == "" {
			continue
		}
		if _, err := strconv.ParseInt(ids[i], 10, 64); err == nil {
			out["id"] = ids[i]
		}
		break
	}
	return out
}

// unwrap returns body[collection], else body[entity], else body.
func unwrap(res canonical.Resource, body any) any {
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	def := res.Definition()
	if v, ok := m[def.Collection]; ok {
		return v
	}
	if v, ok := m[def.Entity]; ok {
		return v
	}
	return body
}

// queryValues flattens a filter map into URL parameters. Lists are
// comma-joined, as the admin API expects for ids and fields.
func queryValues(q map[string]any) url.Values {
	if len(q) == 0 {
		return nil
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := url.Values{}
	for _, k := range keys {
		switch v := q[k].(type) {
		case nil:
		case []string:
			out.Set(k, strings.Join(v, ","))
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, gid.Stringify(item))
			}
			out.Set(k, strings.Join(parts, ","))
		case bool:
			out.Set(k, strconv.FormatBool(v))
		default:
			out.Set(k, gid.Stringify(v))
		}
	}
	return out
}

// splitSuffix turns "123/cancel" into a terminal hop carrying 123 and the
// action "cancel". Suffixes without a leading numeric segment pass through.
func splitSuffix(suffix string) (*request.Hop, string) {
	suffix = strings.Trim(suffix, "/")
	head, rest, ok := strings.Cut(suffix, "/")
	if !ok {
		return nil, suffix
	}
	if _, err := strconv.ParseInt(head, 10, 64); err != nil {
		return nil, suffix
	}
	return &request.Hop{Resource: head, Terminal: true}, rest
}
