// Package normalize reshapes graph responses into the records the REST
// endpoints return for the same resource.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
)

// UserError is one entry of a mutation's userErrors list.
type UserError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

// RemoteUserError reports validation failures returned inside a successful
// graph response. Its message matches the REST validation error format.
type RemoteUserError struct {
	Operation string
	Errors    []UserError
}

func (e *RemoteUserError) Error() string {
	msg := ""
	if len(e.Errors) > 0 {
		msg = e.Errors[0].Message
	}
	return restStyle(msg)
}

// QueryError reports top-level graph errors (syntax, access, throttling).
type QueryError struct {
	Messages []string
}

func (e *QueryError) Error() string {
	msg := ""
	if len(e.Messages) > 0 {
		msg = e.Messages[0]
	}
	return restStyle(msg)
}

func restStyle(msg string) string {
	body, _ := json.Marshal(map[string][]string{"errors": {msg}})
	return fmt.Sprintf("HTTP request returned status code 422:\n%s", body)
}

// Check returns the error carried by raw, if any: top-level errors first,
// then any non-empty user error list under a top-level operation.
func Check(raw map[string]any) error {
	if errs := asSlice(raw["errors"]); len(errs) > 0 {
		qe := &QueryError{}
		for _, e := range errs {
			if m := str(asMap(e)["message"]); m != "" {
				qe.Messages = append(qe.Messages, m)
			}
		}
		if len(qe.Messages) == 0 {
			qe.Messages = []string{"unknown graph error"}
		}
		return qe
	}
	for op, payload := range asMap(raw["data"]) {
		for key, val := range asMap(payload) {
			if key != "userErrors" && !strings.HasSuffix(key, "UserErrors") {
				continue
			}
			list := asSlice(val)
			if len(list) == 0 {
				continue
			}
			rue := &RemoteUserError{Operation: op}
			for _, item := range list {
				m := asMap(item)
				ue := UserError{Message: str(m["message"]), Code: str(m["code"])}
				for _, f := range asSlice(m["field"]) {
					ue.Field = append(ue.Field, str(f))
				}
				rue.Errors = append(rue.Errors, ue)
			}
			return rue
		}
	}
	return nil
}

// Normalize turns a raw graph response for res into REST-shaped records.
func Normalize(res canonical.Resource, raw map[string]any) (any, error) {
	if err := Check(raw); err != nil {
		return nil, err
	}
	data := asMap(Canonicalize(raw["data"]))
	if len(data) == 0 {
		return nil, nil
	}
	if n, ok := count(data); ok {
		return n, nil
	}
	switch res {
	case canonical.Orders:
		return orders(data), nil
	case canonical.Products:
		return products(data), nil
	case canonical.Variants:
		return variants(data), nil
	case canonical.FulfillmentOrders:
		return fulfillmentOrders(data), nil
	case canonical.Fulfillments:
		return fulfillments(data), nil
	case canonical.FulfillmentServices:
		return fulfillmentServices(data), nil
	case canonical.Images:
		return images(data), nil
	case canonical.Webhooks:
		return webhooks(data), nil
	case canonical.Publications:
		return publications(data), nil
	default:
		return envelope(data), nil
	}
}

// Canonicalize snake_cases every key, collapses edges and nodes wrappers
// into lists and reduces global id strings to their trailing id, at every
// depth.
func Canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if edges, ok := t["edges"]; ok {
			list := asSlice(edges)
			out := make([]any, 0, len(list))
			for _, e := range list {
				out = append(out, Canonicalize(asMap(e)["node"]))
			}
			return out
		}
		if nodes, ok := t["nodes"]; ok {
			list := asSlice(nodes)
			out := make([]any, 0, len(list))
			for _, n := range list {
				out = append(out, Canonicalize(n))
			}
			return out
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[canonical.SnakeCase(k)] = Canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Canonicalize(val)
		}
		return out
	case string:
		if gid.IsGlobalID(t) {
			return gid.FromGlobalID(t)
		}
		return t
	default:
		return v
	}
}

// count unwraps "<resource>_count": {count, precision} into the bare count.
func count(data map[string]any) (int64, bool) {
	if len(data) != 1 {
		return 0, false
	}
	for k, v := range data {
		if !strings.HasSuffix(k, "_count") {
			return 0, false
		}
		m, ok := v.(map[string]any)
		if !ok {
			return toInt(v), true
		}
		return toInt(m["count"]), true
	}
	return 0, false
}

// envelope returns the single operation's payload, stripped of error lists.
func envelope(data map[string]any) any {
	for _, v := range data {
		if m, ok := v.(map[string]any); ok {
			return withoutErrors(m)
		}
		return v
	}
	return nil
}

func withoutErrors(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "user_errors" || strings.HasSuffix(k, "_user_errors") {
			continue
		}
		out[k] = v
	}
	return out
}

// mutationPayload finds the first present op among ops and returns its
// payload without error lists.
func mutationPayload(data map[string]any, ops ...string) (map[string]any, bool) {
	for _, op := range ops {
		if m, ok := data[op].(map[string]any); ok {
			return withoutErrors(m), true
		}
	}
	return nil, false
}

// mapEach applies fn to each record of v.
func mapEach(v any, fn func(map[string]any) map[string]any) []any {
	list := asSlice(v)
	out := make([]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, fn(m))
		}
	}
	return out
}
