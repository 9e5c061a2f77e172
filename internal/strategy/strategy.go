// Package strategy builds graph documents for each resource family.
package strategy

import (
	"fmt"

	"shopbridge/internal/canonical"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
)

// Strategy builds the graph document for one resource family.
type Strategy interface {
	Resource() canonical.Resource
	BuildQuery(rc *request.Context) (*gql.Document, error)
	BuildMutation(rc *request.Context) (*gql.Document, error)
}

// Composer is implemented by strategies whose mutations need dependent
// follow-up operations once the primary result is known.
type Composer interface {
	FollowUps(rc *request.Context, primary any) ([]PendingOperation, error)
}

// PendingOperation is a follow-up call to run after a primary mutation.
type PendingOperation struct {
	Step     string
	Resource canonical.Resource
	Mutation bool
	Chain    []request.Hop
	IDs      []string
	Suffix   string
	Payload  any
	// Bind, when set, replaces Payload with a value derived from the results
	// gathered so far: prior[0] is the primary result, followed by the
	// results of earlier follow-ups in order.
	Bind func(prior []any) (any, error)
}

// Context freezes the operation into a request context.
func (p PendingOperation) Context(prior []any) (*request.Context, error) {
	payload := p.Payload
	if p.Bind != nil {
		var err error
		if payload, err = p.Bind(prior); err != nil {
			return nil, err
		}
	}
	return request.New(request.Params{
		Resource: string(p.Resource),
		Mutation: p.Mutation,
		Payload:  payload,
		Chain:    p.Chain,
		IDs:      p.IDs,
		Suffix:   p.Suffix,
	}), nil
}

// BuildDocument dispatches to the query or mutation builder.
func BuildDocument(s Strategy, rc *request.Context) (*gql.Document, error) {
	if rc.IsMutation() {
		return s.BuildMutation(rc)
	}
	return s.BuildQuery(rc)
}

// UnsupportedGraphOperationError reports a resource/operation pair with no
// graph implementation.
type UnsupportedGraphOperationError struct {
	Resource  canonical.Resource
	Operation string
	Hint      string
}

func (e *UnsupportedGraphOperationError) Error() string {
	msg := fmt.Sprintf("graph %s on %s is not supported", e.Operation, e.Resource)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

func unsupported(r canonical.Resource, rc *request.Context, hint string) error {
	op := "query"
	if rc.IsMutation() {
		op = "mutation"
	}
	if s := rc.Suffix(); s != "" {
		op += " " + s
	}
	return &UnsupportedGraphOperationError{Resource: r, Operation: op, Hint: hint}
}

// For returns the strategy of r, or false when r has no graph implementation.
func For(r canonical.Resource) (Strategy, bool) {
	switch r {
	case canonical.Orders:
		return orders{}, true
	case canonical.Products:
		return products{}, true
	case canonical.Variants:
		return variants{}, true
	case canonical.FulfillmentOrders:
		return fulfillmentOrders{}, true
	case canonical.FulfillmentServices:
		return fulfillmentServices{}, true
	case canonical.Fulfillments:
		return fulfillments{}, true
	case canonical.Images:
		return images{}, true
	case canonical.Webhooks:
		return webhooks{}, true
	case canonical.Publications:
		return publications{}, true
	default:
		return nil, false
	}
}

// Registry decides per resource whether the graph protocol is used.
type Registry struct {
	enabled map[canonical.Resource]bool
	pilot   bool
}

// NewRegistry builds a registry from per-resource flags. When pilot is set
// every resource with a strategy uses the graph protocol.
func NewRegistry(enabled map[canonical.Resource]bool, pilot bool) *Registry {
	cp := make(map[canonical.Resource]bool, len(enabled))
	for k, v := range enabled {
		cp[k] = v
	}
	return &Registry{enabled: cp, pilot: pilot}
}

// SupportsGraphProtocol reports whether r is routed to the graph protocol.
// Graph-only resources always are.
func (r *Registry) SupportsGraphProtocol(res canonical.Resource) bool {
	if res.Definition().GraphOnly {
		return true
	}
	if r == nil {
		return false
	}
	if r.enabled[res] {
		return true
	}
	if r.pilot {
		_, ok := For(res)
		return ok
	}
	return false
}

// Strategy returns the strategy for res, failing when res is routed to the
// graph protocol without an implementation.
func (r *Registry) Strategy(res canonical.Resource) (Strategy, error) {
	s, ok := For(res)
	if !ok {
		return nil, &UnsupportedGraphOperationError{
			Resource:  res,
			Operation: "any operation",
			Hint:      "graph protocol is enabled for this resource but no graph queries exist for it yet",
		}
	}
	return s, nil
}

var userErrors = gql.Object("userErrors", "field", "message")

var pageInfo = gql.Object("pageInfo", "hasNextPage", "hasPreviousPage", "startCursor", "endCursor")

func document(fs gql.FieldSet, subs map[string]string, prefix string, vars map[string]any) (*gql.Document, error) {
	q, err := gql.Build(fs, subs, prefix)
	if err != nil {
		return nil, err
	}
	return &gql.Document{Query: q, Variables: vars}, nil
}
