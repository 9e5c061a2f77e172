package shopify

import (
	"fmt"
	"strings"

	"shopbridge/internal/circuitbreaker"
	"shopbridge/internal/gql"
	"shopbridge/internal/normalize"
	"shopbridge/internal/ratelimit"
	"shopbridge/internal/request"
	"shopbridge/internal/strategy"
	"shopbridge/internal/transport"
)

// Errors raised below the router, re-exported so callers can match them
// with errors.As without importing internal packages.
type (
	MalformedFieldSetError         = gql.MalformedFieldSetError
	MissingChainResourceError      = request.MissingChainResourceError
	UnsupportedGraphOperationError = strategy.UnsupportedGraphOperationError
	RemoteUserError                = normalize.RemoteUserError
	UserError                      = normalize.UserError
	QueryError                     = normalize.QueryError
	StatusError                    = transport.StatusError
	CircuitOpenError               = circuitbreaker.ErrCircuitOpen
	RateLimitedError               = ratelimit.ErrRateLimited
)

// ErrNoPublications is returned when a new product cannot be published
// because the shop has no sales channel.
var ErrNoPublications = strategy.ErrNoPublications

// InvalidEndpointError reports ids that fit neither the entity nor the
// collection form of a resource's REST endpoint.
type InvalidEndpointError struct {
	Resource string
	Endpoint string
	IDs      []string
}

func (e *InvalidEndpointError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("%s has no REST endpoint", e.Resource)
	}
	return fmt.Sprintf("not enough ids for endpoint %q: ids(%s)", e.Endpoint, strings.Join(e.IDs, ","))
}

// MissingIDError is returned when navigating to a nested resource from a
// parent that was given no id.
type MissingIDError struct {
	Parent string
	Child  string
}

func (e *MissingIDError) Error() string {
	return fmt.Sprintf("calling %s from %s requires an id", e.Child, e.Parent)
}

// UnknownResourceError is returned for a resource name outside the known set.
type UnknownResourceError struct {
	Name string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("unknown resource %q", e.Name)
}

// ModelNotFoundError is returned by Find when the record does not exist.
type ModelNotFoundError struct {
	Resource string
	ID       string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// FollowUpError reports a composed mutation that stopped part way. Steps
// before Step completed and were not rolled back.
type FollowUpError struct {
	Step     string
	Resource string
	// Completed lists the steps that succeeded, primary first.
	Completed []string
	Err       error
}

func (e *FollowUpError) Error() string {
	return fmt.Sprintf("follow-up %q on %s failed after %s: %v", e.Step, e.Resource, strings.Join(e.Completed, ", "), e.Err)
}

func (e *FollowUpError) Unwrap() error { return e.Err }
