package shopify

import (
	"context"
	"fmt"
	"time"

	"shopbridge/internal/canonical"
	"shopbridge/internal/gql"
	"shopbridge/internal/normalize"
	"shopbridge/internal/request"
	"shopbridge/internal/strategy"
)

// Document is a graph query text and its variables.
type Document = gql.Document

// Hop is one parent resource navigated before the terminal resource.
type Hop = request.Hop

// RequestParams describes a logical operation for BuildDocument.
type RequestParams = request.Params

// BuildDocument returns the graph document for an operation on resource
// without sending it.
func BuildDocument(resource string, params RequestParams) (*Document, error) {
	res, err := canonical.Lookup(resource)
	if err != nil {
		return nil, &UnknownResourceError{Name: resource}
	}
	s, ok := strategy.For(res)
	if !ok {
		return nil, &UnsupportedGraphOperationError{Resource: res, Operation: "any operation", Hint: "no graph queries exist for this resource"}
	}
	params.Resource = string(res)
	return buildDocument(s, request.New(params))
}

func buildDocument(s strategy.Strategy, rc *request.Context) (*Document, error) {
	return strategy.BuildDocument(s, rc)
}

// query runs a graph read and normalizes its response.
func (c *Client) query(ctx context.Context, res canonical.Resource, rc *request.Context) (out any, err error) {
	start := time.Now()
	ctx, span, log := c.span(ctx, "shopify.graph.query", res, protocolGraph)
	defer func() { c.finish(span, log, protocolGraph, res, start, err) }()

	s, err := c.registry.Strategy(res)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, s, rc)
}

// mutate runs a graph mutation, then the follow-up operations its
// strategy derives from the normalized result. The first failing step
// aborts the rest.
func (c *Client) mutate(ctx context.Context, res canonical.Resource, rc *request.Context) (out *MutationResult, err error) {
	start := time.Now()
	ctx, span, log := c.span(ctx, "shopify.graph.mutation", res, protocolGraph)
	defer func() { c.finish(span, log, protocolGraph, res, start, err) }()

	s, err := c.registry.Strategy(res)
	if err != nil {
		return nil, err
	}
	primary, err := c.send(ctx, s, rc)
	if err != nil {
		return nil, err
	}
	result := &MutationResult{Record: primary}

	composer, ok := s.(strategy.Composer)
	if !ok {
		return result, nil
	}
	ops, err := composer.FollowUps(rc, primary)
	if err != nil {
		return nil, &FollowUpError{Step: "plan", Resource: string(res), Completed: []string{string(res)}, Err: err}
	}

	prior := []any{primary}
	completed := []string{string(res)}
	for _, op := range ops {
		stepRes, err := c.followUp(ctx, op, prior)
		c.metrics.RecordFollowUp(op.Step, err == nil)
		if err != nil {
			log.Warn("follow-up failed", "step", op.Step, "error", err)
			return nil, &FollowUpError{Step: op.Step, Resource: string(op.Resource), Completed: completed, Err: err}
		}
		log.Debug("follow-up complete", "step", op.Step)
		prior = append(prior, stepRes)
		completed = append(completed, op.Step)
		result.FollowUps = append(result.FollowUps, StepResult{Step: op.Step, Resource: string(op.Resource), Result: stepRes})
	}
	return result, nil
}

// followUp runs one composed step through the full graph pipeline.
func (c *Client) followUp(ctx context.Context, op strategy.PendingOperation, prior []any) (any, error) {
	rc, err := op.Context(prior)
	if err != nil {
		return nil, err
	}
	if !op.Mutation {
		return c.query(ctx, op.Resource, rc)
	}
	res, err := c.mutate(ctx, op.Resource, rc)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

func (c *Client) send(ctx context.Context, s strategy.Strategy, rc *request.Context) (any, error) {
	doc, err := buildDocument(s, rc)
	if err != nil {
		return nil, err
	}
	if c.cfg.ValidateDocuments {
		if err := gql.Validate(doc.Query); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Resource(), err)
		}
	}
	raw, err := c.GraphQL(ctx, doc.Query, doc.Variables)
	if err != nil {
		return nil, err
	}
	return normalize.Normalize(s.Resource(), raw)
}
