// Package shopify is a client for the Shopify admin API. Each resource is
// served over REST or, when enabled in configuration, over the graph API
// with responses reshaped to match what REST would have returned.
package shopify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shopbridge/internal/audit"
	"shopbridge/internal/canonical"
	"shopbridge/internal/circuitbreaker"
	"shopbridge/internal/config"
	"shopbridge/internal/logging"
	"shopbridge/internal/metrics"
	"shopbridge/internal/ratelimit"
	"shopbridge/internal/redact"
	"shopbridge/internal/strategy"
	"shopbridge/internal/transport"
)

const (
	protocolREST  = "rest"
	protocolGraph = "graph"
)

// Client talks to one shop. It is safe for concurrent use; the Chain
// values it hands out are not.
type Client struct {
	cfg       *config.Config
	transport *transport.Client
	registry  *strategy.Registry
	logger    *slog.Logger
	metrics   *metrics.Collector
	tracer    trace.Tracer
	bucket    *ratelimit.Bucket
	breaker   *circuitbreaker.Breaker
	audit     *audit.Recorder
}

type clientOptions struct {
	logger     *slog.Logger
	metrics    *metrics.Collector
	httpClient *http.Client
	baseURL    string
	tracer     trace.Tracer
	audit      *audit.Recorder
}

// Option customizes New.
type Option func(*clientOptions)

// WithLogger sets the logger. Secrets from the configuration are scrubbed
// from request and response logs regardless of the handler.
func WithLogger(l *slog.Logger) Option { return func(o *clientOptions) { o.logger = l } }

// WithMetrics records call metrics into m.
func WithMetrics(m *metrics.Collector) Option { return func(o *clientOptions) { o.metrics = m } }

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option { return func(o *clientOptions) { o.httpClient = c } }

// WithBaseURL sends requests to url instead of https://<shop>.
func WithBaseURL(url string) Option { return func(o *clientOptions) { o.baseURL = url } }

// WithAudit records every mutation and delete in r.
func WithAudit(r *audit.Recorder) Option { return func(o *clientOptions) { o.audit = r } }

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option { return func(o *clientOptions) { o.tracer = t } }

// New validates cfg and builds a client for its shop.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("shopify: nil config")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("shopify: %w", err)
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("shopbridge")
	}

	redactor := redact.NewRedactor()
	redactor.AddSecrets(cfg.Secrets())

	bucket := ratelimit.New(cfg.Shop, cfg.RateLimit.BucketSize, cfg.RateLimit.LeakRate)
	breaker := circuitbreaker.New(cfg.Shop, cfg.CircuitBreaker.Threshold, cfg.CircuitBreaker.Cooldown())

	c := &Client{
		cfg:      cfg,
		registry: strategy.NewRegistry(cfg.GraphEndpoints(), cfg.IsPilotStore()),
		logger:   o.logger.With("shop", cfg.Shop),
		metrics:  o.metrics,
		tracer:   o.tracer,
		bucket:   bucket,
		breaker:  breaker,
		audit:    o.audit,
	}
	c.transport = transport.New(transport.Options{
		Shop:            cfg.Shop,
		Token:           cfg.Token,
		BaseURL:         o.baseURL,
		Timeout:         cfg.Timeout(),
		Retries:         cfg.RetryCount(),
		LogRequestData:  cfg.Options.LogAPIRequestData,
		LogResponseData: cfg.Options.LogAPIResponseData,
		LogDeprecations: cfg.Options.DeprecationWarnings(),
		HTTPClient:      o.httpClient,
		Logger:          c.logger,
		Redactor:        redactor,
		Bucket:          bucket,
		Breaker:         breaker,
		Metrics:         o.metrics,
	})
	return c, nil
}

// Config returns the client's configuration.
func (c *Client) Config() *config.Config { return c.cfg }

// RateLimit reports the client-side view of the shop's call bucket.
func (c *Client) RateLimit() ratelimit.Stats { return c.bucket.Stats() }

// Health reports the circuit breaker state.
func (c *Client) Health() circuitbreaker.Stats { return c.breaker.Stats() }

// UsesGraph reports whether calls on the named resource go to the graph API.
func (c *Client) UsesGraph(resource string) bool {
	res, err := canonical.Lookup(resource)
	if err != nil {
		return false
	}
	return c.registry.SupportsGraphProtocol(res)
}

// Resource starts a chain at the named top-level resource.
func (c *Client) Resource(name string, ids ...string) *Chain {
	ch := &Chain{client: c}
	return ch.Resource(name, ids...)
}

// Shop fetches the shop record.
func (c *Client) Shop(ctx context.Context) (map[string]any, error) {
	resp, err := c.transport.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/" + c.cfg.APIBase + "/shop.json",
	})
	if err != nil {
		return nil, err
	}
	body, _ := resp.Body.(map[string]any)
	shop, _ := body["shop"].(map[string]any)
	return shop, nil
}

// GraphQL posts a raw document and returns the decoded response without
// checking it for errors.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any) (map[string]any, error) {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	resp, err := c.transport.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/" + c.cfg.GraphQLAPIBase + "/graphql.json",
		Body:   payload,
	})
	if err != nil {
		return nil, err
	}
	body, ok := resp.Body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("graph response is %T, not an object", resp.Body)
	}
	return body, nil
}

// span starts an operation span and a logger tagged with a fresh op_id.
func (c *Client) span(ctx context.Context, name string, res canonical.Resource, protocol string) (context.Context, trace.Span, *slog.Logger) {
	ctx, span := c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("shopify.resource", string(res)),
		attribute.String("shopify.protocol", protocol),
	))
	opID := logging.NewOperationID()
	span.SetAttributes(attribute.String(logging.OperationKey, opID))
	return ctx, span, logging.ForOperation(c.logger, opID).With("resource", string(res), "protocol", protocol)
}

func (c *Client) finish(span trace.Span, log *slog.Logger, protocol string, res canonical.Resource, start time.Time, err error) {
	c.metrics.RecordRequest(protocol, string(res), time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Debug("operation failed", "error", err, "duration", time.Since(start))
	} else {
		log.Debug("operation complete", "duration", time.Since(start))
	}
	span.End()
}
