// Package transport sends admin API requests for one shop: it signs them
// with the access token, paces them through the call-limit bucket, retries
// throttled and failed attempts and decodes JSON responses.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shopbridge/internal/circuitbreaker"
	"shopbridge/internal/logging"
	"shopbridge/internal/metrics"
	"shopbridge/internal/ratelimit"
	"shopbridge/internal/redact"
)

const (
	HeaderAccessToken      = "X-Shopify-Access-Token"
	HeaderRequestID        = "X-Request-Id"
	HeaderDeprecatedReason = "X-Shopify-API-Deprecated-Reason"
	HeaderVersionWarning   = "X-Shopify-Api-Version-Warning"
	HeaderAPIVersion       = "X-Shopify-Api-Version"
	headerRetryAfter       = "Retry-After"
	headerLink             = "Link"
	contentTypeJSON        = "application/json"
	tracerName             = "shopbridge/transport"
	maxLoggedBody          = 4096
	defaultRequestTimeout  = 30 * time.Second
)

// Options configures a Client. Shop and Token are required; every other
// field has a usable zero value. Timeout bounds each attempt, not the whole
// retried call.
type Options struct {
	Shop  string
	Token string
	// BaseURL overrides "https://<shop>".
	BaseURL string
	Timeout time.Duration
	Retries int

	LogRequestData  bool
	LogResponseData bool
	LogDeprecations bool

	HTTPClient *http.Client
	Logger     *slog.Logger
	Redactor   *redact.Redactor
	Bucket     *ratelimit.Bucket
	Breaker    *circuitbreaker.Breaker
	Metrics    *metrics.Collector
	Tracer     trace.Tracer
}

// Request is one admin API call. Path is relative to the shop root and
// starts with "/".
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a decoded 2xx reply.
type Response struct {
	Status int
	Header http.Header
	// Body is the decoded JSON document, or nil for an empty body.
	Body  any
	Links Links
	Limit ratelimit.CallLimit
}

// StatusError is returned for a non-2xx reply once retries are exhausted.
type StatusError struct {
	Status int
	Body   string
	Header http.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP request returned status code %d:\n%s", e.Status, e.Body)
}

// NotFound reports whether the reply was a 404.
func (e *StatusError) NotFound() bool { return e.Status == http.StatusNotFound }

// Client is safe for concurrent use.
type Client struct {
	opts    Options
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
	sleep   func(context.Context, time.Duration) error
}

// New builds a Client from opts.
func New(opts Options) *Client {
	c := &Client{
		opts:    opts,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		sleep:   sleepContext,
	}
	if c.baseURL == "" {
		c.baseURL = "https://" + opts.Shop
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.opts.Timeout <= 0 {
		c.opts.Timeout = defaultRequestTimeout
	}
	if c.opts.Retries < 0 {
		c.opts.Retries = 0
	}
	return c
}

// Shop returns the shop domain the client talks to.
func (c *Client) Shop() string { return c.opts.Shop }

// Do sends req, retrying throttled and transient failures.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = encoded
	}

	requestID := uuid.NewString()
	log := c.logger.With("method", method, "path", req.Path, "request_id", requestID)
	if c.opts.LogRequestData {
		log.Info("admin API request", "url", c.redact(target), "body", c.truncate(body))
	}

	attempts := c.opts.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.opts.Bucket.Wait(ctx); err != nil {
			return nil, err
		}
		if c.opts.Breaker != nil {
			if err := c.opts.Breaker.Allow(); err != nil {
				return nil, err
			}
		}

		resp, retryAfter, err := c.attempt(ctx, method, target, body, requestID, attempt)
		if err == nil {
			c.recordBreaker(nil)
			if c.opts.LogResponseData {
				log.Info("admin API response", "status", resp.Status, "body", c.describe(resp.Body))
			}
			return resp, nil
		}
		lastErr = err

		code := 0
		var se *StatusError
		if errors.As(err, &se) {
			code = se.Status
		}
		if code == 0 || code >= 500 {
			c.recordBreaker(err)
		} else {
			c.recordBreaker(nil)
		}
		if code == http.StatusTooManyRequests {
			c.opts.Bucket.Throttle(retryAfter)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request failed: %w", ctx.Err())
		}
		if attempt == attempts-1 || !isRetryable(method, code, err) {
			break
		}
		delay := retryDelay(attempt, retryAfter)
		c.opts.Metrics.RecordRetry(code)
		log.Warn("retrying admin API request", "attempt", attempt+1, "status", code, "delay", delay, "error", c.redact(err.Error()))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
	}

	var se *StatusError
	if errors.As(lastErr, &se) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("request failed: %w", lastErr)
}

// attempt performs a single round trip bounded by Options.Timeout. Backoff
// sleeps between attempts are bounded only by the caller's context. The
// returned duration is the server's Retry-After hint, if any.
func (c *Client) attempt(ctx context.Context, method, target string, body []byte, requestID string, n int) (*Response, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("shop", c.opts.Shop),
		attribute.Int("http.request.resend_count", n),
	)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set(HeaderAccessToken, c.opts.Token)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", contentTypeJSON)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, 0, err
	}
	defer httpResp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", httpResp.StatusCode))

	c.observeHeaders(httpResp.Header, target)

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		span.SetStatus(codes.Error, httpResp.Status)
		return nil, parseRetryAfter(httpResp.Header.Get(headerRetryAfter)), &StatusError{
			Status: httpResp.StatusCode,
			Body:   string(raw),
			Header: httpResp.Header.Clone(),
		}
	}

	resp := &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header.Clone(),
		Links:  ParseLinks(httpResp.Header.Get(headerLink)),
	}
	resp.Limit, _ = ratelimit.ParseCallLimit(httpResp.Header.Get(ratelimit.HeaderCallLimit))
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &resp.Body); err != nil {
			return nil, 0, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, 0, nil
}

func (c *Client) observeHeaders(h http.Header, target string) {
	if limit, ok := ratelimit.ParseCallLimit(h.Get(ratelimit.HeaderCallLimit)); ok {
		c.opts.Bucket.Observe(limit)
		c.opts.Metrics.RecordCallLimit(c.opts.Shop, limit.Used, limit.Cap)
	}
	if !c.opts.LogDeprecations {
		return
	}
	if reason := h.Get(HeaderDeprecatedReason); reason != "" {
		c.logger.Warn("deprecated admin API call", "url", c.redact(target), "reason", reason)
	}
	if warning := h.Get(HeaderVersionWarning); warning != "" {
		c.logger.Warn("admin API version warning", "url", c.redact(target), "warning", warning, "version", h.Get(HeaderAPIVersion))
	}
}

func (c *Client) recordBreaker(err error) {
	if c.opts.Breaker == nil {
		return
	}
	if err == nil {
		c.opts.Breaker.RecordSuccess()
		return
	}
	c.opts.Breaker.RecordFailure(err)
}

func (c *Client) redact(s string) string { return c.opts.Redactor.Redact(s) }

func (c *Client) truncate(b []byte) string {
	s := c.redact(string(b))
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}

func (c *Client) describe(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return c.truncate(b)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
