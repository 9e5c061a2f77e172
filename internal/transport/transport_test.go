package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/circuitbreaker"
	"shopbridge/internal/logging"
	"shopbridge/internal/metrics"
	"shopbridge/internal/ratelimit"
	"shopbridge/internal/redact"
)

func newTestClient(t *testing.T, serverURL string, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		Shop:    "demo.myshopify.com",
		Token:   "shpat_secret",
		BaseURL: serverURL,
		Retries: 2,
		Logger:  logging.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c := New(opts)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestDoSendsHeadersAndDecodesJSON(t *testing.T) {
	var got *http.Request
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(ratelimit.HeaderCallLimit, "3/40")
		_, _ = io.WriteString(w, `{"order":{"id":450789469}}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	resp, err := c.Do(context.Background(), Request{
		Method: "put",
		Path:   "/admin/api/2024-10/orders/450789469.json",
		Query:  url.Values{"fields": {"id"}},
		Body:   map[string]any{"order": map[string]any{"note": "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/admin/api/2024-10/orders/450789469.json", got.URL.Path)
	assert.Equal(t, "fields=id", got.URL.RawQuery)
	assert.Equal(t, "shpat_secret", got.Header.Get(HeaderAccessToken))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.NotEmpty(t, got.Header.Get(HeaderRequestID))
	assert.Equal(t, map[string]any{"order": map[string]any{"note": "hi"}}, gotBody)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]any{"order": map[string]any{"id": float64(450789469)}}, resp.Body)
	assert.Equal(t, ratelimit.CallLimit{Used: 3, Cap: 40}, resp.Limit)
}

func TestDoEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := newTestClient(t, server.URL, nil).Do(context.Background(), Request{Method: "DELETE", Path: "/x.json"})
	require.NoError(t, err)
	assert.Nil(t, resp.Body)
}

func TestDoRetriesThrottledRequests(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2.0")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"errors":"Exceeded 2 calls per second for api client. Reduce request rates to resume uninterrupted service."}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	var delays []time.Duration
	m := metrics.NewCollector()
	c := newTestClient(t, server.URL, func(o *Options) { o.Metrics = m })
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	resp, err := c.Do(context.Background(), Request{Method: "POST", Path: "/admin/api/2024-10/graphql.json", Body: map[string]any{"query": "{ shop { name } }"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, resp.Body)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, delays)
}

func TestDoDoesNotRetryPostOn500(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"errors":"boom"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, nil).Do(context.Background(), Request{Method: "POST", Path: "/orders.json", Body: map[string]any{}})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "HTTP request returned status code 500:\n{\"errors\":\"boom\"}", err.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRetriesGetOn503UntilExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, nil).Do(context.Background(), Request{Path: "/orders.json"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"errors":"Not Found"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, nil).Do(context.Background(), Request{Path: "/orders/1.json"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.NotFound())
}

func TestDoParsesLinkHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", `<https://demo.myshopify.com/admin/api/2024-10/orders.json?limit=1&page_info=prev123>; rel="previous", <https://demo.myshopify.com/admin/api/2024-10/orders.json?limit=1&page_info=next456>; rel="next"`)
		_, _ = io.WriteString(w, `{"orders":[]}`)
	}))
	defer server.Close()

	resp, err := newTestClient(t, server.URL, nil).Do(context.Background(), Request{Path: "/orders.json"})
	require.NoError(t, err)
	assert.Equal(t, Links{Prev: "prev123", Next: "next456"}, resp.Links)
}

func TestDoOpensBreakerAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	breaker := circuitbreaker.New("demo.myshopify.com", 2, time.Minute)
	c := newTestClient(t, server.URL, func(o *Options) {
		o.Retries = 0
		o.Breaker = breaker
	})

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), Request{Path: "/orders.json"})
		require.Error(t, err)
	}
	_, err := c.Do(context.Background(), Request{Path: "/orders.json"})
	var open *circuitbreaker.ErrCircuitOpen
	require.ErrorAs(t, err, &open)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoConnectionErrorWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	_, err := newTestClient(t, serverURL, func(o *Options) { o.Retries = 0 }).Do(context.Background(), Request{Path: "/shop.json"})
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "request failed")
}

func TestDoLogsDeprecationAndRedactsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderDeprecatedReason, "https://shopify.dev/changelog/page-param")
		_, _ = io.WriteString(w, `{"token":"shpat_secret"}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	r := redact.NewRedactor()
	r.AddSecrets([]string{"shpat_secret"})
	logger := logging.SetupWriter(&buf, "json", "debug", nil)

	c := newTestClient(t, server.URL, func(o *Options) {
		o.Logger = logger
		o.Redactor = r
		o.LogDeprecations = true
		o.LogResponseData = true
	})
	_, err := c.Do(context.Background(), Request{Path: "/orders.json"})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "deprecated admin API call")
	assert.Contains(t, out, "page-param")
	assert.NotContains(t, out, "shpat_secret")
}

func TestDoSyncsBucketWithCallLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ratelimit.HeaderCallLimit, "39/80")
		_, _ = io.WriteString(w, `{}`)
	}))
	defer server.Close()

	bucket := ratelimit.New("demo.myshopify.com", 40, 2)
	c := newTestClient(t, server.URL, func(o *Options) { o.Bucket = bucket })
	_, err := c.Do(context.Background(), Request{Path: "/orders.json"})
	require.NoError(t, err)

	stats := bucket.Stats()
	assert.Equal(t, 80.0, stats.Size)
	assert.InDelta(t, 39.0, stats.Level, 0.5)
}

func TestParseLinks(t *testing.T) {
	assert.Equal(t, Links{Next: "abc"}, ParseLinks(`<https://x/orders.json?page_info=abc&limit=2>; rel="next"`))
	assert.Equal(t, Links{}, ParseLinks(""))
	assert.Equal(t, Links{}, ParseLinks(`<https://x/orders.json?page=2>; rel="next"`))
}
