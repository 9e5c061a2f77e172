package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/ratelimit"
)

func TestRetryDelayPrefersRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryDelay(3, 2*time.Second))
	assert.Equal(t, retryAfterCap, retryDelay(0, 90*time.Second))

	for attempt := 0; attempt < 4; attempt++ {
		d := retryDelay(attempt, 0)
		floor := retryBaseDelay << attempt
		assert.GreaterOrEqual(t, d, floor, "attempt %d", attempt)
		assert.LessOrEqual(t, d, floor+retryMaxJitter, "attempt %d", attempt)
	}
	assert.Equal(t, retryMaxDelay, retryDelay(40, 0))
}

func TestRetryPolicy(t *testing.T) {
	refused := errors.New("dial tcp: connection refused")
	cases := []struct {
		name   string
		method string
		code   int
		err    error
		want   bool
	}{
		{"throttled graph call", http.MethodPost, http.StatusTooManyRequests, nil, true},
		{"unavailable graph call", http.MethodPost, http.StatusServiceUnavailable, nil, true},
		{"failed create", http.MethodPost, http.StatusInternalServerError, nil, false},
		{"bad gateway on list", http.MethodGet, http.StatusBadGateway, nil, true},
		{"unprocessable update", http.MethodPut, http.StatusUnprocessableEntity, nil, false},
		{"refused delete", http.MethodDelete, 0, refused, true},
		{"refused create", http.MethodPost, 0, refused, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRetryable(tc.method, tc.code, tc.err))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, parseRetryAfter("2.0"))
	assert.Equal(t, retryAfterCap, parseRetryAfter("120"))
	assert.Zero(t, parseRetryAfter("soon"))
	assert.Zero(t, parseRetryAfter("-1"))

	at := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	assert.InDelta(t, float64(10*time.Second), float64(parseRetryAfter(at)), float64(2*time.Second))
}

func TestDoThrottlesBucketOn429(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ratelimit.HeaderCallLimit, "40/40")
		w.Header().Set("Retry-After", "3.0")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"errors":"Exceeded 2 calls per second for api client."}`)
	}))
	defer server.Close()

	bucket := ratelimit.New("demo.myshopify.com", 40, 2)
	c := newTestClient(t, server.URL, func(o *Options) {
		o.Retries = 0
		o.Bucket = bucket
	})
	_, err := c.Do(context.Background(), Request{Path: "/admin/api/2024-10/orders.json"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Status)

	stats := bucket.Stats()
	assert.True(t, stats.Blocked)
	assert.Equal(t, 40.0, stats.Size)
	assert.InDelta(t, 40.0, stats.Level, 0.5)
}

func TestDoDoesNotRetryPostOnServerErrors(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout} {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		_, err := newTestClient(t, server.URL, nil).Do(context.Background(), Request{
			Method: http.MethodPost,
			Path:   "/admin/api/2024-10/products.json",
			Body:   map[string]any{"product": map[string]any{"title": "Hat"}},
		})
		server.Close()

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, status, se.Status)
		assert.Equal(t, int32(1), calls.Load(), "status %d", status)
	}
}

func TestDoTimeoutAppliesPerAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "45")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"shop":{"id":1}}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, func(o *Options) { o.Timeout = 200 * time.Millisecond })
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		// outlast Options.Timeout; only the next attempt gets a fresh one
		time.Sleep(300 * time.Millisecond)
		return nil
	}

	resp, err := c.Do(context.Background(), Request{Path: "/admin/api/2024-10/shop.json"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"shop": map[string]any{"id": float64(1)}}, resp.Body)
	assert.Equal(t, []time.Duration{retryAfterCap}, delays)
	assert.Equal(t, int32(2), calls.Load())
}
