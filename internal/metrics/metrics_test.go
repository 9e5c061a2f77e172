package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRequest(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("graph", "orders", 120*time.Millisecond, true)
	c.RecordRequest("graph", "orders", 80*time.Millisecond, false)
	c.RecordRequest("rest", "orders", 10*time.Millisecond, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("graph", "orders", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("graph", "orders", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestRecordCallLimitAndRetries(t *testing.T) {
	c := NewCollector()
	c.RecordCallLimit("demo.myshopify.com", 32, 40)
	c.RecordRetry(429)
	c.RecordRetry(0)

	assert.Equal(t, 32.0, testutil.ToFloat64(c.callUsed.WithLabelValues("demo.myshopify.com")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.callCap.WithLabelValues("demo.myshopify.com")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries.WithLabelValues("429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries.WithLabelValues("network")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordRequest("graph", "orders", time.Second, true)
	c.RecordFollowUp("variants", false)
	c.RecordWebhook("orders/create", "accepted")
	c.RecordCallLimit("x", 1, 2)
	c.RecordRetry(503)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordFollowUp("publish", true)
	c.RecordWebhook("orders/create", "accepted")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `shopbridge_follow_ups_total{outcome="success",step="publish"} 1`)
	assert.Contains(t, string(body), `shopbridge_webhooks_total{outcome="accepted",topic="orders/create"} 1`)
}
