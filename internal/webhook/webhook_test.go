package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/logging"
)

func TestVerify(t *testing.T) {
	body := []byte(`{"id":1}`)
	sig := Sign(body, "s3cret")

	assert.True(t, Verify(body, sig, "s3cret"))
	assert.False(t, Verify(body, sig, "other"))
	assert.False(t, Verify([]byte(`{"id":2}`), sig, "s3cret"))
	assert.False(t, Verify(body, "", "s3cret"))
	assert.False(t, Verify(body, "not base64!", "s3cret"))
}

func TestVerifyQuery(t *testing.T) {
	q := url.Values{"shop": {"demo.myshopify.com"}, "code": {"abc"}, "timestamp": {"1700000000"}}
	q.Set("hmac", signQueryForTest(q, "hush"))

	assert.True(t, VerifyQuery(q, "hush"))
	assert.False(t, VerifyQuery(q, "nope"))

	q.Set("shop", "evil.myshopify.com")
	assert.False(t, VerifyQuery(q, "hush"))
}

func TestTopicConversion(t *testing.T) {
	tests := []struct {
		rest, graph string
	}{
		{"orders/create", "ORDERS_CREATE"},
		{"app/uninstalled", "APP_UNINSTALLED"},
		{"fulfillment_orders/moved", "FULFILLMENT_ORDERS_MOVED"},
		{"inventory_levels/update", "INVENTORY_LEVELS_UPDATE"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.graph, GraphTopic(tt.rest))
		assert.Equal(t, tt.rest, RESTTopic(tt.graph))
	}
	assert.Equal(t, "ORDERS_EDITED", GraphTopic("orders/edited"))
	assert.Equal(t, "orders/edited", RESTTopic("ORDERS_EDITED"))
	assert.Equal(t, "ORDERS_CREATE", GraphTopic("ORDERS_CREATE"))
}

func deliver(t *testing.T, h http.Handler, topic, body, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body))
	req.Header.Set(HeaderTopic, topic)
	req.Header.Set(HeaderShop, "demo.myshopify.com")
	req.Header.Set(HeaderWebhookID, "wh-1")
	req.Header.Set(HeaderHMAC, sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerDispatchesVerifiedDelivery(t *testing.T) {
	var got Event
	var outcomes []string
	h := NewHandler("s3cret", func(_ context.Context, ev Event) error {
		got = ev
		return nil
	}, WithLogger(logging.Discard()), WithObserver(func(_, outcome string) { outcomes = append(outcomes, outcome) }))

	body := `{"id":450789469,"name":"#1001"}`
	rec := deliver(t, h, "orders/create", body, Sign([]byte(body), "s3cret"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "orders/create", got.Topic)
	assert.Equal(t, "demo.myshopify.com", got.Shop)
	assert.Equal(t, "wh-1", got.WebhookID)
	assert.Equal(t, "#1001", got.Payload["name"])
	assert.Equal(t, []string{"accepted"}, outcomes)
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	called := false
	h := NewHandler("s3cret", func(context.Context, Event) error {
		called = true
		return nil
	}, WithLogger(logging.Discard()))

	rec := deliver(t, h, "orders/create", `{"id":1}`, Sign([]byte(`{"id":1}`), "wrong"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestHandlerIgnoresUnsubscribedTopics(t *testing.T) {
	called := false
	h := NewHandler("s3cret", func(context.Context, Event) error {
		called = true
		return nil
	}, WithTopics("PRODUCTS_UPDATE"), WithLogger(logging.Discard()))

	body := `{"id":1}`
	rec := deliver(t, h, "orders/create", body, Sign([]byte(body), "s3cret"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)

	rec = deliver(t, h, "products/update", body, Sign([]byte(body), "s3cret"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestHandlerDispatchFailure(t *testing.T) {
	h := NewHandler("s3cret", func(context.Context, Event) error {
		return errors.New("queue full")
	}, WithLogger(logging.Discard()))

	body := `{"id":1}`
	rec := deliver(t, h, "orders/create", body, Sign([]byte(body), "s3cret"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandlerRejectsGet(t *testing.T) {
	h := NewHandler("s3cret", nil, WithLogger(logging.Discard()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
