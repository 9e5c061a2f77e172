package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/audit"
	"shopbridge/internal/config"
	"shopbridge/internal/logging"
	"shopbridge/internal/webhook"
)

func newTestServer(t *testing.T, app config.App) (*httptest.Server, *bytes.Buffer) {
	t.Helper()
	return newAuditedTestServer(t, app, nil)
}

func newAuditedTestServer(t *testing.T, app config.App, trail *audit.Recorder) (*httptest.Server, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Shop:     "demo",
		Token:    "shpat_serve",
		Webhooks: config.Webhooks{Secret: "hush", Topics: []string{"orders/create"}},
		App:      app,
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	var out bytes.Buffer
	srv, err := newServer(cfg, &out, logging.Discard(), trail)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts, &out
}

func postWebhook(t *testing.T, base, topic, body, secret string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, base+"/webhooks", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(webhook.HeaderTopic, topic)
	req.Header.Set(webhook.HeaderShop, "demo.myshopify.com")
	req.Header.Set(webhook.HeaderWebhookID, "wh-1")
	req.Header.Set(webhook.HeaderHMAC, webhook.Sign([]byte(body), secret))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestServeWebhooks(t *testing.T) {
	ts, out := newTestServer(t, config.App{})

	resp := postWebhook(t, ts.URL, "orders/create", `{"id":820982911946154508}`, "hush")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &ev))
	assert.Equal(t, "webhook", ev["kind"])
	assert.Equal(t, "orders/create", ev["topic"])
	assert.Equal(t, "wh-1", ev["webhook_id"])

	resp = postWebhook(t, ts.URL, "orders/create", `{}`, "wrong")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postWebhook(t, ts.URL, "products/update", `{}`, "hush")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `shopbridge_webhooks_total{outcome="accepted",topic="orders/create"} 1`)
	assert.Contains(t, text, `shopbridge_webhooks_total{outcome="rejected",topic="orders/create"} 1`)
	assert.Contains(t, text, `shopbridge_webhooks_total{outcome="ignored",topic="products/update"} 1`)
}

func TestServeHealth(t *testing.T) {
	ts, _ := newTestServer(t, config.App{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Shop    string `json:"shop"`
		Breaker struct {
			State string `json:"state"`
		} `json:"circuit_breaker"`
		RateLimit struct {
			Size float64 `json:"size"`
		} `json:"rate_limit"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "demo.myshopify.com", health.Shop)
	assert.Equal(t, "closed", health.Breaker.State)
	assert.Equal(t, float64(40), health.RateLimit.Size)
}

func TestServeInstallRoutes(t *testing.T) {
	ts, _ := newTestServer(t, config.App{
		ClientID:     "key",
		ClientSecret: "appsecret",
		RedirectURI:  "https://bridge.example.com/auth/callback",
		Scopes:       []string{"read_orders"},
	})
	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := noRedirect.Get(ts.URL + "/auth/install?shop=demo")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "demo.myshopify.com", loc.Host)
	assert.Equal(t, "read_orders", loc.Query().Get("scope"))
	assert.NotEmpty(t, loc.Query().Get("state"))

	resp, err = noRedirect.Get(ts.URL + "/auth/install?shop=evil.example.com")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Signed correctly but carrying a state that was never issued.
	q := url.Values{"shop": {"demo.myshopify.com"}, "code": {"abc"}, "state": {"forged"}}
	mac := hmac.New(sha256.New, []byte("appsecret"))
	mac.Write([]byte("code=abc&shop=demo.myshopify.com&state=forged"))
	q.Set("hmac", hex.EncodeToString(mac.Sum(nil)))
	resp, err = noRedirect.Get(ts.URL + "/auth/callback?" + q.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	q.Set("hmac", "00")
	resp, err = noRedirect.Get(ts.URL + "/auth/callback?" + q.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWithoutAppHasNoInstallRoutes(t *testing.T) {
	ts, _ := newTestServer(t, config.App{})
	resp, err := http.Get(ts.URL + "/auth/install?shop=demo")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeAuditTrail(t *testing.T) {
	trail, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer trail.Close()
	ts, _ := newAuditedTestServer(t, config.App{}, trail)

	resp := postWebhook(t, ts.URL, "orders/create", `{"id":1}`, "hush")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/audit?kind=webhook&limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []audit.Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "orders/create", body.Events[0].Action)
	assert.Equal(t, "wh-1", body.Events[0].Detail["webhook_id"])

	bad, err := http.Get(ts.URL + "/audit?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	stats, err := http.Get(ts.URL + "/audit/stats")
	require.NoError(t, err)
	defer stats.Body.Close()
	assert.Equal(t, http.StatusOK, stats.StatusCode)
}
