// Package webhook verifies and dispatches platform webhook deliveries and
// maps subscription topics between their REST and graph spellings.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Delivery headers.
const (
	HeaderHMAC       = "X-Shopify-Hmac-Sha256"
	HeaderTopic      = "X-Shopify-Topic"
	HeaderShop       = "X-Shopify-Shop-Domain"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
	HeaderAPIVersion = "X-Shopify-API-Version"
)

// maxBody bounds a single delivery.
const maxBody = 5 << 20

// ErrInvalidSignature is returned when a delivery's HMAC does not match.
var ErrInvalidSignature = errors.New("webhook: invalid signature")

// Verify checks the base64 HMAC-SHA256 of body sent in the delivery header.
func Verify(body []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// Sign returns the header value Verify accepts for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyQuery checks the hex HMAC carried by app install and proxy
// redirects. The message is the sorted query string without hmac and
// signature.
func VerifyQuery(q url.Values, secret string) bool {
	keys := make([]string, 0, len(q))
	for k := range q {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		for _, v := range q[k] {
			parts = append(parts, k+"="+v)
		}
	}
	got, err := hex.DecodeString(q.Get("hmac"))
	if err != nil || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "&")))
	return hmac.Equal(mac.Sum(nil), got)
}

// Event is one verified delivery.
type Event struct {
	Topic      string
	Shop       string
	WebhookID  string
	APIVersion string
	Payload    map[string]any
}

// Dispatcher receives verified events.
type Dispatcher func(ctx context.Context, ev Event) error

// Handler verifies deliveries and hands them to a Dispatcher.
type Handler struct {
	secret   string
	topics   map[string]bool
	dispatch Dispatcher
	logger   *slog.Logger
	observe  func(topic, outcome string)
}

// Option configures a Handler.
type Option func(*Handler)

// WithTopics restricts accepted topics (REST spelling). Deliveries for other
// topics are acknowledged and dropped.
func WithTopics(topics ...string) Option {
	return func(h *Handler) {
		h.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			h.topics[RESTTopic(t)] = true
		}
	}
}

// WithLogger sets the handler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithObserver registers a callback invoked once per delivery with its
// topic and outcome ("accepted", "ignored", "rejected", "failed").
func WithObserver(fn func(topic, outcome string)) Option {
	return func(h *Handler) { h.observe = fn }
}

// NewHandler returns an http.Handler for webhook deliveries.
func NewHandler(secret string, dispatch Dispatcher, opts ...Option) *Handler {
	h := &Handler{secret: secret, dispatch: dispatch, logger: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	topic := RESTTopic(r.Header.Get(HeaderTopic))
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !Verify(body, r.Header.Get(HeaderHMAC), h.secret) {
		h.logger.Warn("webhook signature rejected", "topic", topic, "shop", r.Header.Get(HeaderShop))
		h.record(topic, "rejected")
		http.Error(w, ErrInvalidSignature.Error(), http.StatusUnauthorized)
		return
	}
	if h.topics != nil && !h.topics[topic] {
		h.logger.Debug("webhook topic ignored", "topic", topic)
		h.record(topic, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			h.record(topic, "rejected")
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
	}
	ev := Event{
		Topic:      topic,
		Shop:       r.Header.Get(HeaderShop),
		WebhookID:  r.Header.Get(HeaderWebhookID),
		APIVersion: r.Header.Get(HeaderAPIVersion),
		Payload:    payload,
	}
	if h.dispatch != nil {
		if err := h.dispatch(r.Context(), ev); err != nil {
			h.logger.Error("webhook dispatch failed", "topic", topic, "webhook_id", ev.WebhookID, "error", err)
			h.record(topic, "failed")
			http.Error(w, "dispatch failed", http.StatusInternalServerError)
			return
		}
	}
	h.logger.Info("webhook accepted", "topic", topic, "shop", ev.Shop, "webhook_id", ev.WebhookID)
	h.record(topic, "accepted")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) record(topic, outcome string) {
	if h.observe != nil {
		h.observe(topic, outcome)
	}
}
