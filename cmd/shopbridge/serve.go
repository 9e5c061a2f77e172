package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"shopbridge/internal/audit"
	"shopbridge/internal/circuitbreaker"
	"shopbridge/internal/config"
	"shopbridge/internal/metrics"
	"shopbridge/internal/oauth"
	"shopbridge/internal/webhook"
	"shopbridge/shopify"
)

// server exposes the webhook receiver, app install routes, metrics and
// health. Verified deliveries and installed tokens are written to out as
// JSON lines.
type server struct {
	cfg     *config.Config
	client  *shopify.Client
	metrics *metrics.Collector
	app     *oauth.App
	audit   *audit.Recorder
	logger  *slog.Logger

	mu  sync.Mutex
	out *json.Encoder
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("shopbridge serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	configPath := fs.String("config", "./shopbridge.yaml", "Path to YAML config")
	listen := fs.String("listen", "localhost:8191", "Listen address")
	logFormat := fs.String("log-format", "", "Log output format: text, json (default: from config)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (default: from config)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger := newLogger(stderr, cfg, *logFormat, *logLevel)

	var trail *audit.Recorder
	if cfg.Audit.Path != "" {
		if trail, err = audit.Open(cfg.Audit.Path); err != nil {
			logger.Error("open audit trail failed", "path", cfg.Audit.Path, "error", err)
			return 1
		}
	}
	srv, err := newServer(cfg, stdout, logger, trail)
	if err != nil {
		logger.Error("create server failed", "error", err)
		_ = trail.Close()
		return 1
	}
	httpServer := &http.Server{
		Addr:              *listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", *listen, "shop", cfg.Shop, "install", cfg.App.Enabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	shutdownOnSignal(logger, []*http.Server{httpServer}, func() {
		if err := trail.Close(); err != nil {
			logger.Error("close audit trail failed", "error", err)
		}
	})
	return 0
}

func newServer(cfg *config.Config, out io.Writer, logger *slog.Logger, trail *audit.Recorder, opts ...shopify.Option) (*server, error) {
	collector := metrics.NewCollector()
	opts = append([]shopify.Option{shopify.WithLogger(logger), shopify.WithMetrics(collector), shopify.WithAudit(trail)}, opts...)
	client, err := shopify.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	s := &server{
		cfg:     cfg,
		client:  client,
		metrics: collector,
		audit:   trail,
		logger:  logger,
		out:     json.NewEncoder(out),
	}
	if cfg.App.Enabled() {
		s.app = oauth.NewApp(cfg.App)
	}
	return s, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	hookOpts := []webhook.Option{
		webhook.WithLogger(s.logger),
		webhook.WithObserver(s.metrics.RecordWebhook),
	}
	if len(s.cfg.Webhooks.Topics) > 0 {
		hookOpts = append(hookOpts, webhook.WithTopics(s.cfg.Webhooks.Topics...))
	}
	mux.Handle("POST /webhooks", webhook.NewHandler(s.cfg.Webhooks.Secret, s.dispatch, hookOpts...))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.audit != nil {
		mux.HandleFunc("GET /audit", s.handleAudit)
		mux.HandleFunc("GET /audit/stats", s.handleAuditStats)
	}
	if s.app != nil {
		mux.HandleFunc("GET /auth/install", s.handleInstall)
		mux.HandleFunc("GET /auth/callback", s.handleCallback)
	}
	return mux
}

func (s *server) dispatch(_ context.Context, ev webhook.Event) error {
	s.audit.Record(audit.Event{
		Shop:    ev.Shop,
		Kind:    audit.KindWebhook,
		Action:  ev.Topic,
		Success: true,
		Detail:  map[string]any{"webhook_id": ev.WebhookID, "api_version": ev.APIVersion},
	})
	return s.emit(map[string]any{
		"kind":        "webhook",
		"topic":       ev.Topic,
		"shop":        ev.Shop,
		"webhook_id":  ev.WebhookID,
		"api_version": ev.APIVersion,
		"payload":     ev.Payload,
	})
}

func (s *server) emit(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Encode(v)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.client.Health()
	status := http.StatusOK
	if health.State == circuitbreaker.Open.String() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"shop":            s.cfg.Shop,
		"circuit_breaker": health,
		"rate_limit":      s.client.RateLimit(),
	})
}

// handleInstall redirects the merchant to the grant page.
func (s *server) handleInstall(w http.ResponseWriter, r *http.Request) {
	target, err := s.app.Begin(r.URL.Query().Get("shop"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *server) handleCallback(w http.ResponseWriter, r *http.Request) {
	tok, err := s.app.Callback(r.Context(), r.URL.Query())
	switch {
	case errors.Is(err, oauth.ErrInvalidHMAC), errors.Is(err, oauth.ErrInvalidState):
		s.logger.Warn("install callback rejected", "shop", r.URL.Query().Get("shop"), "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	case errors.Is(err, oauth.ErrInvalidShop):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("token exchange failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "token exchange failed"})
		return
	}

	s.logger.Info("app installed", "shop", tok.Shop, "scope", tok.Scope)
	s.audit.Record(audit.Event{Shop: tok.Shop, Kind: audit.KindInstall, Success: true, Detail: map[string]any{"scope": tok.Scope}})
	if err := s.emit(map[string]any{"kind": "install", "shop": tok.Shop, "scope": tok.Scope, "access_token": tok.AccessToken}); err != nil {
		s.logger.Error("write install record failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"shop": tok.Shop, "scope": tok.Scope})
}

// handleAudit lists trail entries filtered by kind, resource and limit.
func (s *server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := audit.QueryOptions{
		Shop:     s.cfg.Shop,
		Kind:     audit.Kind(q.Get("kind")),
		Resource: q.Get("resource"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		opts.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "since must be RFC 3339"})
			return
		}
		opts.StartTime = since
	}
	events, err := s.audit.Query(opts)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "audit query failed"})
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *server) handleAuditStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.audit.GetStats(s.cfg.Shop, time.Time{})
	if err != nil {
		s.logger.Error("audit stats failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "audit stats failed"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
