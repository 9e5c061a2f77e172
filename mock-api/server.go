// Command mock-api serves a small in-memory admin API (REST and graph) so
// the CLI can be exercised without a real shop.
//
// Environment: MOCK_ADDR (default :9999), MOCK_SHOP_TOKEN (default
// shpat_mock), MOCK_LOG_FORMAT, MOCK_LOG_LEVEL.
package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"shopbridge/internal/canonical"
	"shopbridge/internal/logging"
	"shopbridge/internal/ratelimit"
)

const (
	headerAccessToken = "X-Shopify-Access-Token"
	bucketSize        = 40
	defaultLimit      = 50
	maxLimit          = 250
)

type Server struct {
	store  *Store
	token  string
	shop   map[string]any
	logger *slog.Logger
	calls  atomic.Int64
}

func main() {
	logger := logging.Setup(envOr("MOCK_LOG_FORMAT", "text"), envOr("MOCK_LOG_LEVEL", "info"))
	store, err := NewStore(context.Background(), "file:mockshop?mode=memory&cache=shared")
	if err != nil {
		logger.Error("db init failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := newServer(store, envOr("MOCK_SHOP_TOKEN", "shpat_mock"), logger)
	addr := envOr("MOCK_ADDR", ":9999")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("mock admin API listening", "addr", addr, "shop", srv.shop["myshopify_domain"])
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newServer(store *Store, token string, logger *slog.Logger) *Server {
	return &Server{
		store:  store,
		token:  token,
		logger: logger,
		shop: map[string]any{
			"id":               548380009,
			"name":             "Mock Shop",
			"email":            "owner@mock.example.com",
			"myshopify_domain": "mock.myshopify.com",
			"currency":         "USD",
			"plan_name":        "partner_test",
		},
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/api/{version}/graphql.json", s.handleGraphQL)
	mux.HandleFunc("/admin/api/{version}/", s.handleREST)
	return s.authenticate(mux)
}

// authenticate checks the access token and stamps every response with a
// call-limit header.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerAccessToken) != s.token {
			respondJSON(w, http.StatusUnauthorized, map[string]any{
				"errors": "[API] Invalid API key or access token (unrecognized login or wrong password)",
			})
			return
		}
		used := int(s.calls.Add(1)-1)%bucketSize + 1
		w.Header().Set(ratelimit.HeaderCallLimit, ratelimit.CallLimit{Used: used, Cap: bucketSize}.String())
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// handleREST serves
//
//	shop.json
//	{res}.json, {res}/count.json, {res}/{id}.json, {res}/{id}/{action}.json
//
// optionally nested under {parent}/{parent_id}/.
func (s *Server) handleREST(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/api/"+r.PathValue("version")+"/")
	if !strings.HasSuffix(rest, ".json") {
		respondNotFound(w)
		return
	}
	segs := strings.Split(strings.TrimSuffix(rest, ".json"), "/")
	if len(segs) == 1 && segs[0] == "shop" {
		if r.Method != http.MethodGet {
			respondMethodNotAllowed(w)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"shop": s.shop})
		return
	}

	var parent parentRef
	if len(segs) >= 3 {
		if nested, err := canonical.Lookup(segs[2]); err == nil {
			pr, err := canonical.Lookup(segs[0])
			pid, perr := strconv.ParseInt(segs[1], 10, 64)
			if err != nil || perr != nil {
				respondNotFound(w)
				return
			}
			parent = parentRef{Resource: pr, ID: pid}
			segs = append([]string{string(nested)}, segs[3:]...)
		}
	}
	res, err := canonical.Lookup(segs[0])
	if err != nil || res.Definition().GraphOnly {
		respondNotFound(w)
		return
	}

	switch {
	case len(segs) == 1:
		switch r.Method {
		case http.MethodGet:
			s.list(w, r, res, parent)
		case http.MethodPost:
			s.create(w, r, res, parent)
		default:
			respondMethodNotAllowed(w)
		}
	case len(segs) == 2 && segs[1] == "count":
		n, err := s.store.Count(r.Context(), res, parent)
		if err != nil {
			s.respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"count": n})
	case len(segs) == 2 || len(segs) == 3:
		id, err := strconv.ParseInt(segs[1], 10, 64)
		if err != nil {
			respondNotFound(w)
			return
		}
		if len(segs) == 3 {
			if r.Method != http.MethodPost {
				respondMethodNotAllowed(w)
				return
			}
			s.action(w, r, res, id, segs[2])
			return
		}
		s.entity(w, r, res, id)
	default:
		respondNotFound(w)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, res canonical.Resource, parent parentRef) {
	q := r.URL.Query()
	opts := listOptions{Parent: parent, Limit: defaultLimit}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			respondJSON(w, http.StatusBadRequest, map[string]any{"errors": map[string]any{"limit": "must be between 1 and 250"}})
			return
		}
		opts.Limit = n
	}
	if v := q.Get("page_info"); v != "" {
		after, ok := decodeCursor(v)
		if !ok {
			respondJSON(w, http.StatusBadRequest, map[string]any{"errors": map[string]any{"page_info": "Invalid value."}})
			return
		}
		opts.AfterID = after
	}
	if v := q.Get("ids"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
				opts.IDs = append(opts.IDs, id)
			}
		}
	}

	recs, more, err := s.store.List(r.Context(), res, opts)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		items = append(items, rec.JSON())
	}
	if more && res.Definition().Cursored {
		next := url.Values{"limit": {strconv.Itoa(opts.Limit)}, "page_info": {encodeCursor(recs[len(recs)-1].ID)}}
		w.Header().Set("Link", "<http://"+r.Host+r.URL.Path+"?"+next.Encode()+`>; rel="next"`)
	}
	respondJSON(w, http.StatusOK, map[string]any{res.Definition().Collection: items})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, res canonical.Resource, parent parentRef) {
	fields, ok := decodeEnvelope(w, r, res)
	if !ok {
		return
	}
	rec, err := s.store.Create(r.Context(), res, parent, fields)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{res.Definition().Entity: rec.JSON()})
}

func (s *Server) entity(w http.ResponseWriter, r *http.Request, res canonical.Resource, id int64) {
	var (
		rec record
		err error
	)
	switch r.Method {
	case http.MethodGet:
		rec, err = s.store.Get(r.Context(), res, id)
	case http.MethodPut:
		fields, ok := decodeEnvelope(w, r, res)
		if !ok {
			return
		}
		rec, err = s.store.Update(r.Context(), res, id, fields)
	case http.MethodDelete:
		if err := s.store.Delete(r.Context(), res, id); err != nil {
			s.respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{})
		return
	default:
		respondMethodNotAllowed(w)
		return
	}
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{res.Definition().Entity: rec.JSON()})
}

// actionStamps maps an action suffix to the timestamp field it sets.
var actionStamps = map[string]string{
	"close":  "closed_at",
	"open":   "closed_at",
	"cancel": "cancelled_at",
}

func (s *Server) action(w http.ResponseWriter, r *http.Request, res canonical.Resource, id int64, action string) {
	fields := map[string]any{}
	if field, ok := actionStamps[action]; ok {
		fields[field] = time.Now().UTC().Format(time.RFC3339)
		if action == "open" {
			fields[field] = nil
		}
	}
	rec, err := s.store.Update(r.Context(), res, id, fields)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{res.Definition().Entity: rec.JSON()})
}

// decodeEnvelope reads {"<entity>": {...}} and writes a 400 on failure.
func decodeEnvelope(w http.ResponseWriter, r *http.Request, res canonical.Resource) (map[string]any, bool) {
	entity := res.Definition().Entity
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"errors": map[string]any{entity: "Required parameter missing or invalid"}})
		return nil, false
	}
	fields, ok := body[entity].(map[string]any)
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]any{"errors": map[string]any{entity: "Required parameter missing or invalid"}})
		return nil, false
	}
	return fields, true
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		respondNotFound(w)
		return
	}
	s.logger.Error("store error", "error", err)
	respondJSON(w, http.StatusInternalServerError, map[string]any{"errors": "Internal Server Error"})
}

func encodeCursor(afterID int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte("after:" + strconv.FormatInt(afterID, 10)))
}

func decodeCursor(cursor string) (int64, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(string(raw), "after:"), 10, 64)
	if err != nil || !strings.HasPrefix(string(raw), "after:") {
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondNotFound(w http.ResponseWriter) {
	respondJSON(w, http.StatusNotFound, map[string]any{"errors": "Not Found"})
}

func respondMethodNotAllowed(w http.ResponseWriter) {
	respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"errors": "Method Not Allowed"})
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
