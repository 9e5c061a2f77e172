package redact

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

const mask = "[REDACTED]"

// Redactor replaces configured secrets in strings.
type Redactor struct {
	secrets []string
}

func NewRedactor() *Redactor {
	return &Redactor{}
}

func (r *Redactor) AddSecrets(secrets []string) {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		r.secrets = append(r.secrets, s)
	}
}

func (r *Redactor) Redact(input string) string {
	if r == nil {
		return input
	}
	out := input
	for _, secret := range r.secrets {
		out = strings.ReplaceAll(out, secret, mask)
	}
	return out
}

var sensitiveHeaders = map[string]bool{
	"X-Shopify-Access-Token": true,
	"Authorization":          true,
	"X-Shopify-Hmac-Sha256":  true,
}

// Headers returns a copy of h with credential headers masked and every
// other value passed through Redact.
func (r *Redactor) Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if sensitiveHeaders[http.CanonicalHeaderKey(k)] {
			out[k] = mask
			continue
		}
		out[k] = r.Redact(h.Get(k))
	}
	return out
}

// Handler wraps next so that the message and every string attribute are
// passed through r before being written.
func Handler(next slog.Handler, r *Redactor) slog.Handler {
	return &handler{next: next, r: r}
}

type handler struct {
	next slog.Handler
	r    *Redactor
}

func (h *handler) Enabled(ctx context.Context, l slog.Level) bool { return h.next.Enabled(ctx, l) }

func (h *handler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.r.Redact(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.attr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.attr(a)
	}
	return &handler{next: h.next.WithAttrs(scrubbed), r: h.r}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{next: h.next.WithGroup(name), r: h.r}
}

func (h *handler) attr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.r.Redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		out := make([]any, len(group))
		for i, g := range group {
			out[i] = h.attr(g)
		}
		return slog.Group(a.Key, out...)
	case slog.KindAny:
		return slog.String(a.Key, h.r.Redact(v.String()))
	default:
		return a
	}
}
