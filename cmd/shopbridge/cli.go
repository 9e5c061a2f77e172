package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"shopbridge/shopify"
)

func usage(w io.Writer) {
	fmt.Fprintf(w, "shopbridge %s\n", Version)
	fmt.Fprintf(w, "Admin API client that routes each resource over REST or the graph API\n\n")
	fmt.Fprintf(w, "Usage: shopbridge [options]\n")
	fmt.Fprintf(w, "       shopbridge serve [options]\n\n")
	fmt.Fprintf(w, "Call:\n")
	fmt.Fprintf(w, "  --config <path>             Config file (default: ./shopbridge.yaml)\n")
	fmt.Fprintf(w, "  --chain <chain>             Resources separated by '/', ids after ':'\n")
	fmt.Fprintf(w, "                              e.g. orders:500/fulfillment_orders\n")
	fmt.Fprintf(w, "  --verb <verb>               get, next, post, put, delete, find, count, shop (default: get)\n")
	fmt.Fprintf(w, "  --payload <json|@file>      Payload for post and put\n")
	fmt.Fprintf(w, "  --query <k=v&k2=v2>         Query filters\n")
	fmt.Fprintf(w, "  --suffix <path>             Action path, e.g. cancel, count, 123/close\n")
	fmt.Fprintf(w, "  --pages <n>                 Pages to follow with --verb next (default: 1)\n")
	fmt.Fprintf(w, "  --fields <file>             Send an ad-hoc graph query built from a JSON field-set\n")
	fmt.Fprintf(w, "  --dry-run                   Print the REST request or graph document without sending it\n")
	fmt.Fprintf(w, "  --base-url <url>            Send requests here instead of https://<shop>\n")
	fmt.Fprintf(w, "  --validate                  Check the config file and exit\n")
	fmt.Fprintf(w, "                              Exit codes: 0=valid, 1=unreadable, 3=invalid\n\n")
	fmt.Fprintf(w, "Serve:\n")
	fmt.Fprintf(w, "  --listen <addr>             Listen address (default: localhost:8191)\n")
	fmt.Fprintf(w, "                              Routes: POST /webhooks, GET /metrics, GET /healthz,\n")
	fmt.Fprintf(w, "                              GET /auth/install, GET /auth/callback (when app is configured),\n")
	fmt.Fprintf(w, "                              GET /audit, GET /audit/stats (when audit.path is set)\n\n")
	fmt.Fprintf(w, "Logging:\n")
	fmt.Fprintf(w, "  --log-format <format>       text, json (default: from config)\n")
	fmt.Fprintf(w, "  --log-level <level>         debug, info, warn, error (default: from config)\n\n")
	fmt.Fprintf(w, "Examples:\n")
	fmt.Fprintf(w, "  shopbridge --chain orders:500/fulfillment_orders\n")
	fmt.Fprintf(w, "  shopbridge --chain orders:500 --verb post --suffix cancel --dry-run\n")
	fmt.Fprintf(w, "  shopbridge --chain products --verb post --payload @product.json\n")
	fmt.Fprintf(w, "  shopbridge --chain orders --verb next --query limit=50 --pages 3\n")
}

// hop is one parsed chain segment.
type hop struct {
	name string
	ids  []string
}

// parseChain splits "orders:500/fulfillment_orders:1,2" into segments.
func parseChain(s string) ([]hop, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return nil, fmt.Errorf("--chain is required")
	}
	var hops []hop
	for _, seg := range strings.Split(s, "/") {
		name, ids, _ := strings.Cut(seg, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("chain %q has an empty segment", s)
		}
		h := hop{name: name}
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				h.ids = append(h.ids, id)
			}
		}
		hops = append(hops, h)
	}
	return hops, nil
}

func navigate(client *shopify.Client, hops []hop) *shopify.Chain {
	ch := client.Resource(hops[0].name, hops[0].ids...)
	for _, h := range hops[1:] {
		ch = ch.Resource(h.name, h.ids...)
	}
	return ch
}

// withTerminalID returns hops with id set on the last segment.
func withTerminalID(hops []hop, id string) []hop {
	out := append([]hop(nil), hops...)
	out[len(out)-1].ids = []string{id}
	return out
}

// parseQuery reads "k=v&k2=v2". Repeated keys become lists.
func parseQuery(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	values, err := url.ParseQuery(s)
	if err != nil {
		return nil, fmt.Errorf("--query: %w", err)
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func queryString(q map[string]any) string {
	if len(q) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range q {
		switch v := v.(type) {
		case []string:
			values.Set(k, strings.Join(v, ","))
		default:
			values.Set(k, fmt.Sprint(v))
		}
	}
	return values.Encode()
}

// readPayload decodes inline JSON or, with a leading '@', a JSON file.
func readPayload(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	data := []byte(s)
	if path, ok := strings.CutPrefix(s, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return v, nil
}
