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
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"shopbridge/internal/audit"
	"shopbridge/internal/config"
	"shopbridge/internal/gql"
	"shopbridge/internal/logging"
	"shopbridge/internal/metrics"
	"shopbridge/internal/redact"
	"shopbridge/shopify"
)

// Version is set at build time.
var Version = "dev"

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "serve" {
		os.Exit(runServe(args[1:], os.Stdout, os.Stderr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options are the parsed flags of a one-shot call.
type options struct {
	configPath string
	chain      string
	verb       string
	payload    string
	query      string
	suffix     string
	fields     string
	baseURL    string
	pages      int
	dryRun     bool
	logFormat  string
	logLevel   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("shopbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }

	var opts options
	fs.StringVar(&opts.configPath, "config", "./shopbridge.yaml", "Path to YAML config")
	fs.StringVar(&opts.chain, "chain", "", "Resource chain, e.g. orders:500/fulfillment_orders")
	fs.StringVar(&opts.verb, "verb", "get", "get, next, post, put, delete, find, count, shop")
	fs.StringVar(&opts.payload, "payload", "", "JSON payload, or @file")
	fs.StringVar(&opts.query, "query", "", "Query filters as k=v&k2=v2")
	fs.StringVar(&opts.suffix, "suffix", "", "Action path appended to the resource, e.g. cancel or 123/close")
	fs.StringVar(&opts.fields, "fields", "", "JSON field-set file to send as an ad-hoc graph query")
	fs.StringVar(&opts.baseURL, "base-url", "", "Send requests here instead of https://<shop>")
	fs.IntVar(&opts.pages, "pages", 1, "Pages to follow for --verb next")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Print the request instead of sending it")
	fs.StringVar(&opts.logFormat, "log-format", "", "Log output format: text, json (default: from config)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: from config)")
	validate := fs.Bool("validate", false, "Check the config file and exit")
	showVersion := fs.Bool("version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintf(stdout, "shopbridge %s\n", Version)
		return 0
	}
	if *validate {
		return runValidate(opts.configPath, stdout, stderr)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger := newLogger(stderr, cfg, opts.logFormat, opts.logLevel)

	clientOpts := []shopify.Option{shopify.WithLogger(logger), shopify.WithMetrics(metrics.NewCollector())}
	if cfg.Audit.Path != "" && !opts.dryRun {
		trail, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			logger.Error("open audit trail failed", "path", cfg.Audit.Path, "error", err)
			return 1
		}
		defer func() {
			if err := trail.Close(); err != nil {
				logger.Error("close audit trail failed", "error", err)
			}
		}()
		clientOpts = append(clientOpts, shopify.WithAudit(trail))
	}
	if opts.baseURL != "" {
		clientOpts = append(clientOpts, shopify.WithBaseURL(opts.baseURL))
	}
	client, err := shopify.New(cfg, clientOpts...)
	if err != nil {
		logger.Error("create client failed", "error", err)
		return 1
	}

	out, err := execute(ctx, client, opts)
	if err != nil {
		logger.Error("call failed", "verb", opts.verb, "chain", opts.chain, "error", err)
		return 1
	}
	if s, ok := out.(string); ok {
		fmt.Fprint(stdout, s)
		if !strings.HasSuffix(s, "\n") {
			fmt.Fprintln(stdout)
		}
		return 0
	}
	if err := printJSON(stdout, out); err != nil {
		logger.Error("write output failed", "error", err)
		return 1
	}
	return 0
}

// runValidate checks the config file without expanding env vars.
// Exit codes: 0 = valid, 1 = unreadable, 3 = invalid.
func runValidate(path string, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "read config: %v\n", err)
		return 1
	}
	if err := config.ValidateYAML(data); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", path, err)
		return 3
	}
	fmt.Fprintf(stdout, "%s: ok\n", path)
	return 0
}

func newLogger(w io.Writer, cfg *config.Config, format, level string) *slog.Logger {
	if format == "" {
		format = cfg.Logging.Format
	}
	if level == "" {
		level = cfg.Logging.Level
	}
	r := redact.NewRedactor()
	r.AddSecrets(cfg.Secrets())
	return logging.SetupWriter(w, format, level, func(h slog.Handler) slog.Handler {
		return redact.Handler(h, r)
	})
}

// execute performs one call and returns what should be printed: a string
// for dry runs and raw documents, a decoded value otherwise.
func execute(ctx context.Context, client *shopify.Client, opts options) (any, error) {
	if opts.fields != "" {
		return runFields(ctx, client, opts)
	}
	if opts.verb == "shop" {
		if opts.dryRun {
			return "GET /" + client.Config().APIBase + "/shop.json", nil
		}
		return client.Shop(ctx)
	}

	hops, err := parseChain(opts.chain)
	if err != nil {
		return nil, err
	}
	query, err := parseQuery(opts.query)
	if err != nil {
		return nil, err
	}
	payload, err := readPayload(opts.payload)
	if err != nil {
		return nil, err
	}

	// find takes the terminal id as its argument rather than as a chain id.
	var findID string
	if opts.verb == "find" {
		last := &hops[len(hops)-1]
		if len(last.ids) != 1 {
			return nil, fmt.Errorf("find needs exactly one id on %s", last.name)
		}
		findID, last.ids = last.ids[0], nil
	}

	ch := navigate(client, hops)
	if err := ch.Err(); err != nil {
		return nil, err
	}
	var callOpts []shopify.CallOption
	if opts.suffix != "" {
		callOpts = append(callOpts, shopify.WithSuffix(opts.suffix))
	}

	if opts.dryRun {
		if findID != "" {
			ch = navigate(client, withTerminalID(hops, findID))
		}
		return dryRun(client, ch, opts, query, payload)
	}

	switch opts.verb {
	case "get":
		return ch.Get(ctx, query, callOpts...)
	case "next":
		return followPages(ctx, ch, query, opts.pages, callOpts)
	case "post":
		return ch.Post(ctx, payload, callOpts...)
	case "put":
		return ch.Put(ctx, payload, callOpts...)
	case "delete":
		return ch.Delete(ctx, query, callOpts...)
	case "find":
		return ch.Find(ctx, findID)
	case "count":
		n, err := ch.Count(ctx, query)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"count": n}, nil
	default:
		return nil, fmt.Errorf("unknown verb %q", opts.verb)
	}
}

// followPages collects up to pages pages, stopping early on an empty one.
func followPages(ctx context.Context, ch *shopify.Chain, query map[string]any, pages int, callOpts []shopify.CallOption) (any, error) {
	if pages < 1 {
		pages = 1
	}
	var out []any
	data, err := ch.Get(ctx, query, callOpts...)
	if err != nil {
		return nil, err
	}
	out = append(out, data)
	next := map[string]any{}
	if l, ok := query["limit"]; ok {
		next["limit"] = l
	}
	for len(out) < pages {
		if _, cursor := ch.Cursors(); cursor == "" {
			break
		}
		data, err := ch.Next(ctx, next, callOpts...)
		if err != nil {
			return nil, err
		}
		if list, ok := data.([]any); ok && len(list) == 0 {
			break
		}
		out = append(out, data)
	}
	return out, nil
}

func dryRun(client *shopify.Client, ch *shopify.Chain, opts options, query map[string]any, payload any) (string, error) {
	mutation := opts.verb == "post" || opts.verb == "put" || opts.verb == "delete"
	suffix := opts.suffix
	if opts.verb == "count" && suffix == "" {
		suffix = "count"
	}

	if !client.UsesGraph(ch.ResourceName()) {
		var callOpts []shopify.CallOption
		if suffix != "" {
			callOpts = append(callOpts, shopify.WithSuffix(suffix))
		}
		path, err := ch.Path(callOpts...)
		if err != nil {
			return "", err
		}
		line := restMethod(opts.verb) + " " + path
		if q := queryString(query); q != "" && (!mutation || opts.verb == "delete") {
			line += "?" + q
		}
		return line + "\n", nil
	}

	if opts.verb == "delete" && suffix == "" {
		suffix = "delete"
	}
	var callOpts []shopify.CallOption
	if suffix != "" {
		callOpts = append(callOpts, shopify.WithSuffix(suffix))
	}
	arg := any(query)
	if mutation && opts.verb != "delete" {
		arg = payload
	}
	doc, err := ch.Document(mutation, arg, callOpts...)
	if err != nil {
		return "", err
	}
	return renderDocument(doc)
}

func restMethod(verb string) string {
	switch verb {
	case "post":
		return http.MethodPost
	case "put":
		return http.MethodPut
	case "delete":
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

// renderDocument pretty-prints the query text followed by its variables.
func renderDocument(doc *shopify.Document) (string, error) {
	text, err := gql.Format(doc.Query)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(text)
	if len(doc.Variables) > 0 {
		vars, err := json.MarshalIndent(doc.Variables, "", "  ")
		if err != nil {
			return "", err
		}
		b.WriteString("\n# variables\n")
		b.Write(vars)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// runFields builds a query document from a JSON field-set and sends it.
func runFields(ctx context.Context, client *shopify.Client, opts options) (any, error) {
	data, err := os.ReadFile(opts.fields)
	if err != nil {
		return nil, fmt.Errorf("read fields: %w", err)
	}
	fs, err := gql.ParseFieldSetJSON(data)
	if err != nil {
		return nil, err
	}
	query, err := gql.Build(fs, nil, "query")
	if err != nil {
		return nil, err
	}
	if opts.dryRun {
		return renderDocument(&shopify.Document{Query: query})
	}
	return client.GraphQL(ctx, query, nil)
}

// printJSON indents when w is a terminal.
func printJSON(w io.Writer, v any) error {
	pretty := false
	if f, ok := w.(*os.File); ok {
		pretty = term.IsTerminal(int(f.Fd()))
	}
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
