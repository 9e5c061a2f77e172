package shopify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"shopbridge/internal/audit"
	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/request"
	"shopbridge/internal/strategy"
	"shopbridge/internal/transport"
)

// Chain records the resources navigated before a terminal verb, for
// example client.Resource("orders", "450789469").Resource("fulfillment_orders").
// Navigation returns a new Chain; verbs never change the navigation state.
// A Chain remembers the cursors of its last REST page for Next, so it must
// not be shared between goroutines.
type Chain struct {
	client   *Client
	parents  []request.Hop
	resource canonical.Resource
	ids      []string
	err      error
	cursors  *transport.Links
}

// Resource navigates to a nested resource. The current resource must have
// been given an id.
func (ch *Chain) Resource(name string, ids ...string) *Chain {
	next := &Chain{client: ch.client, err: ch.err}
	if ch.err != nil {
		return next
	}
	res, err := canonical.Lookup(name)
	if err != nil {
		next.err = &UnknownResourceError{Name: name}
		return next
	}
	next.parents = append([]request.Hop(nil), ch.parents...)
	if ch.resource != "" {
		last := lastID(ch.ids)
		if last == "" {
			next.err = &MissingIDError{Parent: string(ch.resource), Child: name}
			return next
		}
		next.parents = append(next.parents, request.Hop{Resource: string(ch.resource), ID: last})
	}
	next.resource = res
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			next.ids = append(next.ids, id)
		}
	}
	return next
}

func lastID(ids []string) string {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] != "" {
			return ids[i]
		}
	}
	return ""
}

// Err returns the first navigation error, if any.
func (ch *Chain) Err() error { return ch.err }

// ResourceName returns the terminal resource.
func (ch *Chain) ResourceName() string { return string(ch.resource) }

// CallOption adjusts a single verb call.
type CallOption func(*call)

type call struct {
	suffix string
}

// WithSuffix appends an action path such as "count", "cancel" or
// "123/cancel" to the call.
func WithSuffix(suffix string) CallOption {
	return func(c *call) { c.suffix = strings.Trim(suffix, "/") }
}

func collect(opts []CallOption) call {
	var c call
	for _, o := range opts {
		o(&c)
	}
	return c
}

// context freezes the chain into a request context. A suffix of the form
// "<id>/<action>" becomes a terminal hop holding the id.
func (ch *Chain) context(mutation bool, payload any, suffix string) *request.Context {
	chain := append([]request.Hop(nil), ch.parents...)
	hop, action := splitSuffix(suffix)
	if hop != nil {
		chain = append([]request.Hop{*hop}, chain...)
	}
	return request.New(request.Params{
		Resource: string(ch.resource),
		Mutation: mutation,
		Payload:  payload,
		Chain:    chain,
		IDs:      ch.ids,
		Suffix:   action,
	})
}

// Path returns the REST path a call with the given suffix would use.
func (ch *Chain) Path(opts ...CallOption) (string, error) {
	if ch.err != nil {
		return "", ch.err
	}
	return restPath(ch.client.cfg.APIBase, ch.resource, ch.ids, ch.parents, collect(opts).suffix)
}

// Document builds the graph document a call would send, without sending it.
func (ch *Chain) Document(mutation bool, payload any, opts ...CallOption) (*Document, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	s, err := ch.client.registry.Strategy(ch.resource)
	if err != nil {
		return nil, err
	}
	c := collect(opts)
	if m, ok := plain(payload); mutation && (ok || payload == nil) {
		payload = withID(m, ch.ids)
	}
	return buildDocument(s, ch.context(mutation, payload, c.suffix))
}

// Get fetches the resource. REST responses are unwrapped from their
// collection or entity envelope; graph responses come back in the same shape.
func (ch *Chain) Get(ctx context.Context, query map[string]any, opts ...CallOption) (any, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	c := collect(opts)
	if ch.client.registry.SupportsGraphProtocol(ch.resource) {
		return ch.client.query(ctx, ch.resource, ch.context(false, query, c.suffix))
	}
	return ch.restGet(ctx, query, c.suffix)
}

// All is Get without a suffix.
func (ch *Chain) All(ctx context.Context, query map[string]any) (any, error) {
	return ch.Get(ctx, query)
}

func (ch *Chain) restGet(ctx context.Context, query map[string]any, suffix string) (any, error) {
	def := ch.resource.Definition()
	if _, ok := query["page"]; ok && def.Cursored {
		ch.client.deprecated("page query parameter on a cursored endpoint; use Next instead", ch.resource)
		return []any{}, nil
	}
	path, err := restPath(ch.client.cfg.APIBase, ch.resource, ch.ids, ch.parents, suffix)
	if err != nil {
		return nil, err
	}
	resp, err := ch.client.rest(ctx, ch.resource, transport.Request{Method: http.MethodGet, Path: path, Query: queryValues(query)})
	if err != nil {
		return nil, err
	}
	switch {
	case resp.Links != (transport.Links{}):
		links := resp.Links
		ch.cursors = &links
	case def.Cursored:
		ch.cursors = &transport.Links{}
	}
	return unwrap(ch.resource, resp.Body), nil
}

// Next fetches the page after the last one Get or Next returned on this
// chain. Only cursored REST endpoints paginate; query may carry only "limit".
func (ch *Chain) Next(ctx context.Context, query map[string]any, opts ...CallOption) (any, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	if ch.client.registry.SupportsGraphProtocol(ch.resource) {
		return nil, &UnsupportedGraphOperationError{
			Resource:  ch.resource,
			Operation: "cursor pagination",
			Hint:      "pass page_info as a filter instead",
		}
	}
	if !ch.resource.Definition().Cursored {
		ch.client.deprecated("cursor navigation on a non-cursored endpoint", ch.resource)
		return []any{}, nil
	}
	c := collect(opts)
	if ch.cursors == nil {
		return ch.restGet(ctx, query, c.suffix)
	}
	for k := range query {
		if k != "limit" {
			ch.client.deprecated("only limit is allowed with cursored queries", ch.resource)
			return []any{}, nil
		}
	}
	if ch.cursors.Next == "" {
		return []any{}, nil
	}
	q := map[string]any{"page_info": ch.cursors.Next}
	if l, ok := query["limit"]; ok {
		q["limit"] = l
	}
	return ch.restGet(ctx, q, c.suffix)
}

// Cursors returns the pagination cursors of the last REST page, if any.
func (ch *Chain) Cursors() (prev, next string) {
	if ch.cursors == nil {
		return "", ""
	}
	return ch.cursors.Prev, ch.cursors.Next
}

// Post creates the resource, or runs the action named by WithSuffix.
func (ch *Chain) Post(ctx context.Context, payload any, opts ...CallOption) (any, error) {
	res, err := ch.Mutate(ctx, http.MethodPost, payload, opts...)
	if err != nil {
		return nil, err
	}
	return res.Merged(), nil
}

// Put updates the resource.
func (ch *Chain) Put(ctx context.Context, payload any, opts ...CallOption) (any, error) {
	res, err := ch.Mutate(ctx, http.MethodPut, payload, opts...)
	if err != nil {
		return nil, err
	}
	return res.Merged(), nil
}

// Mutate sends payload with method over REST, or as a graph mutation
// followed by any dependent operations the mutation requires.
func (ch *Chain) Mutate(ctx context.Context, method string, payload any, opts ...CallOption) (res *MutationResult, err error) {
	if ch.err != nil {
		return nil, ch.err
	}
	c := collect(opts)
	m, isRecord := plain(payload)
	if ch.client.registry.SupportsGraphProtocol(ch.resource) {
		defer ch.recordWrite(audit.KindMutation, method, c.suffix, protocolGraph, time.Now(), &err)
		graphPayload := payload
		if isRecord || payload == nil {
			graphPayload = withID(m, ch.ids)
		}
		return ch.client.mutate(ctx, ch.resource, ch.context(true, graphPayload, c.suffix))
	}

	defer ch.recordWrite(audit.KindMutation, method, c.suffix, protocolREST, time.Now(), &err)
	path, err := restPath(ch.client.cfg.APIBase, ch.resource, ch.ids, ch.parents, c.suffix)
	if err != nil {
		return nil, err
	}
	resp, err := ch.client.rest(ctx, ch.resource, transport.Request{
		Method: method,
		Path:   path,
		Body:   restBody(ch.resource, payload, m, isRecord, ch.ids),
	})
	if err != nil {
		return nil, err
	}
	record := resp.Body
	if body, ok := resp.Body.(map[string]any); ok {
		if v, ok := body[ch.resource.Definition().Entity]; ok {
			record = v
		}
	}
	return &MutationResult{Record: record}, nil
}

// Delete removes the resource. Over the graph API it runs the resource's
// delete mutation.
func (ch *Chain) Delete(ctx context.Context, query map[string]any, opts ...CallOption) (out any, err error) {
	if ch.err != nil {
		return nil, ch.err
	}
	c := collect(opts)
	if ch.client.registry.SupportsGraphProtocol(ch.resource) {
		suffix := c.suffix
		if suffix == "" {
			suffix = "delete"
		}
		defer ch.recordWrite(audit.KindDelete, http.MethodDelete, suffix, protocolGraph, time.Now(), &err)
		res, err := ch.client.mutate(ctx, ch.resource, ch.context(true, query, suffix))
		if err != nil {
			return nil, err
		}
		return res.Record, nil
	}
	defer ch.recordWrite(audit.KindDelete, http.MethodDelete, c.suffix, protocolREST, time.Now(), &err)
	path, err := restPath(ch.client.cfg.APIBase, ch.resource, ch.ids, ch.parents, c.suffix)
	if err != nil {
		return nil, err
	}
	resp, err := ch.client.rest(ctx, ch.resource, transport.Request{Method: http.MethodDelete, Path: path, Query: queryValues(query)})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Find fetches one record by id.
func (ch *Chain) Find(ctx context.Context, id string) (any, error) {
	if ch.err != nil {
		return nil, ch.err
	}
	var (
		data any
		err  error
	)
	if ch.client.registry.SupportsGraphProtocol(ch.resource) {
		sub := *ch
		sub.ids = append(append([]string(nil), ch.ids...), id)
		data, err = ch.client.query(ctx, ch.resource, sub.context(false, nil, ""))
	} else {
		data, err = ch.restGet(ctx, nil, id)
	}
	var se *StatusError
	if errors.As(err, &se) && se.NotFound() {
		return nil, &ModelNotFoundError{Resource: string(ch.resource), ID: id}
	}
	if err != nil {
		return nil, err
	}
	if empty(data) {
		return nil, &ModelNotFoundError{Resource: string(ch.resource), ID: id}
	}
	return data, nil
}

// FindMany fetches the records with the given ids.
func (ch *Chain) FindMany(ctx context.Context, ids []string, query map[string]any) (any, error) {
	q := make(map[string]any, len(query)+1)
	for k, v := range query {
		q[k] = v
	}
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			kept = append(kept, id)
		}
	}
	q["ids"] = strings.Join(kept, ",")
	return ch.Get(ctx, q)
}

// Count returns the number of records matching query.
func (ch *Chain) Count(ctx context.Context, query map[string]any) (int64, error) {
	data, err := ch.Get(ctx, query, WithSuffix("count"))
	if err != nil {
		return 0, err
	}
	if m, ok := data.(map[string]any); ok && len(m) == 1 {
		for _, v := range m {
			data = v
		}
	}
	n, ok := gid.NumericID(gid.Stringify(data))
	if !ok {
		return 0, &QueryError{Messages: []string{"count response is not a number"}}
	}
	return n, nil
}

// recordWrite adds a finished write to the audit trail. errp points at
// the caller's named error result.
func (ch *Chain) recordWrite(kind audit.Kind, method, suffix, protocol string, start time.Time, errp *error) {
	if ch.client.audit == nil {
		return
	}
	action := method
	if suffix != "" {
		action += " " + suffix
	}
	ev := audit.Event{
		Shop:       ch.client.cfg.Shop,
		Kind:       kind,
		Resource:   string(ch.resource),
		Action:     action,
		Protocol:   protocol,
		ResourceID: lastID(ch.ids),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    *errp == nil,
	}
	if err := *errp; err != nil {
		ev.ErrorMsg = err.Error()
		var se *StatusError
		if errors.As(err, &se) {
			ev.StatusCode = se.Status
		}
	}
	ch.client.audit.Record(ev)
}

// MutationResult is the outcome of a mutation: the primary record and the
// results of the follow-up steps it triggered, in execution order.
type MutationResult struct {
	Record    any
	FollowUps []StepResult
}

// StepResult is the normalized result of one follow-up step.
type StepResult struct {
	Step     string
	Resource string
	Result   any
}

// Merged returns Record with the variants saved by its follow-ups folded
// in, so a graph product save returns what a REST save would.
func (r *MutationResult) Merged() any {
	rec, ok := r.Record.(map[string]any)
	if !ok {
		return r.Record
	}
	var saved []any
	found := false
	for _, s := range r.FollowUps {
		if s.Step != strategy.StepVariantUpdates && s.Step != strategy.StepVariants {
			continue
		}
		if list, ok := s.Result.([]any); ok {
			saved = append(saved, list...)
			found = true
		}
	}
	if !found {
		return rec
	}
	out := make(map[string]any, len(rec)+1)
	for k, v := range rec {
		out[k] = v
	}
	out["variants"] = saved
	return out
}

func plain(payload any) (map[string]any, bool) {
	switch p := payload.(type) {
	case nil:
		return map[string]any{}, false
	case request.PlainRecorder:
		return p.PlainRecord(), true
	case map[string]any:
		return p, true
	default:
		return map[string]any{}, false
	}
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// deprecated logs a misuse warning when deprecation logging is enabled.
func (c *Client) deprecated(msg string, res canonical.Resource) {
	if c.cfg.Options.DeprecationWarnings() {
		c.logger.Warn("deprecated usage: "+msg, "resource", string(res))
	}
}

// rest sends one REST request inside an operation span.
func (c *Client) rest(ctx context.Context, res canonical.Resource, req transport.Request) (resp *transport.Response, err error) {
	start := time.Now()
	ctx, span, log := c.span(ctx, "shopify."+strings.ToLower(req.Method), res, protocolREST)
	defer func() { c.finish(span, log, protocolREST, res, start, err) }()
	return c.transport.Do(ctx, req)
}
