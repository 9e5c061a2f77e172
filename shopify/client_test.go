package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/audit"
	"shopbridge/internal/config"
	"shopbridge/internal/gql"
	"shopbridge/internal/metrics"
)

func newTestConfig(endpoints map[string]bool) *config.Config {
	retries := 0
	return &config.Config{
		Shop:      "demo",
		Token:     "shpat_test",
		Endpoints: endpoints,
		Retries:   &retries,
	}
}

func newTestClient(t *testing.T, server *httptest.Server, endpoints map[string]bool, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseURL(server.URL)}, opts...)
	c, err := New(newTestConfig(endpoints), opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, v)
}

// graphRequest is one decoded POST to graphql.json.
type graphRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&config.Config{Shop: "demo"})
	require.Error(t, err)
	_, err = New(nil)
	require.Error(t, err)
}

func TestShop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/shop.json", r.URL.Path)
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		writeJSON(w, `{"shop":{"id":548380009,"name":"John Smith Test Store"}}`)
	}))
	defer server.Close()

	shop, err := newTestClient(t, server, nil).Shop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "John Smith Test Store", shop["name"])
}

func TestRESTGetAndNext(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.RequestURI())
		if r.URL.Query().Get("page_info") == "" {
			w.Header().Set("Link", `<https://demo.myshopify.com/admin/api/2024-10/orders.json?limit=1&page_info=abc123>; rel="next"`)
			writeJSON(w, `{"orders":[{"id":1}]}`)
			return
		}
		writeJSON(w, `{"orders":[{"id":2}]}`)
	}))
	defer server.Close()

	orders := newTestClient(t, server, nil).Resource("orders")
	first, err := orders.Get(context.Background(), map[string]any{"limit": 1, "status": "any"})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": 1.0}}, first)
	_, next := orders.Cursors()
	assert.Equal(t, "abc123", next)

	second, err := orders.Next(context.Background(), map[string]any{"limit": 1})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": 2.0}}, second)

	third, err := orders.Next(context.Background(), map[string]any{"limit": 1})
	require.NoError(t, err)
	assert.Equal(t, []any{}, third, "last page has no next cursor")

	assert.Equal(t, []string{
		"/admin/api/2024-10/orders.json?limit=1&status=any",
		"/admin/api/2024-10/orders.json?limit=1&page_info=abc123",
	}, calls)
}

func TestRESTNextRejectsFilters(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Link", `<https://x/orders.json?page_info=abc>; rel="next"`)
		writeJSON(w, `{"orders":[]}`)
	}))
	defer server.Close()

	orders := newTestClient(t, server, nil).Resource("orders")
	_, err := orders.Get(context.Background(), nil)
	require.NoError(t, err)
	got, err := orders.Next(context.Background(), map[string]any{"status": "open"})
	require.NoError(t, err)
	assert.Equal(t, []any{}, got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRESTPageParamOnCursoredEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}))
	defer server.Close()

	got, err := newTestClient(t, server, nil).Resource("products").Get(context.Background(), map[string]any{"page": 2})
	require.NoError(t, err)
	assert.Equal(t, []any{}, got)
}

func TestRESTPutWrapsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/admin/api/2024-10/orders/450789469.json", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"order": map[string]any{"id": "450789469", "note": "gift"}}, body)
		writeJSON(w, `{"order":{"id":450789469,"note":"gift"}}`)
	}))
	defer server.Close()

	got, err := newTestClient(t, server, nil).Resource("orders", "450789469").Put(context.Background(), map[string]any{"note": "gift"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 450789469.0, "note": "gift"}, got)
}

func TestRESTNestedPostAndDelete(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			writeJSON(w, `{}`)
			return
		}
		writeJSON(w, `{"fulfillment":{"id":255858046}}`)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	got, err := c.Resource("orders", "450789469").Resource("fulfillments").Post(context.Background(), map[string]any{"location_id": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 255858046.0}, got)

	_, err = c.Resource("products", "632910392").Resource("images", "850703190").Delete(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /admin/api/2024-10/orders/450789469/fulfillments.json",
		"DELETE /admin/api/2024-10/products/632910392/images/850703190.json",
	}, seen)
}

func TestWritesAreAudited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, `{"errors":"Not Found"}`)
			return
		}
		writeJSON(w, `{"order":{"id":450789469}}`)
	}))
	defer server.Close()

	trail, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer trail.Close()

	c := newTestClient(t, server, nil, WithAudit(trail))
	_, err = c.Resource("orders", "450789469").Post(context.Background(), nil, WithSuffix("close"))
	require.NoError(t, err)
	_, err = c.Resource("webhooks", "4759306").Delete(context.Background(), nil)
	require.Error(t, err)

	events, err := trail.Query(audit.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	byKind := map[audit.Kind]audit.Event{}
	for _, ev := range events {
		byKind[ev.Kind] = ev
	}
	post := byKind[audit.KindMutation]
	assert.Equal(t, "orders", post.Resource)
	assert.Equal(t, "POST close", post.Action)
	assert.Equal(t, "rest", post.Protocol)
	assert.Equal(t, "450789469", post.ResourceID)
	assert.True(t, post.Success)

	del := byKind[audit.KindDelete]
	assert.Equal(t, "webhooks", del.Resource)
	assert.Equal(t, "DELETE", del.Action)
	assert.Equal(t, http.StatusNotFound, del.StatusCode)
	assert.False(t, del.Success)
	assert.Equal(t, "demo.myshopify.com", del.Shop)
}

func TestNavigationErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}))
	defer server.Close()
	c := newTestClient(t, server, nil)

	_, err := c.Resource("orders").Resource("fulfillments").Get(context.Background(), nil)
	var missing *MissingIDError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "calling fulfillments from orders requires an id", err.Error())

	_, err = c.Resource("carts").Get(context.Background(), nil)
	var unknown *UnknownResourceError
	require.ErrorAs(t, err, &unknown)
}

func TestFindNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/products/1.json", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, `{"errors":"Not Found"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server, nil).Resource("products").Find(context.Background(), "1")
	var nf *ModelNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "1", nf.ID)
}

func TestFindManyAndCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/api/2024-10/customers.json":
			assert.Equal(t, "1,2", r.URL.Query().Get("ids"))
			writeJSON(w, `{"customers":[{"id":1},{"id":2}]}`)
		case "/admin/api/2024-10/customers/count.json":
			writeJSON(w, `{"count":17}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	customers := newTestClient(t, server, nil).Resource("customers")
	many, err := customers.FindMany(context.Background(), []string{"1", "", "2"}, nil)
	require.NoError(t, err)
	assert.Len(t, many, 2)

	n, err := customers.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
}

func TestStatusErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeJSON(w, `{"errors":{"title":["can't be blank"]}}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server, nil).Resource("products").Post(context.Background(), map[string]any{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Status)
	assert.True(t, strings.HasPrefix(err.Error(), "HTTP request returned status code 422:\n"))
}

const fulfillmentOrdersResponse = `{"data": {"order": {
	"id": "gid://shopify/Order/500",
	"fulfillmentOrders": {"edges": [{"node": {
		"id": "gid://shopify/FulfillmentOrder/1046000778",
		"status": "OPEN",
		"requestStatus": "UNSUBMITTED",
		"supportedActions": [{"action": "CREATE_FULFILLMENT"}],
		"lineItems": {"edges": [{"node": {
			"id": "gid://shopify/FulfillmentOrderLineItem/1025578633",
			"totalQuantity": 3,
			"remainingQuantity": 1
		}}]}
	}}]}
}}}`

func TestGraphFulfillmentOrdersUnderOrder(t *testing.T) {
	var got graphRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/api/2024-10/graphql.json", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, fulfillmentOrdersResponse)
	}))
	defer server.Close()

	m := metrics.NewCollector()
	c := newTestClient(t, server, map[string]bool{"fulfillment_orders": true}, WithMetrics(m))
	out, err := c.Resource("orders", "500").Resource("fulfillment_orders").Get(context.Background(), nil)
	require.NoError(t, err)

	assert.Contains(t, got.Query, `order(id: "gid://shopify/Order/500")`)
	require.NoError(t, gql.Validate(got.Query))

	list := out.([]any)
	require.Len(t, list, 1)
	fo := list[0].(map[string]any)
	assert.Equal(t, int64(500), fo["order_id"])
	assert.Equal(t, "open", fo["status"])
	line := fo["line_items"].([]any)[0].(map[string]any)
	assert.Equal(t, int64(2), line["fulfillable_quantity"])
}

func TestGraphUnsupportedResourceNeverFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}))
	defer server.Close()

	c := newTestClient(t, server, map[string]bool{"assets": true})
	_, err := c.Resource("themes", "828155753").Resource("assets").Get(context.Background(), nil)
	var unsupported *UnsupportedGraphOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "assets", string(unsupported.Resource))
}

func TestGraphUserErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":{"productCreate":{"product":null,"userErrors":[{"field":["title"],"message":"Title can't be blank"}]}}}`)
	}))
	defer server.Close()

	c := newTestClient(t, server, map[string]bool{"products": true})
	_, err := c.Resource("products").Post(context.Background(), map[string]any{"title": ""})
	var rue *RemoteUserError
	require.ErrorAs(t, err, &rue)
	assert.Equal(t, "HTTP request returned status code 422:\n{\"errors\":[\"Title can't be blank\"]}", err.Error())
	assert.Equal(t, []string{"title"}, rue.Errors[0].Field)
}

// productServer answers the four documents of a product create.
func productServer(t *testing.T, publications string) (*httptest.Server, *[]string) {
	var (
		mu    sync.Mutex
		steps []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NoError(t, gql.Validate(req.Query), req.Query)

		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.Contains(req.Query, "publishablePublish"):
			steps = append(steps, "publish")
			assert.Equal(t, "gid://shopify/Publication/77", req.Variables["publicationId"])
			writeJSON(w, `{"data":{"publishablePublish":{"userErrors":[]}}}`)
		case strings.Contains(req.Query, "productVariantsBulkCreate"):
			steps = append(steps, "variants")
			assert.Equal(t, "gid://shopify/Product/42", req.Variables["productId"])
			writeJSON(w, `{"data":{"productVariantsBulkCreate":{"product":{"id":"gid://shopify/Product/42"},"productVariants":[{"id":"gid://shopify/ProductVariant/7","price":"10.00"}],"userErrors":[]}}}`)
		case strings.Contains(req.Query, "productCreate"):
			steps = append(steps, "product")
			writeJSON(w, `{"data":{"productCreate":{"product":{"id":"gid://shopify/Product/42","title":"Shirt"},"userErrors":[]}}}`)
		case strings.Contains(req.Query, "publications"):
			steps = append(steps, "publications")
			writeJSON(w, publications)
		default:
			t.Errorf("unexpected document %s", req.Query)
		}
	}))
	return server, &steps
}

var shirt = map[string]any{
	"title":    "Shirt",
	"options":  []any{map[string]any{"name": "Size", "position": 1}},
	"variants": []any{map[string]any{"option1": "S", "price": "10.00"}},
}

func TestGraphProductCreateRunsFollowUps(t *testing.T) {
	server, steps := productServer(t, `{"data":{"publications":{"edges":[{"node":{"id":"gid://shopify/Publication/77","name":"Online Store"}}]}}}`)
	defer server.Close()

	c := newTestClient(t, server, map[string]bool{"products": true})
	res, err := c.Resource("products").Mutate(context.Background(), http.MethodPost, shirt)
	require.NoError(t, err)

	assert.Equal(t, []string{"product", "variants", "publications", "publish"}, *steps)
	product := res.Record.(map[string]any)
	assert.Equal(t, int64(42), product["id"])
	require.Len(t, res.FollowUps, 3)
	assert.Equal(t, "variants", res.FollowUps[0].Step)

	merged := res.Merged().(map[string]any)
	variants := merged["variants"].([]any)
	require.Len(t, variants, 1)
	assert.Equal(t, int64(7), variants[0].(map[string]any)["id"])
	assert.Equal(t, int64(42), variants[0].(map[string]any)["product_id"])
}

func TestGraphProductCreateReportsFailedStep(t *testing.T) {
	server, steps := productServer(t, `{"data":{"publications":{"edges":[]}}}`)
	defer server.Close()

	c := newTestClient(t, server, map[string]bool{"products": true})
	_, err := c.Resource("products").Post(context.Background(), shirt)

	var fe *FollowUpError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "publish", fe.Step)
	assert.Equal(t, []string{"products", "variants", "publications"}, fe.Completed)
	assert.True(t, errors.Is(err, ErrNoPublications))
	assert.Equal(t, []string{"product", "variants", "publications"}, *steps)
}

func TestPilotStoreRoutesToGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/graphql.json", r.URL.Path)
		writeJSON(w, `{"data":{"ordersCount":{"count":12,"precision":"EXACT"}}}`)
	}))
	defer server.Close()

	cfg := newTestConfig(nil)
	cfg.GraphQLPilotStores = []string{"demo.myshopify.com"}
	c, err := New(cfg, WithBaseURL(server.URL))
	require.NoError(t, err)

	assert.True(t, c.UsesGraph("orders"))
	assert.False(t, c.UsesGraph("themes"))
	n, err := c.Resource("orders").Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestDocumentWithoutSending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}))
	defer server.Close()

	c := newTestClient(t, server, map[string]bool{"orders": true})
	doc, err := c.Resource("orders", "450789469").Document(true, nil, WithSuffix("cancel"))
	require.NoError(t, err)
	require.NoError(t, gql.Validate(doc.Query))
	assert.Contains(t, doc.Query, "orderCancel")

	path, err := c.Resource("orders", "450789469").Path(WithSuffix("cancel"))
	require.NoError(t, err)
	assert.Equal(t, "/admin/api/2024-10/orders/450789469/cancel.json", path)
}

func TestBuildDocument(t *testing.T) {
	doc, err := BuildDocument("fulfillment_orders", RequestParams{Chain: []Hop{{Resource: "orders", ID: "500"}}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.Query, `{ order(id: "gid://shopify/Order/500")`), doc.Query)

	_, err = BuildDocument("fulfillment_orders", RequestParams{})
	var missing *MissingChainResourceError
	require.ErrorAs(t, err, &missing)

	_, err = BuildDocument("themes", RequestParams{})
	var unsupported *UnsupportedGraphOperationError
	require.ErrorAs(t, err, &unsupported)
}
