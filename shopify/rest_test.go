package shopify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/canonical"
	"shopbridge/internal/request"
)

func TestRestPath(t *testing.T) {
	const base = "admin/api/2024-10"
	tests := []struct {
		name   string
		res    canonical.Resource
		ids    []string
		chain  []request.Hop
		suffix string
		want   string
	}{
		{name: "collection", res: canonical.Orders, want: "/admin/api/2024-10/orders.json"},
		{name: "entity", res: canonical.Orders, ids: []string{"450789469"}, want: "/admin/api/2024-10/orders/450789469.json"},
		{name: "count", res: canonical.Orders, suffix: "count", want: "/admin/api/2024-10/orders/count.json"},
		{name: "entity action", res: canonical.Orders, ids: []string{"450789469"}, suffix: "cancel", want: "/admin/api/2024-10/orders/450789469/cancel.json"},
		{
			name:  "nested collection",
			res:   canonical.Fulfillments,
			chain: []request.Hop{{Resource: "orders", ID: "450789469"}},
			want:  "/admin/api/2024-10/orders/450789469/fulfillments.json",
		},
		{
			name:  "two levels",
			res:   canonical.Images,
			ids:   []string{"850703190"},
			chain: []request.Hop{{Resource: "products", ID: "632910392"}},
			want:  "/admin/api/2024-10/products/632910392/images/850703190.json",
		},
		{
			name:  "no placeholder",
			res:   canonical.Assets,
			chain: []request.Hop{{Resource: "themes", ID: "828155753"}},
			want:  "/admin/api/2024-10/themes/828155753/assets.json",
		},
		{
			name:   "id suffix on collection",
			res:    canonical.FulfillmentOrders,
			suffix: "1046000778/cancel",
			want:   "/admin/api/2024-10/fulfillment_orders/1046000778/cancel.json",
		},
		{
			name:  "terminal hops are not path segments",
			res:   canonical.Orders,
			chain: []request.Hop{{Resource: "9", Terminal: true}},
			want:  "/admin/api/2024-10/orders.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := restPath(base, tt.res, tt.ids, tt.chain, tt.suffix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRestPathRejectsBadIDs(t *testing.T) {
	_, err := restPath("admin", canonical.Orders, []string{"1", "2"}, nil, "")
	var invalid *InvalidEndpointError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "orders/%s.json", invalid.Endpoint)

	_, err = restPath("admin", canonical.Publications, nil, nil, "")
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "publications has no REST endpoint", err.Error())
}

func TestRestBody(t *testing.T) {
	got := restBody(canonical.Orders, nil, map[string]any{"note": "hi"}, true, []string{"450789469"})
	assert.Equal(t, map[string]any{"order": map[string]any{"note": "hi", "id": "450789469"}}, got)

	got = restBody(canonical.Orders, nil, map[string]any{"id": 7}, true, []string{"450789469"})
	assert.Equal(t, map[string]any{"order": map[string]any{"id": 7}}, got)

	got = restBody(canonical.Assets, nil, map[string]any{"key": "templates/index.liquid"}, true, []string{"theme"})
	assert.Equal(t, map[string]any{"asset": map[string]any{"key": "templates/index.liquid"}}, got)

	got = restBody(canonical.Variants, []any{1, 2}, map[string]any{}, false, nil)
	assert.Equal(t, map[string]any{"variant": []any{1, 2}}, got)
}

func TestUnwrap(t *testing.T) {
	assert.Equal(t, []any{"a"}, unwrap(canonical.Orders, map[string]any{"orders": []any{"a"}}))
	assert.Equal(t, map[string]any{"id": 1.0}, unwrap(canonical.Orders, map[string]any{"order": map[string]any{"id": 1.0}}))
	assert.Equal(t, map[string]any{"count": 3.0}, unwrap(canonical.Orders, map[string]any{"count": 3.0}))
}

func TestQueryValues(t *testing.T) {
	got := queryValues(map[string]any{
		"ids":    []any{1, "2"},
		"fields": []string{"id", "name"},
		"limit":  50,
		"status": "any",
		"skip":   nil,
	})
	assert.Equal(t, "fields=id%2Cname&ids=1%2C2&limit=50&status=any", got.Encode())
	assert.Nil(t, queryValues(nil))
}

func TestSplitSuffix(t *testing.T) {
	hop, action := splitSuffix("1046000778/cancel")
	require.NotNil(t, hop)
	assert.Equal(t, request.Hop{Resource: "1046000778", Terminal: true}, *hop)
	assert.Equal(t, "cancel", action)

	hop, action = splitSuffix("fulfillment_request/accept")
	assert.Nil(t, hop)
	assert.Equal(t, "fulfillment_request/accept", action)

	hop, action = splitSuffix("count")
	assert.Nil(t, hop)
	assert.Equal(t, "count", action)
}

func TestMergedFoldsBothVariantBatches(t *testing.T) {
	res := &MutationResult{
		Record: map[string]any{"id": int64(42)},
		FollowUps: []StepResult{
			{Step: "variant_updates", Result: []any{map[string]any{"id": int64(11)}}},
			{Step: "variants", Result: []any{map[string]any{"id": int64(12)}}},
		},
	}
	merged := res.Merged().(map[string]any)
	assert.Equal(t, []any{map[string]any{"id": int64(11)}, map[string]any{"id": int64(12)}}, merged["variants"])
	assert.NotContains(t, res.Record, "variants")
}
