package request

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wrapped struct{ rec map[string]any }

func (w wrapped) PlainRecord() map[string]any { return w.rec }

func TestResourceIDPriority(t *testing.T) {
	ctx := New(Params{
		Resource: "images",
		Payload:  map[string]any{"id": float64(7)},
		IDs:      []string{"3"},
		Chain:    []Hop{{Resource: "products", ID: "9"}},
	})
	assert.Equal(t, "7", ctx.ResourceID())

	ctx = New(Params{Resource: "images", IDs: []string{"3"}, Chain: []Hop{{Resource: "products", ID: "9"}}})
	assert.Equal(t, "3", ctx.ResourceID())

	ctx = New(Params{Resource: "images", Chain: []Hop{{Resource: "products", ID: "9"}}})
	assert.Equal(t, "", ctx.ResourceID(), "a parent id is never the terminal id")

	ctx = New(Params{Resource: "fulfillment_orders", Chain: []Hop{{Resource: "123", Terminal: true}}, Suffix: "cancel"})
	assert.Equal(t, "123", ctx.ResourceID())
}

func TestResourceIDScalarPayload(t *testing.T) {
	assert.Equal(t, "55", New(Params{Payload: "55", IDs: []string{"1"}}).ResourceID())
	assert.Equal(t, "56", New(Params{Payload: float64(56)}).ResourceID())
	assert.Equal(t, "57", New(Params{Payload: 57}).ResourceID())
}

func TestGlobalResourceID(t *testing.T) {
	ctx := New(Params{IDs: []string{"500"}})
	assert.Equal(t, "gid://shopify/Order/500", ctx.GlobalResourceID("Order"))
	assert.Equal(t, "", New(Params{}).GlobalResourceID("Order"))
}

func TestFindIDInChain(t *testing.T) {
	ctx := New(Params{
		Resource: "fulfillment_orders",
		Chain:    []Hop{{Resource: "customers", ID: "1"}, {Resource: "orders", ID: "500"}},
	})
	id, err := ctx.FindIDInChain("orders")
	require.NoError(t, err)
	assert.Equal(t, "500", id)
	assert.True(t, ctx.ChainContains("customers"))
	assert.False(t, ctx.ChainContains("products"))

	_, err = New(Params{Resource: "fulfillment_orders"}).FindIDInChain("orders")
	var missing *MissingChainResourceError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "orders", missing.Parent)
	assert.Contains(t, err.Error(), "orders(id).fulfillment_orders")
}

func TestPayloadSection(t *testing.T) {
	ctx := New(Params{Payload: map[string]any{"product": map[string]any{"title": "Hat"}}})
	assert.Equal(t, map[string]any{"title": "Hat"}, ctx.PayloadSection("product"))
	assert.Equal(t, map[string]any{"title": "Hat"}, ctx.Record("product"))
	assert.Equal(t, ctx.Payload(), ctx.PayloadSection("variant"))

	ctx = New(Params{Payload: wrapped{rec: map[string]any{"order": map[string]any{"note": "x"}}}})
	assert.Equal(t, map[string]any{"note": "x"}, ctx.PayloadSection("order"))

	assert.Equal(t, map[string]any{}, New(Params{Payload: "5"}).Record("order"))
}

func TestContextIsImmutable(t *testing.T) {
	ids := []string{"1"}
	chain := []Hop{{Resource: "orders", ID: "2"}}
	ctx := New(Params{IDs: ids, Chain: chain, Suffix: "/cancel"})
	ids[0] = "9"
	chain[0].ID = "9"
	got := ctx.IDs()
	got[0] = "8"

	assert.Equal(t, []string{"1"}, ctx.IDs())
	id, err := ctx.FindIDInChain("orders")
	require.NoError(t, err)
	assert.Equal(t, "2", id)
	assert.True(t, ctx.HasSuffix("cancel"))
}
