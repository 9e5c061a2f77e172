// Package canonical holds the closed set of admin API resources and the
// naming rules shared by the REST and graph paths.
package canonical

import "fmt"

// Resource names one admin API resource family.
type Resource string

const (
	Assets                      Resource = "assets"
	AssignedFulfillmentOrders   Resource = "assigned_fulfillment_orders"
	Customers                   Resource = "customers"
	DiscountCodes               Resource = "discount_codes"
	Disputes                    Resource = "disputes"
	Fulfillments                Resource = "fulfillments"
	FulfillmentOrders           Resource = "fulfillment_orders"
	FulfillmentServices         Resource = "fulfillment_services"
	Images                      Resource = "images"
	Metafields                  Resource = "metafields"
	Orders                      Resource = "orders"
	PriceRules                  Resource = "price_rules"
	Products                    Resource = "products"
	Publications                Resource = "publications"
	RecurringApplicationCharges Resource = "recurring_application_charges"
	Risks                       Resource = "risks"
	SmartCollections            Resource = "smart_collections"
	Themes                      Resource = "themes"
	Variants                    Resource = "variants"
	Webhooks                    Resource = "webhooks"
)

// Definition describes how a resource is addressed on both protocols.
type Definition struct {
	Resource Resource
	// Endpoint is the REST template relative to the API base. A "%s"
	// placeholder marks where an entity id goes. Empty for graph-only resources.
	Endpoint string
	// Entity and Collection are the REST envelope keys.
	Entity     string
	Collection string
	// GraphType is the type segment used in global ids.
	GraphType string
	// Cursored endpoints paginate through Link header cursors.
	Cursored bool
	// GraphOnly resources have no REST equivalent.
	GraphOnly bool
}

var definitions = map[Resource]Definition{
	Assets:                      {Endpoint: "assets.json", Entity: "asset", Collection: "assets", GraphType: "OnlineStoreThemeFile"},
	AssignedFulfillmentOrders:   {Endpoint: "assigned_fulfillment_orders/%s.json", Entity: "fulfillment_order", Collection: "fulfillment_orders", GraphType: "FulfillmentOrder"},
	Customers:                   {Endpoint: "customers/%s.json", Entity: "customer", Collection: "customers", GraphType: "Customer", Cursored: true},
	DiscountCodes:               {Endpoint: "discount_codes/%s.json", Entity: "discount_code", Collection: "discount_codes", GraphType: "DiscountRedeemCode", Cursored: true},
	Disputes:                    {Endpoint: "shopify_payments/disputes/%s.json", Entity: "dispute", Collection: "disputes", GraphType: "ShopifyPaymentsDispute", Cursored: true},
	Fulfillments:                {Endpoint: "fulfillments/%s.json", Entity: "fulfillment", Collection: "fulfillments", GraphType: "Fulfillment", Cursored: true},
	FulfillmentOrders:           {Endpoint: "fulfillment_orders/%s.json", Entity: "fulfillment_order", Collection: "fulfillment_orders", GraphType: "FulfillmentOrder"},
	FulfillmentServices:         {Endpoint: "fulfillment_services/%s.json", Entity: "fulfillment_service", Collection: "fulfillment_services", GraphType: "FulfillmentService"},
	Images:                      {Endpoint: "images/%s.json", Entity: "image", Collection: "images", GraphType: "MediaImage"},
	Metafields:                  {Endpoint: "metafields/%s.json", Entity: "metafield", Collection: "metafields", GraphType: "Metafield"},
	Orders:                      {Endpoint: "orders/%s.json", Entity: "order", Collection: "orders", GraphType: "Order", Cursored: true},
	PriceRules:                  {Endpoint: "price_rules/%s.json", Entity: "price_rule", Collection: "price_rules", GraphType: "PriceRule", Cursored: true},
	Products:                    {Endpoint: "products/%s.json", Entity: "product", Collection: "products", GraphType: "Product", Cursored: true},
	Publications:                {Entity: "publication", Collection: "publications", GraphType: "Publication", GraphOnly: true},
	RecurringApplicationCharges: {Endpoint: "recurring_application_charges/%s.json", Entity: "recurring_application_charge", Collection: "recurring_application_charges", GraphType: "AppSubscription"},
	Risks:                       {Endpoint: "risks/%s.json", Entity: "risk", Collection: "risks", GraphType: "OrderRisk"},
	SmartCollections:            {Endpoint: "smart_collections/%s.json", Entity: "smart_collection", Collection: "smart_collections", GraphType: "Collection", Cursored: true},
	Themes:                      {Endpoint: "themes/%s.json", Entity: "theme", Collection: "themes", GraphType: "OnlineStoreTheme"},
	Variants:                    {Endpoint: "variants/%s.json", Entity: "variant", Collection: "variants", GraphType: "ProductVariant", Cursored: true},
	Webhooks:                    {Endpoint: "webhooks/%s.json", Entity: "webhook", Collection: "webhooks", GraphType: "WebhookSubscription", Cursored: true},
}

func init() {
	for r, d := range definitions {
		d.Resource = r
		definitions[r] = d
	}
}

// Lookup resolves a resource by its snake_case name.
func Lookup(name string) (Resource, error) {
	r := Resource(name)
	if _, ok := definitions[r]; !ok {
		return "", fmt.Errorf("unknown resource %q", name)
	}
	return r, nil
}

// Definition returns the addressing rules for r.
func (r Resource) Definition() Definition {
	return definitions[r]
}

// Valid reports whether r belongs to the closed resource set.
func (r Resource) Valid() bool {
	_, ok := definitions[r]
	return ok
}

// GraphType is shorthand for r.Definition().GraphType.
func (r Resource) GraphType() string {
	return definitions[r].GraphType
}

func (r Resource) String() string { return string(r) }

// All lists every resource in a stable order.
func All() []Resource {
	return []Resource{
		Assets, AssignedFulfillmentOrders, Customers, DiscountCodes, Disputes,
		Fulfillments, FulfillmentOrders, FulfillmentServices, Images, Metafields,
		Orders, PriceRules, Products, Publications, RecurringApplicationCharges,
		Risks, SmartCollections, Themes, Variants, Webhooks,
	}
}
