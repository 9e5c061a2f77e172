package webhook

import "strings"

// topics pairs REST topic names with graph enum values where the mechanical
// conversion does not apply.
var topics = map[string]string{
	"app/uninstalled":              "APP_UNINSTALLED",
	"carts/create":                 "CARTS_CREATE",
	"carts/update":                 "CARTS_UPDATE",
	"checkouts/create":             "CHECKOUTS_CREATE",
	"checkouts/update":             "CHECKOUTS_UPDATE",
	"customers/create":             "CUSTOMERS_CREATE",
	"customers/delete":             "CUSTOMERS_DELETE",
	"customers/update":             "CUSTOMERS_UPDATE",
	"fulfillment_orders/cancelled": "FULFILLMENT_ORDERS_CANCELLED",
	"fulfillment_orders/fulfillment_request_accepted": "FULFILLMENT_ORDERS_FULFILLMENT_REQUEST_ACCEPTED",
	"fulfillment_orders/hold_released":                "FULFILLMENT_ORDERS_HOLD_RELEASED",
	"fulfillment_orders/moved":                        "FULFILLMENT_ORDERS_MOVED",
	"fulfillment_orders/placed_on_hold":               "FULFILLMENT_ORDERS_PLACED_ON_HOLD",
	"fulfillments/create":                             "FULFILLMENTS_CREATE",
	"fulfillments/update":                             "FULFILLMENTS_UPDATE",
	"inventory_levels/update":                         "INVENTORY_LEVELS_UPDATE",
	"orders/cancelled":                                "ORDERS_CANCELLED",
	"orders/create":                                   "ORDERS_CREATE",
	"orders/fulfilled":                                "ORDERS_FULFILLED",
	"orders/paid":                                     "ORDERS_PAID",
	"orders/partially_fulfilled":                      "ORDERS_PARTIALLY_FULFILLED",
	"orders/updated":                                  "ORDERS_UPDATED",
	"products/create":                                 "PRODUCTS_CREATE",
	"products/delete":                                 "PRODUCTS_DELETE",
	"products/update":                                 "PRODUCTS_UPDATE",
	"refunds/create":                                  "REFUNDS_CREATE",
	"shop/update":                                     "SHOP_UPDATE",
}

var graphTopics = func() map[string]string {
	m := make(map[string]string, len(topics))
	for rest, graph := range topics {
		m[graph] = rest
	}
	return m
}()

// GraphTopic converts "orders/create" to "ORDERS_CREATE". Graph enum values
// pass through unchanged.
func GraphTopic(topic string) string {
	t := strings.TrimSpace(topic)
	if g, ok := topics[strings.ToLower(t)]; ok {
		return g
	}
	if !strings.Contains(t, "/") {
		return strings.ToUpper(t)
	}
	return strings.ToUpper(strings.ReplaceAll(t, "/", "_"))
}

// RESTTopic converts "ORDERS_CREATE" to "orders/create". REST topic names
// pass through lowercased. Unknown enum values split at the first underscore.
func RESTTopic(topic string) string {
	t := strings.TrimSpace(topic)
	if strings.Contains(t, "/") {
		return strings.ToLower(t)
	}
	if r, ok := graphTopics[strings.ToUpper(t)]; ok {
		return r
	}
	if i := strings.IndexByte(t, '_'); i > 0 {
		return strings.ToLower(t[:i] + "/" + t[i+1:])
	}
	return strings.ToLower(t)
}
