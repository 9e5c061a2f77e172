package strategy

import (
	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
)

type fulfillments struct{}

func (fulfillments) Resource() canonical.Resource { return canonical.Fulfillments }

var shortAddress = gql.Fields("address1", "address2", "city", "country", "zip")

var fulfillmentFields = gql.Fields(
	"id", "name", "createdAt", "estimatedDeliveryAt", "inTransitAt", "status", "displayStatus", "updatedAt",
	gql.Object("location", "id", "name", gql.Object("address", shortAddress)),
	gql.Edges("fulfillmentLineItems($PER_PAGE)",
		"id", "quantity",
		gql.Object("lineItem", "id", "title", "variantTitle", "quantity", "sku", gql.Object("variant", "id")),
	),
	gql.Object("order", "id", "name", "email", gql.Object("shippingAddress", shortAddress)),
	gql.Object("trackingInfo", "company", "number", "url"),
)

func (fulfillments) BuildQuery(rc *request.Context) (*gql.Document, error) {
	if id := rc.ResourceID(); id != "" {
		return document(gql.Fields(gql.Object("fulfillment($ID)", fulfillmentFields)), map[string]string{
			"$ID":       gid.IDClause(id, "Fulfillment"),
			"$PER_PAGE": "first: 250",
		}, "", nil)
	}
	orderID, err := rc.FindIDInChain(string(canonical.Orders))
	if err != nil {
		return nil, err
	}
	fs := gql.Fields(gql.Object("order($ORDER_ID)", "id", gql.Object("fulfillments($LIST)", fulfillmentFields)))
	return document(fs, map[string]string{
		"$ORDER_ID": gid.IDClause(orderID, "Order"),
		"$LIST":     perPage(limit(queryParams(rc), 50, 250)),
		"$PER_PAGE": "first: 250",
	}, "", nil)
}

func (f fulfillments) BuildMutation(rc *request.Context) (*gql.Document, error) {
	switch {
	case rc.HasSuffix("cancel"):
		fs := gql.Fields(gql.Object("fulfillmentCancel($INPUT)", gql.Object("fulfillment", "id", "status"), userErrors))
		return document(fs,
			map[string]string{"$INPUT": "id: $id"},
			"mutation CancelFulfillment($id: ID!)",
			map[string]any{"id": rc.GlobalResourceID("Fulfillment")})
	case rc.HasSuffix("update_tracking"):
		return f.updateTracking(rc)
	case rc.Suffix() != "":
		return nil, unsupported(canonical.Fulfillments, rc, "unknown fulfillment action")
	case rc.ResourceID() != "":
		return nil, unsupported(canonical.Fulfillments, rc, "fulfillments cannot be edited, use update_tracking")
	default:
		return f.create(rc)
	}
}

func (fulfillments) updateTracking(rc *request.Context) (*gql.Document, error) {
	in := rc.Record("fulfillment")
	fs := gql.Fields(gql.Object("fulfillmentTrackingInfoUpdate($INPUT)", gql.Object("fulfillment", fulfillmentFields), userErrors))
	return document(fs,
		map[string]string{
			"$INPUT":    "fulfillmentId: $fulfillmentId, trackingInfoInput: $trackingInfoInput, notifyCustomer: $notifyCustomer",
			"$PER_PAGE": "first: 250",
		},
		"mutation UpdateFulfillmentTracking($fulfillmentId: ID!, $trackingInfoInput: FulfillmentTrackingInput!, $notifyCustomer: Boolean)",
		map[string]any{
			"fulfillmentId":     rc.GlobalResourceID("Fulfillment"),
			"trackingInfoInput": canonical.CamelKeys(asRecord(in["tracking_info"])),
			"notifyCustomer":    boolOr(in["notify_customer"], false),
		})
}

func (fulfillments) create(rc *request.Context) (*gql.Document, error) {
	in := rc.Record("fulfillment")
	var groups []any
	for _, g := range asList(in["line_items_by_fulfillment_order"]) {
		row := asRecord(g)
		var lines []any
		for _, l := range asList(row["fulfillment_order_line_items"]) {
			line := asRecord(l)
			lines = append(lines, map[string]any{
				"id":       gid.ToGlobalID(str(line["id"]), "FulfillmentOrderLineItem"),
				"quantity": line["quantity"],
			})
		}
		group := map[string]any{"fulfillmentOrderId": gid.ToGlobalID(str(row["fulfillment_order_id"]), "FulfillmentOrder")}
		if len(lines) > 0 {
			group["fulfillmentOrderLineItems"] = lines
		}
		groups = append(groups, group)
	}
	if len(groups) == 0 {
		return nil, unsupported(canonical.Fulfillments, rc, "line_items_by_fulfillment_order is required")
	}

	fulfillment := map[string]any{
		"lineItemsByFulfillmentOrder": groups,
		"trackingInfo":                canonical.CamelKeys(asRecord(in["tracking_info"])),
		"notifyCustomer":              boolOr(in["notify_customer"], true),
	}
	if origin := asRecord(in["origin_address"]); len(origin) > 0 {
		fulfillment["originAddress"] = canonical.CamelKeys(origin)
	}

	fs := gql.Fields(gql.Object("fulfillmentCreate($INPUT)", gql.Object("fulfillment", fulfillmentFields), userErrors))
	return document(fs,
		map[string]string{"$INPUT": "fulfillment: $fulfillment, message: $message", "$PER_PAGE": "first: 250"},
		"mutation CreateFulfillment($fulfillment: FulfillmentInput!, $message: String)",
		map[string]any{"fulfillment": fulfillment, "message": in["message"]})
}
