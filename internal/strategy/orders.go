package strategy

import (
	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
)

type orders struct{}

func (orders) Resource() canonical.Resource { return canonical.Orders }

var addressFields = gql.Fields(
	"id", "firstName", "lastName", "latitude", "longitude", "name", "phone", "company",
	"address1", "address2", "city", "province", "country", "countryCodeV2", "provinceCode", "zip",
)

var moneyFields = gql.Fields(
	gql.Object("shopMoney", "amount", "currencyCode"),
	gql.Object("presentmentMoney", "amount", "currencyCode"),
)

var orderFields = gql.Fields(
	"id",
	gql.Object("app", "id"),
	"clientIp", "customerAcceptsMarketing", "cancelReason", "cancelledAt", "confirmationNumber",
	"confirmed", "email", "createdAt", "closedAt", "currencyCode",
	gql.Object("customer",
		"id", "createdAt",
		gql.Object("defaultAddress", addressFields),
		"email",
		gql.Object("emailMarketingConsent", "consentUpdatedAt", "marketingOptInLevel", "marketingState"),
		"firstName", "lastName", "multipassIdentifier", "note", "phone",
		gql.Object("smsMarketingConsent", "consentCollectedFrom", "consentUpdatedAt", "marketingOptInLevel", "marketingState"),
		"state", "tags", "taxExempt", "taxExemptions", "updatedAt", "verifiedEmail", "validEmailAddress", "locale",
	),
	gql.Edges("lineItems($PER_PAGE)",
		"currentQuantity",
		gql.Object("discountAllocations", gql.Object("allocatedAmountSet", moneyFields)),
		gql.Object("duties", "id", gql.Object("price", moneyFields)),
		"nonFulfillableQuantity",
		gql.Object("fulfillmentService", "id", "handle", "serviceName"),
		"fulfillmentStatus", "isGiftCard", "id", "name",
		gql.Object("originalUnitPriceSet", moneyFields),
		gql.Object("product", "id"),
		"requiresShipping", "sku",
		gql.Object("taxLines", gql.Object("priceSet", moneyFields), "rate", "source", "title"),
		"taxable",
		gql.Object("totalDiscountSet", moneyFields),
		gql.Object("variant", "id", "inventoryQuantity"),
		"variantTitle", "vendor", "title", "quantity",
	),
	"customerLocale", "discountCodes",
	gql.Edges("discountApplications($PER_PAGE)",
		"allocationMethod", "index", "targetSelection", "targetType", gql.Object("value", "__typename"),
	),
	"estimatedTaxes", "displayFinancialStatus", "displayFulfillmentStatus",
	gql.Object("fulfillments",
		"id", "createdAt", "deliveredAt", "displayStatus",
		gql.Edges("fulfillmentOrders($PER_PAGE)", "id"),
	),
	gql.Object("billingAddress", addressFields),
	gql.Object("shippingAddress", addressFields),
	"updatedAt",
	gql.Object("cartDiscountAmountSet", moneyFields),
	gql.Object("currentSubtotalPriceSet", moneyFields),
	gql.Object("currentTotalAdditionalFeesSet", moneyFields),
	gql.Object("currentTotalDiscountsSet", moneyFields),
	gql.Object("currentTotalDutiesSet", moneyFields),
	gql.Object("currentTotalPriceSet", moneyFields),
	gql.Object("currentTotalTaxSet", moneyFields),
	gql.Object("totalPriceSet", moneyFields),
	gql.Object("merchantOfRecordApp", "id", "name"),
	"name", "note",
	gql.Object("customAttributes", "key", "value"),
	"poNumber", "statusPageUrl",
	gql.Object("originalTotalAdditionalFeesSet", moneyFields),
	gql.Object("originalTotalDutiesSet", moneyFields),
	"paymentGatewayNames", "phone", "presentmentCurrencyCode", "processedAt", "refundable",
	gql.Object("refunds", "id", "note", "createdAt"),
	"sourceIdentifier", "sourceName", "registeredSourceUrl",
	gql.Object("subtotalPriceSet", moneyFields),
	"tags", "taxExempt",
	gql.Object("taxLines", gql.Object("priceSet", moneyFields), "channelLiable", "rate", "ratePercentage", "source", "title"),
	"taxesIncluded", "test",
	gql.Object("totalDiscountsSet", moneyFields),
	gql.Object("totalOutstandingSet", moneyFields),
	gql.Object("totalShippingPriceSet", moneyFields),
	gql.Object("totalTaxSet", moneyFields),
	gql.Object("totalTipReceivedSet", moneyFields),
	"totalWeight",
	gql.Edges("shippingLines($PER_PAGE)",
		"carrierIdentifier", "code",
		gql.Object("currentDiscountedPriceSet", moneyFields),
		"custom", "deliveryCategory", "id", "phone",
		gql.Object("originalPriceSet", moneyFields),
		gql.Object("requestedFulfillmentService", "handle"),
		"source",
		gql.Object("taxLines", "title"),
		"title",
	),
)

func (o orders) BuildQuery(rc *request.Context) (*gql.Document, error) {
	q := queryParams(rc)
	if id := rc.ResourceID(); id != "" {
		return document(gql.Fields(gql.Object("order($ID)", orderFields)), map[string]string{
			"$ID":       gid.IDClause(id, "Order"),
			"$PER_PAGE": "first: 250",
		}, "", nil)
	}
	if rc.HasSuffix("count") {
		return countDocument("ordersCount", q)
	}

	header := "orders($PER_PAGE)"
	filters := filtersAndSort(q)
	if filters != "" {
		header = "orders($PER_PAGE, $FILTERS)"
	}
	fs := gql.Fields(gql.Object(header, gql.Object("edges", gql.Object("node", orderFields)), pageInfo))
	return document(fs, map[string]string{
		"$PER_PAGE": perPage(limit(q, 50, 250)),
		"$FILTERS":  filters,
	}, "", nil)
}

func (o orders) BuildMutation(rc *request.Context) (*gql.Document, error) {
	switch {
	case rc.HasSuffix("cancel"):
		return o.cancel(rc)
	case rc.HasSuffix("close"):
		return o.closeOrOpen(rc, "orderClose", "CloseOrder", "OrderCloseInput")
	case rc.HasSuffix("open"):
		return o.closeOrOpen(rc, "orderOpen", "OpenOrder", "OrderOpenInput")
	case rc.HasSuffix("delete"):
		return o.delete(rc)
	case rc.Suffix() != "":
		return nil, unsupported(canonical.Orders, rc, "unknown order action")
	case rc.ResourceID() != "":
		return o.update(rc)
	default:
		return nil, unsupported(canonical.Orders, rc, "Creating an order is currently not implemented")
	}
}

func (orders) cancel(rc *request.Context) (*gql.Document, error) {
	in := rc.Record("order")
	reason := upper(in["reason"])
	if reason == "" {
		reason = "OTHER"
	}
	fs := gql.Fields(gql.Object("orderCancel($INPUT)", gql.Object("orderCancelUserErrors", "field", "message")))
	return document(fs,
		map[string]string{"$INPUT": "orderId: $id, reason: $reason, refund: $refund, restock: $restock, notifyCustomer: $notifyCustomer"},
		"mutation CancelOrder($id: ID!, $reason: OrderCancelReason!, $refund: Boolean!, $restock: Boolean!, $notifyCustomer: Boolean)",
		map[string]any{
			"id":             rc.GlobalResourceID("Order"),
			"reason":         reason,
			"refund":         boolOr(in["refund"], false),
			"restock":        boolOr(in["restock"], false),
			"notifyCustomer": boolOr(in["email"], false),
		})
}

func (orders) closeOrOpen(rc *request.Context, op, name, inputType string) (*gql.Document, error) {
	fs := gql.Fields(gql.Object(op+"($INPUT)", gql.Object("order", "id", "closed", "closedAt"), userErrors))
	return document(fs,
		map[string]string{"$INPUT": "input: $input"},
		"mutation "+name+"($input: "+inputType+"!)",
		map[string]any{"input": map[string]any{"id": rc.GlobalResourceID("Order")}})
}

func (orders) delete(rc *request.Context) (*gql.Document, error) {
	fs := gql.Fields(gql.Object("orderDelete($INPUT)", "deletedId", userErrors))
	return document(fs,
		map[string]string{"$INPUT": "orderId: $orderId"},
		"mutation DeleteOrder($orderId: ID!)",
		map[string]any{"orderId": rc.GlobalResourceID("Order")})
}

var orderInputFields = map[string]string{
	"id":               "id",
	"customAttributes": "customAttributes",
	"email":            "email",
	"metafields":       "metafields",
	"note":             "note",
	"phone":            "phone",
	"poNumber":         "poNumber",
	"shippingAddress":  "shippingAddress",
	"tags":             "tags",
}

func (orders) update(rc *request.Context) (*gql.Document, error) {
	in := asRecord(canonical.CamelKeys(rc.Record("order")))
	in["id"] = rc.GlobalResourceID("Order")
	if attrs, ok := in["noteAttributes"]; ok {
		var custom []any
		for _, a := range asList(attrs) {
			rec := asRecord(a)
			custom = append(custom, map[string]any{"key": rec["name"], "value": str(rec["value"])})
		}
		in["customAttributes"] = custom
	}
	if tags, ok := in["tags"]; ok {
		in["tags"] = tagList(tags)
	}
	if addr, ok := in["shippingAddress"].(map[string]any); ok {
		in["shippingAddress"] = mailingAddressInput(addr)
	}
	fs := gql.Fields(gql.Object("orderUpdate($INPUT)", gql.Object("order", orderFields), userErrors))
	return document(fs,
		map[string]string{"$INPUT": "input: $input", "$PER_PAGE": "first: 250"},
		"mutation UpdateOrder($input: OrderInput!)",
		map[string]any{"input": pick(in, orderInputFields)})
}

var mailingAddressFields = map[string]string{
	"address1":     "address1",
	"address2":     "address2",
	"city":         "city",
	"company":      "company",
	"countryCode":  "countryCode",
	"firstName":    "firstName",
	"lastName":     "lastName",
	"phone":        "phone",
	"provinceCode": "provinceCode",
	"zip":          "zip",
}

// mailingAddressInput expects camelCased REST address keys.
func mailingAddressInput(addr map[string]any) map[string]any {
	return pick(addr, mailingAddressFields)
}

func countDocument(op string, q map[string]any) (*gql.Document, error) {
	header := op
	filters := filterClause(q)
	if filters != "" {
		header = op + "($FILTERS)"
	}
	return document(gql.Fields(gql.Object(header, "count", "precision")), map[string]string{"$FILTERS": filters}, "", nil)
}

func perPage(n int) string {
	return "first: " + str(n)
}
