package normalize

import (
	"strings"
)

func orders(data map[string]any) any {
	if list, ok := data["orders"]; ok {
		return mapEach(list, formatOrder)
	}
	if m, ok := data["order"].(map[string]any); ok {
		return formatOrder(m)
	}
	if p, ok := mutationPayload(data, "order_update", "order_close", "order_open"); ok {
		if m, ok := p["order"].(map[string]any); ok {
			return formatOrder(m)
		}
		return p
	}
	return envelope(data)
}

func formatAddress(addr any, customerID any) any {
	m, ok := addr.(map[string]any)
	if !ok {
		return addr
	}
	out := copyMap(m)
	if _, ok := m["id"]; ok {
		out["id"] = intOrNil(m["id"])
	}
	out["country_code"] = m["country_code_v2"]
	if customerID != nil {
		out["customer_id"] = customerID
		out["country_name"] = m["country"]
		out["default"] = true
	}
	return out
}

func formatCustomer(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := copyMap(m)
	id := toInt(m["id"])
	out["id"] = id
	out["admin_graphql_api_id"] = apiID(id, "Customer")
	out["currency"] = nil
	out["tags"] = joinTags(m["tags"])
	if _, ok := m["default_address"]; ok {
		out["default_address"] = formatAddress(m["default_address"], id)
	}
	if consent, ok := m["email_marketing_consent"].(map[string]any); ok {
		c := copyMap(consent)
		c["opt_in_level"] = lowerOrNil(consent["marketing_opt_in_level"])
		c["state"] = lowerOrNil(consent["marketing_state"])
		c["consent_updated_at"] = consent["consent_updated_at"]
		out["email_marketing_consent"] = c
	}
	return out
}

func formatLineItem(li map[string]any) map[string]any {
	out := copyMap(li)
	id := toInt(li["id"])
	out["id"] = id
	out["admin_graphql_api_id"] = apiID(id, "LineItem")
	out["fulfillable_quantity"] = toInt(li["quantity"]) - toInt(li["non_fulfillable_quantity"])
	out["fulfillment_service"] = get(li, "fulfillment_service.handle")
	out["gift_card"] = li["is_gift_card"]
	out["grams"] = nil
	out["price"] = amount(li, "original_unit_price_set")
	out["price_set"] = li["original_unit_price_set"]
	out["product_exists"] = li["product"] != nil
	out["product_id"] = intOrNil(get(li, "product.id"))
	out["properties"] = []any{}
	out["total_discount"] = amount(li, "total_discount_set")
	out["total_discount_set"] = li["total_discount_set"]
	out["variant_id"] = intOrNil(get(li, "variant.id"))
	out["variant_inventory_management"] = nil
	return out
}

func orderNumber(name any) any {
	s := strings.TrimPrefix(str(name), "#")
	if s == "" {
		return nil
	}
	return toInt(s)
}

// fulfillmentStatus maps the graph display status onto REST's values,
// where an unfulfilled order has no status.
func fulfillmentStatus(v any) any {
	s := lowerOrNil(v)
	switch s {
	case "unfulfilled":
		return nil
	case "partially_fulfilled":
		return "partial"
	}
	return s
}

func formatOrder(row map[string]any) map[string]any {
	id := toInt(row["id"])

	var noteAttributes []any
	for _, a := range asSlice(row["custom_attributes"]) {
		attr := asMap(a)
		noteAttributes = append(noteAttributes, map[string]any{"name": attr["key"], "value": attr["value"]})
	}
	if noteAttributes == nil {
		noteAttributes = []any{}
	}

	out := map[string]any{
		"admin_graphql_api_id":    apiID(id, "Order"),
		"app_id":                  intOrNil(get(row, "app.id")),
		"browser_ip":              row["client_ip"],
		"buyer_accepts_marketing": row["customer_accepts_marketing"],
		"currency":                row["currency_code"],
		"cart_token":              nil,
		"checkout_id":             nil,
		"checkout_token":          nil,
		"client_details": map[string]any{
			"accept_language": nil,
			"browser_height":  nil,
			"browser_width":   nil,
			"browser_ip":      row["client_ip"],
			"session_hash":    nil,
			"user_agent":      nil,
		},
		"company":                    nil,
		"contact_email":              row["email"],
		"current_subtotal_price":     amount(row, "current_subtotal_price_set"),
		"current_total_discounts":    amount(row, "current_total_discounts_set"),
		"current_total_duties_set":   row["current_total_duties_set"],
		"current_total_price":        amount(row, "current_total_price_set"),
		"current_total_tax":          amount(row, "current_total_tax_set"),
		"subtotal_price":             amount(row, "subtotal_price_set"),
		"total_discounts":            amount(row, "total_discounts_set"),
		"total_outstanding":          amount(row, "total_outstanding_set"),
		"total_price":                amount(row, "total_price_set"),
		"total_tax":                  amount(row, "total_tax_set"),
		"total_tip_received":         amount(row, "total_tip_received_set"),
		"total_shipping_price_set":   row["total_shipping_price_set"],
		"total_line_items_price":     amount(row, "subtotal_price_set"),
		"total_line_items_price_set": row["subtotal_price_set"],
		"device_id":                  nil,
		"user_id":                    nil,
		"landing_site":               nil,
		"landing_site_ref":           nil,
		"financial_status":           lowerOrNil(row["display_financial_status"]),
		"fulfillment_status":         fulfillmentStatus(row["display_fulfillment_status"]),
		"location_id":                nil,
		"merchant_of_record_app_id":  intOrNil(get(row, "merchant_of_record_app.id")),
		"note_attributes":            noteAttributes,
		"number":                     orderNumber(row["name"]),
		"order_number":               orderNumber(row["name"]),
		"order_status_url":           row["status_page_url"],
		"payment_terms":              nil,
		"presentment_currency":       row["presentment_currency_code"],
		"reference":                  nil,
		"referring_site":             nil,
		"source_url":                 nil,
		"token":                      nil,
	}
	for k, v := range row {
		out[k] = v
	}

	out["id"] = id
	out["total_weight"] = toInt(row["total_weight"])
	out["tags"] = joinTags(row["tags"])
	if _, ok := row["billing_address"]; ok {
		out["billing_address"] = formatAddress(row["billing_address"], nil)
	}
	if _, ok := row["shipping_address"]; ok {
		out["shipping_address"] = formatAddress(row["shipping_address"], nil)
	}
	if _, ok := row["customer"]; ok {
		out["customer"] = formatCustomer(row["customer"])
	}
	if _, ok := row["line_items"]; ok {
		out["line_items"] = mapEach(row["line_items"], formatLineItem)
	}
	if _, ok := row["cancel_reason"]; ok {
		out["cancel_reason"] = lowerOrNil(row["cancel_reason"])
	}
	return out
}
