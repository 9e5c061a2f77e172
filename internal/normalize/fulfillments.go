package normalize

import "strings"

func fulfillmentOrders(data map[string]any) any {
	if order, ok := data["order"].(map[string]any); ok {
		orderID := toInt(order["id"])
		return mapEach(order["fulfillment_orders"], func(fo map[string]any) map[string]any {
			return formatFulfillmentOrder(fo, orderID)
		})
	}
	if m, ok := data["fulfillment_order"].(map[string]any); ok {
		return formatFulfillmentOrder(m, nil)
	}
	for op, v := range data {
		if !strings.HasPrefix(op, "fulfillment_order_") {
			continue
		}
		p := withoutErrors(asMap(v))
		for _, key := range []string{"moved_fulfillment_order", "fulfillment_order"} {
			if m, ok := p[key].(map[string]any); ok {
				return formatFulfillmentOrder(m, nil)
			}
		}
		return p
	}
	return envelope(data)
}

func formatFulfillmentOrder(row map[string]any, orderID any) map[string]any {
	out := copyMap(row)
	id := toInt(row["id"])
	out["id"] = id
	out["admin_graphql_api_id"] = apiID(id, "FulfillmentOrder")
	out["shop_id"] = nil
	out["order_id"] = orderID
	out["assigned_location_id"] = nil
	out["request_status"] = lowerOrNil(row["request_status"])
	out["status"] = lowerOrNil(row["status"])

	actions := []any{}
	for _, a := range asSlice(row["supported_actions"]) {
		if s := lowerOrNil(asMap(a)["action"]); s != nil {
			actions = append(actions, s)
		}
	}
	out["supported_actions"] = actions

	if _, ok := row["line_items"]; ok {
		out["line_items"] = mapEach(row["line_items"], func(li map[string]any) map[string]any {
			item := copyMap(li)
			total := toInt(li["total_quantity"])
			item["id"] = toInt(li["id"])
			item["fulfillment_order_id"] = id
			item["shop_id"] = nil
			item["quantity"] = total
			item["line_item_id"] = intOrNil(get(li, "line_item.id"))
			item["fulfillable_quantity"] = total - toInt(li["remaining_quantity"])
			item["variant_id"] = intOrNil(get(li, "line_item.variant.id"))
			item["inventory_item_id"] = intOrNil(li["inventory_item_id"])
			return item
		})
	}
	return out
}

func fulfillments(data map[string]any) any {
	if order, ok := data["order"].(map[string]any); ok {
		return mapEach(order["fulfillments"], formatFulfillment)
	}
	if m, ok := data["fulfillment"].(map[string]any); ok {
		return formatFulfillment(m)
	}
	if p, ok := mutationPayload(data, "fulfillment_create", "fulfillment_create_v2", "fulfillment_cancel", "fulfillment_tracking_info_update"); ok {
		if m, ok := p["fulfillment"].(map[string]any); ok {
			return formatFulfillment(m)
		}
		return p
	}
	return envelope(data)
}

func formatFulfillment(row map[string]any) map[string]any {
	out := copyMap(row)
	id := toInt(row["id"])
	out["id"] = id
	out["admin_graphql_api_id"] = apiID(id, "Fulfillment")
	out["order_id"] = intOrNil(get(row, "order.id"))
	out["location_id"] = intOrNil(get(row, "location.id"))
	out["status"] = lowerOrNil(row["status"])
	out["shipment_status"] = lowerOrNil(row["display_status"])

	numbers, urls := []any{}, []any{}
	out["tracking_company"], out["tracking_number"], out["tracking_url"] = nil, nil, nil
	for i, t := range asSlice(row["tracking_info"]) {
		info := asMap(t)
		if i == 0 {
			out["tracking_company"] = info["company"]
			out["tracking_number"] = info["number"]
			out["tracking_url"] = info["url"]
		}
		if n := info["number"]; n != nil {
			numbers = append(numbers, n)
		}
		if u := info["url"]; u != nil {
			urls = append(urls, u)
		}
	}
	out["tracking_numbers"] = numbers
	out["tracking_urls"] = urls

	out["line_items"] = mapEach(row["fulfillment_line_items"], func(fli map[string]any) map[string]any {
		li := asMap(fli["line_item"])
		return map[string]any{
			"id":                   intOrNil(li["id"]),
			"admin_graphql_api_id": apiID(li["id"], "LineItem"),
			"title":                li["title"],
			"variant_title":        li["variant_title"],
			"sku":                  li["sku"],
			"variant_id":           intOrNil(get(li, "variant.id")),
			"quantity":             toInt(fli["quantity"]),
		}
	})
	delete(out, "fulfillment_line_items")
	return out
}

func fulfillmentServices(data map[string]any) any {
	if shop, ok := data["shop"].(map[string]any); ok {
		return mapEach(shop["fulfillment_services"], formatFulfillmentService)
	}
	if m, ok := data["fulfillment_service"].(map[string]any); ok {
		return formatFulfillmentService(m)
	}
	if p, ok := mutationPayload(data, "fulfillment_service_create", "fulfillment_service_update"); ok {
		if m, ok := p["fulfillment_service"].(map[string]any); ok {
			return formatFulfillmentService(m)
		}
		return p
	}
	return envelope(data)
}

func formatFulfillmentService(row map[string]any) map[string]any {
	out := copyMap(row)
	id := toInt(row["id"])
	out["id"] = id
	out["admin_graphql_api_id"] = apiID(id, "FulfillmentService")
	out["name"] = row["service_name"]
	out["location_id"] = intOrNil(get(row, "location.id"))
	out["provider_id"] = nil
	out["requires_shipping_method"] = true
	out["format"] = "json"
	return out
}
