package normalize

import "shopbridge/internal/webhook"

func images(data map[string]any) any {
	if product, ok := data["product"].(map[string]any); ok {
		productID := toInt(product["id"])
		byURL := map[string][]any{}
		for _, v := range asSlice(product["variants"]) {
			variant := asMap(v)
			if url := str(get(variant, "image.url")); url != "" {
				byURL[url] = append(byURL[url], toInt(variant["id"]))
			}
		}
		var out []any
		for _, m := range asSlice(product["media"]) {
			media := asMap(m)
			if media == nil || media["image"] == nil {
				continue
			}
			img := formatImage(media, productID)
			img["position"] = int64(len(out) + 1)
			if ids, ok := byURL[str(img["src"])]; ok {
				img["variant_ids"] = ids
			}
			out = append(out, img)
		}
		if out == nil {
			out = []any{}
		}
		return out
	}
	if m, ok := data["node"].(map[string]any); ok {
		return formatImage(m, nil)
	}
	if p, ok := mutationPayload(data, "file_update"); ok {
		if files := asSlice(p["files"]); len(files) > 0 {
			return formatImage(asMap(files[0]), nil)
		}
		return p
	}
	if p, ok := mutationPayload(data, "product_create_media"); ok {
		return mapEach(p["media"], func(m map[string]any) map[string]any { return formatImage(m, nil) })
	}
	return envelope(data)
}

func formatImage(media map[string]any, productID any) map[string]any {
	id := toInt(media["id"])
	alt := media["alt"]
	if alt == nil {
		alt = get(media, "image.alt_text")
	}
	return map[string]any{
		"id":                   id,
		"admin_graphql_api_id": apiID(id, "MediaImage"),
		"product_id":           productID,
		"position":             nil,
		"alt":                  alt,
		"src":                  get(media, "image.url"),
		"width":                intOrNil(get(media, "image.width")),
		"height":               intOrNil(get(media, "image.height")),
		"created_at":           media["created_at"],
		"updated_at":           media["updated_at"],
		"variant_ids":          []any{},
	}
}

func webhooks(data map[string]any) any {
	if list, ok := data["webhook_subscriptions"]; ok {
		return mapEach(list, formatWebhook)
	}
	if m, ok := data["webhook_subscription"].(map[string]any); ok {
		return formatWebhook(m)
	}
	if p, ok := mutationPayload(data, "webhook_subscription_create", "webhook_subscription_update"); ok {
		if m, ok := p["webhook_subscription"].(map[string]any); ok {
			return formatWebhook(m)
		}
		return p
	}
	return envelope(data)
}

func formatWebhook(row map[string]any) map[string]any {
	out := copyMap(row)
	id := toInt(row["id"])
	out["id"] = id
	out["admin_graphql_api_id"] = apiID(id, "WebhookSubscription")
	out["address"] = row["callback_url"]
	out["topic"] = webhook.RESTTopic(str(row["topic"]))
	out["format"] = lowerOrNil(row["format"])
	fields := row["include_fields"]
	if fields == nil {
		fields = []any{}
	}
	out["fields"] = fields
	if ns := row["metafield_namespaces"]; ns == nil {
		out["metafield_namespaces"] = []any{}
	}
	out["api_version"] = get(row, "api_version.handle")
	delete(out, "callback_url")
	delete(out, "include_fields")
	return out
}

func publications(data map[string]any) any {
	format := func(row map[string]any) map[string]any {
		out := copyMap(row)
		id := toInt(row["id"])
		out["id"] = id
		out["admin_graphql_api_id"] = apiID(id, "Publication")
		return out
	}
	if list, ok := data["publications"]; ok {
		return mapEach(list, format)
	}
	if m, ok := data["publication"].(map[string]any); ok {
		return format(m)
	}
	return envelope(data)
}
