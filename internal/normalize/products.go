package normalize

import (
	"math"
	"strings"
)

func products(data map[string]any) any {
	if p, ok := mutationPayload(data, "product_delete"); ok {
		return p
	}
	if _, ok := data["publishable_publish"]; ok {
		return envelope(data)
	}
	if list, ok := data["products"]; ok {
		return mapEach(list, formatProduct)
	}
	if m, ok := data["product"].(map[string]any); ok {
		return formatProduct(m)
	}
	if p, ok := mutationPayload(data, "product_update", "product_create"); ok {
		if m, ok := p["product"].(map[string]any); ok {
			return formatProduct(m)
		}
	}
	return envelope(data)
}

func formatProduct(row map[string]any) map[string]any {
	out := copyMap(row)
	id := toInt(row["id"])

	variants := mapEach(row["variants"], func(v map[string]any) map[string]any {
		return formatVariant(v, id)
	})
	variantIDs := make([]any, 0, len(variants))
	for _, v := range variants {
		variantIDs = append(variantIDs, asMap(v)["id"])
	}

	var images []any
	for i, img := range asSlice(row["images"]) {
		m := asMap(img)
		if m == nil {
			continue
		}
		im := copyMap(m)
		imgID := toInt(m["id"])
		im["id"] = imgID
		im["admin_graphql_api_id"] = apiID(imgID, "ProductImage")
		im["product_id"] = id
		im["alt"] = m["alt_text"]
		im["position"] = int64(i + 1)
		im["created_at"] = nil
		im["updated_at"] = nil
		im["published_scope"] = "web"
		im["variant_ids"] = []any{}
		images = append(images, im)
	}
	if images == nil {
		images = []any{}
	}

	out["id"] = id
	out["admin_graphql_api_id"] = apiID(id, "Product")
	out["options"] = mapEach(row["options"], func(o map[string]any) map[string]any {
		opt := copyMap(o)
		opt["id"] = toInt(o["id"])
		opt["product_id"] = id
		return opt
	})
	out["images"] = images
	out["variants"] = variants
	out["image"] = nil
	if len(images) > 0 {
		first := copyMap(asMap(images[0]))
		first["variant_ids"] = variantIDs
		out["image"] = first
	}
	out["tags"] = joinTags(row["tags"])
	out["status"] = lowerOrNil(row["status"])
	out["published_scope"] = "web"
	return out
}

func variants(data map[string]any) any {
	if p, ok := mutationPayload(data, "product_variants_bulk_create", "product_variants_bulk_update"); ok {
		productID := toInt(get(p, "product.id"))
		return mapEach(p["product_variants"], func(v map[string]any) map[string]any {
			return formatVariant(v, productID)
		})
	}
	if _, ok := data["product_variants_bulk_delete"]; ok {
		return []any{}
	}
	if product, ok := data["product"].(map[string]any); ok {
		productID := toInt(product["id"])
		return mapEach(product["variants"], func(v map[string]any) map[string]any {
			return formatVariant(v, productID)
		})
	}
	if m, ok := data["node"].(map[string]any); ok {
		return formatVariant(m, 0)
	}
	return envelope(data)
}

var weightUnits = map[string]string{
	"KILOGRAMS": "kg",
	"GRAMS":     "g",
	"POUNDS":    "lb",
	"OUNCES":    "oz",
}

var gramsPer = map[string]float64{
	"KILOGRAMS": 1000,
	"GRAMS":     1,
	"POUNDS":    453.59237,
	"OUNCES":    28.349523125,
}

// formatVariant reshapes a variant node. productID is used when the node
// does not select its product.
func formatVariant(row map[string]any, productID int64) map[string]any {
	out := copyMap(row)
	id := toInt(row["id"])
	out["id"] = id
	out["admin_graphql_api_id"] = apiID(id, "ProductVariant")

	out["product_id"] = productID
	if pid := get(row, "product.id"); pid != nil {
		out["product_id"] = toInt(pid)
	}

	var service any
	if levels := asSlice(get(row, "inventory_item.inventory_levels")); len(levels) > 0 {
		service = get(asMap(levels[0]), "location.fulfillment_service.handle")
	}
	if service == nil {
		service = "manual"
	}
	out["fulfillment_service"] = service
	out["inventory_item_id"] = intOrNil(get(row, "inventory_item.id"))
	out["inventory_management"] = nil
	if tracked, _ := get(row, "inventory_item.tracked").(bool); tracked {
		out["inventory_management"] = "shopify"
	}
	out["image_id"] = intOrNil(get(row, "image.id"))
	out["old_inventory_quantity"] = row["inventory_quantity"]
	out["inventory_policy"] = lowerOrNil(row["inventory_policy"])
	out["requires_shipping"] = get(row, "inventory_item.requires_shipping")

	unit := strings.ToUpper(str(get(row, "inventory_item.measurement.weight.unit")))
	value := toFloat(get(row, "inventory_item.measurement.weight.value"))
	out["weight"] = value
	out["weight_unit"] = nil
	if u, ok := weightUnits[unit]; ok {
		out["weight_unit"] = u
	}
	out["grams"] = int64(math.Round(value * gramsPer[unit]))

	for i := 1; i <= 3; i++ {
		out["option"+str(i)] = nil
	}
	for i, o := range asSlice(row["selected_options"]) {
		if i >= 3 {
			break
		}
		out["option"+str(i+1)] = asMap(o)["value"]
	}
	return out
}
