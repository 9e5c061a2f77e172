package strategy

import (
	"strings"

	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
)

type variants struct{}

func (variants) Resource() canonical.Resource { return canonical.Variants }

var variantFields = gql.Fields(
	"barcode", "compareAtPrice", "createdAt",
	gql.Object("selectedOptions", "name", "value"),
	gql.Object("inventoryItem",
		"id", "requiresShipping", "tracked",
		gql.Object("measurement", "id", gql.Object("weight", "unit", "value")),
		gql.Edges("inventoryLevels($PER_PAGE)",
			gql.Object("location", gql.Object("fulfillmentService", "id", "handle", "serviceName")),
		),
	),
	"id",
	gql.Object("image", "id"),
	gql.Object("product", "id"),
	"inventoryPolicy", "inventoryQuantity", "position", "price", "sku", "taxable", "title", "updatedAt",
)

func (variants) BuildQuery(rc *request.Context) (*gql.Document, error) {
	if id := rc.ResourceID(); id != "" {
		fs := gql.Fields(gql.Object("node($INPUT)", gql.On("ProductVariant", variantFields)))
		return document(fs, map[string]string{
			"$INPUT":    gid.IDClause(id, "ProductVariant"),
			"$PER_PAGE": "first: 250",
		}, "", nil)
	}
	productID, err := rc.FindIDInChain(string(canonical.Products))
	if err != nil {
		return nil, unsupported(canonical.Variants, rc, "You cannot get variants directly. Use the Products endpoint")
	}
	if rc.HasSuffix("count") {
		fs := gql.Fields(gql.Object("productVariantsCount($FILTERS)", "count", "precision"))
		return document(fs, map[string]string{"$FILTERS": `query: "product_id:` + gid.FromGlobalID(productID) + `"`}, "", nil)
	}
	q := queryParams(rc)
	fs := gql.Fields(gql.Object("product($ID)", "id",
		gql.Object("variants($LIST)", gql.Object("edges", gql.Object("node", variantFields)), pageInfo),
	))
	return document(fs, map[string]string{
		"$ID":       gid.IDClause(productID, "Product"),
		"$LIST":     perPage(limit(q, 50, 250)),
		"$PER_PAGE": "first: 250",
	}, "", nil)
}

func (v variants) BuildMutation(rc *request.Context) (*gql.Document, error) {
	productID, err := rc.FindIDInChain(string(canonical.Products))
	if err != nil {
		return nil, unsupported(canonical.Variants, rc, "Mutation not supported directly. Please use products")
	}
	productGID := gid.ToGlobalID(productID, "Product")

	if rc.HasSuffix("delete") {
		var ids []any
		if id := rc.ResourceID(); id != "" {
			ids = append(ids, gid.ToGlobalID(id, "ProductVariant"))
		}
		for _, rec := range variantRecords(rc) {
			if id := str(rec["id"]); id != "" {
				ids = append(ids, gid.ToGlobalID(id, "ProductVariant"))
			}
		}
		fs := gql.Fields(gql.Object("productVariantsBulkDelete($INPUT)", gql.Object("product", "id"), userErrors))
		return document(fs,
			map[string]string{"$INPUT": "productId: $productId, variantsIds: $variantsIds"},
			"mutation DeleteVariants($productId: ID!, $variantsIds: [ID!]!)",
			map[string]any{"productId": productGID, "variantsIds": ids})
	}
	if rc.Suffix() != "" {
		return nil, unsupported(canonical.Variants, rc, "unknown variant action")
	}

	records := variantRecords(rc)
	if len(records) == 0 {
		return nil, unsupported(canonical.Variants, rc, "no variants to save")
	}
	withID := 0
	inputs := make([]any, 0, len(records))
	for _, rec := range records {
		in := variantInput(rec)
		if _, ok := in["id"]; ok {
			withID++
		}
		inputs = append(inputs, in)
	}
	if withID > 0 && withID < len(inputs) {
		return nil, unsupported(canonical.Variants, rc, "save variants with and without ids in separate calls")
	}
	update := withID > 0

	op, name := "productVariantsBulkCreate", "CreateVariants"
	if update {
		op, name = "productVariantsBulkUpdate", "UpdateVariants"
	}
	fs := gql.Fields(gql.Object(op+"($INPUT)",
		gql.Object("product", "id"),
		gql.Object("productVariants", variantFields),
		userErrors,
	))
	return document(fs,
		map[string]string{"$INPUT": "productId: $productId, variants: $variants", "$PER_PAGE": "first: 250"},
		"mutation "+name+"($productId: ID!, $variants: [ProductVariantsBulkInput!]!)",
		map[string]any{"productId": productGID, "variants": inputs})
}

// variantRecords accepts {variants: [...]}, {variant: {...}}, a bare list or
// a bare record. A lone record inherits the resolved id.
func variantRecords(rc *request.Context) []map[string]any {
	p := rc.PayloadSection("variants")
	if m, ok := p.(map[string]any); ok {
		if inner, ok := m["variant"]; ok {
			p = inner
		}
	}
	var out []map[string]any
	for _, v := range asList(p) {
		if rec, ok := v.(map[string]any); ok && len(rec) > 0 {
			out = append(out, rec)
		}
	}
	if len(out) == 1 && out[0]["id"] == nil && len(rc.IDs()) > 0 {
		cp := make(map[string]any, len(out[0])+1)
		for k, v := range out[0] {
			cp[k] = v
		}
		cp["id"] = rc.IDs()[0]
		out[0] = cp
	}
	return out
}

var variantInputFields = map[string]string{
	"id":                  "id",
	"barcode":             "barcode",
	"compareAtPrice":      "compareAtPrice",
	"inventoryItem":       "inventoryItem",
	"inventoryPolicy":     "inventoryPolicy",
	"inventoryQuantities": "inventoryQuantities",
	"mediaId":             "mediaId",
	"mediaSrc":            "mediaSrc",
	"metafields":          "metafields",
	"optionValues":        "optionValues",
	"price":               "price",
	"requiresComponents":  "requiresComponents",
	"taxable":             "taxable",
	"taxCode":             "taxCode",
}

var weightUnits = map[string]string{
	"kg": "KILOGRAMS",
	"g":  "GRAMS",
	"lb": "POUNDS",
	"oz": "OUNCES",
}

func variantInput(rec map[string]any) map[string]any {
	in := asRecord(canonical.CamelKeys(rec))
	if id := str(in["id"]); id != "" {
		in["id"] = gid.ToGlobalID(id, "ProductVariant")
	} else {
		delete(in, "id")
	}

	var options []any
	for pos := 1; pos <= 3; pos++ {
		value := str(in["option"+str(pos)])
		if value == "" {
			continue
		}
		opt := map[string]any{"name": value}
		if name := str(in["option"+str(pos)+"Name"]); name != "" {
			opt["optionName"] = name
		}
		options = append(options, opt)
	}
	if len(options) > 0 {
		in["optionValues"] = options
	}

	item := asRecord(in["inventoryItem"])
	if sku := str(in["sku"]); sku != "" {
		item["sku"] = sku
	}
	if v, ok := in["requiresShipping"]; ok {
		item["requiresShipping"] = boolOr(v, true)
	}
	if mgmt, ok := in["inventoryManagement"]; ok {
		item["tracked"] = strings.EqualFold(str(mgmt), "shopify")
	}
	if cost := str(in["cost"]); cost != "" {
		item["cost"] = cost
	}
	if w := in["weight"]; w != nil {
		unit := weightUnits[strings.ToLower(str(in["weightUnit"]))]
		if unit == "" {
			unit = "KILOGRAMS"
		}
		item["measurement"] = map[string]any{"weight": map[string]any{"value": w, "unit": unit}}
	}
	if fs := str(in["fulfillmentServiceId"]); fs != "" {
		item["fulfillmentServiceId"] = gid.ToGlobalID(fs, "FulfillmentService")
	}
	if len(item) > 0 {
		in["inventoryItem"] = item
	}

	if policy := upper(in["inventoryPolicy"]); policy != "" {
		in["inventoryPolicy"] = policy
	}
	if img := str(in["imageId"]); img != "" {
		in["mediaId"] = gid.ToGlobalID(img, "MediaImage")
	}
	return pick(in, variantInputFields)
}
