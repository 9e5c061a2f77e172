package strategy

import (
	"errors"
	"time"

	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
)

// now is replaced in tests.
var now = time.Now

// ErrNoPublications is returned when a new product cannot be published
// because the shop has no publication channels.
var ErrNoPublications = errors.New("No publications available for Store")

type products struct{}

func (products) Resource() canonical.Resource { return canonical.Products }

var productFields = gql.Fields(
	"id", "handle", "title", "bodyHtml", "vendor", "productType", "createdAt", "updatedAt",
	"publishedAt", "templateSuffix", "tags", "status",
	gql.Object("options", "id", "name", "position", "values"),
	gql.Edges("variants($PER_PAGE)", variantFields),
	gql.Edges("images($PER_PAGE)", "id", "src", "altText", "width", "height"),
)

func (products) BuildQuery(rc *request.Context) (*gql.Document, error) {
	q := queryParams(rc)
	if id := rc.ResourceID(); id != "" {
		return document(gql.Fields(gql.Object("product($ID)", productFields)), map[string]string{
			"$ID":       gid.IDClause(id, "Product"),
			"$PER_PAGE": "first: 250",
		}, "", nil)
	}
	if rc.HasSuffix("count") {
		return countDocument("productsCount", q)
	}

	header := "products($PER_PAGE)"
	filters := filtersAndSort(q)
	if filters != "" {
		header = "products($PER_PAGE, $FILTERS)"
	}
	fs := gql.Fields(gql.Object(header, gql.Object("edges", gql.Object("node", productFields)), pageInfo))
	return document(fs, map[string]string{
		"$PER_PAGE": perPage(limit(q, 30, 30)),
		"$FILTERS":  filters,
	}, "", nil)
}

func (p products) BuildMutation(rc *request.Context) (*gql.Document, error) {
	switch {
	case rc.HasSuffix("delete"):
		return p.delete(rc)
	case rc.HasSuffix("publish"):
		return p.publish(rc)
	case rc.Suffix() != "":
		return nil, unsupported(canonical.Products, rc, "unknown product action")
	default:
		return p.save(rc)
	}
}

func (products) delete(rc *request.Context) (*gql.Document, error) {
	fs := gql.Fields(gql.Object("productDelete($INPUT)", "deletedProductId", userErrors))
	return document(fs,
		map[string]string{"$INPUT": "input: { id: $id }"},
		"mutation DeleteProduct($id: ID!)",
		map[string]any{"id": rc.GlobalResourceID("Product")})
}

func (products) publish(rc *request.Context) (*gql.Document, error) {
	productID, err := rc.FindIDInChain(string(canonical.Products))
	if err != nil {
		if productID = rc.ResourceID(); productID == "" {
			return nil, err
		}
	}
	in := asRecord(rc.PayloadSection(""))
	publicationID := str(in["publication_id"])
	if publicationID == "" {
		return nil, ErrNoPublications
	}
	publishDate := str(in["publish_date"])
	if publishDate == "" {
		publishDate = now().UTC().Format(time.RFC3339)
	}
	fs := gql.Fields(gql.Object("publishablePublish($INPUT)", userErrors))
	return document(fs,
		map[string]string{"$INPUT": "id: $id, input: {publicationId: $publicationId, publishDate: $publishDate}"},
		"mutation PublishProduct($id: ID!, $publicationId: ID!, $publishDate: DateTime!)",
		map[string]any{
			"id":            gid.ToGlobalID(productID, "Product"),
			"publicationId": gid.ToGlobalID(publicationID, "Publication"),
			"publishDate":   publishDate,
		})
}

var productInputFields = map[string]string{
	"id":                     "id",
	"category":               "category",
	"claimOwnership":         "claimOwnership",
	"collectionsToJoin":      "collectionsToJoin",
	"collectionsToLeave":     "collectionsToLeave",
	"combinedListingRole":    "combinedListingRole",
	"bodyHtml":               "descriptionHtml",
	"giftCard":               "giftCard",
	"giftCardTemplateSuffix": "giftCardTemplateSuffix",
	"handle":                 "handle",
	"metafields":             "metafields",
	"options":                "productOptions",
	"productType":            "productType",
	"redirectNewHandle":      "redirectNewHandle",
	"requiresSellingPlan":    "requiresSellingPlan",
	"seo":                    "seo",
	"status":                 "status",
	"tags":                   "tags",
	"templateSuffix":         "templateSuffix",
	"title":                  "title",
	"vendor":                 "vendor",
}

func (products) save(rc *request.Context) (*gql.Document, error) {
	header := "productCreate($INPUT)"
	if rc.ResourceID() != "" {
		header = "productUpdate($INPUT)"
	}
	fs := gql.Fields(gql.Object(header, gql.Object("product", productFields), userErrors))
	return document(fs,
		map[string]string{"$INPUT": "input: $input", "$PER_PAGE": "first: 250"},
		"mutation SaveProduct($input: ProductInput!)",
		map[string]any{"input": productInput(rc)})
}

func productInput(rc *request.Context) map[string]any {
	in := asRecord(canonical.CamelKeys(rc.Record("product")))
	update := rc.ResourceID() != ""
	if update {
		in["id"] = rc.GlobalResourceID("Product")
		// product options cannot be changed through productUpdate
		delete(in, "options")
	} else if opts := asList(in["options"]); len(opts) > 0 {
		shaped := make([]any, 0, len(opts))
		for _, o := range opts {
			opt := asRecord(o)
			values := make([]any, 0)
			for _, v := range asList(opt["values"]) {
				values = append(values, map[string]any{"name": v})
			}
			if vs, ok := opt["values"].([]string); ok {
				for _, v := range vs {
					values = append(values, map[string]any{"name": v})
				}
			}
			shapedOpt := map[string]any{"name": opt["name"], "values": values}
			if pos, ok := opt["position"]; ok {
				shapedOpt["position"] = pos
			}
			shaped = append(shaped, shapedOpt)
		}
		in["options"] = shaped
	}
	if tags, ok := in["tags"]; ok {
		in["tags"] = tagList(tags)
	}
	if status := upper(in["status"]); status != "" {
		in["status"] = status
	} else if !update {
		in["status"] = "ACTIVE"
	}
	return pick(in, productInputFields)
}

// Follow-up step names for variant saves. Variants that already carry an id
// are updated in their own batch, ahead of the ones being created.
const (
	StepVariantUpdates = "variant_updates"
	StepVariants       = "variants"
)

// FollowUps saves the product's variants and, for a new product, publishes
// it to the shop's first publication.
func (products) FollowUps(rc *request.Context, primary any) ([]PendingOperation, error) {
	if !rc.IsMutation() || rc.Suffix() != "" {
		return nil, nil
	}
	productID := gid.FromGlobalID(str(asRecord(primary)["id"]))
	if productID == "" {
		return nil, errors.New("saved product carries no id")
	}
	chain := []request.Hop{{Resource: string(canonical.Products), ID: productID}}

	var ops []PendingOperation
	product := rc.Record("product")
	existing, added := splitVariants(withOptionNames(asList(product["variants"]), asList(product["options"])))
	if len(existing) > 0 {
		ops = append(ops, PendingOperation{
			Step:     StepVariantUpdates,
			Resource: canonical.Variants,
			Mutation: true,
			Chain:    chain,
			Payload:  map[string]any{"variants": existing},
		})
	}
	if len(added) > 0 {
		ops = append(ops, PendingOperation{
			Step:     StepVariants,
			Resource: canonical.Variants,
			Mutation: true,
			Chain:    chain,
			Payload:  map[string]any{"variants": added},
		})
	}
	if rc.ResourceID() != "" {
		return ops, nil
	}

	ops = append(ops,
		PendingOperation{Step: "publications", Resource: canonical.Publications},
		PendingOperation{
			Step:     "publish",
			Resource: canonical.Products,
			Mutation: true,
			Chain:    chain,
			Suffix:   "publish",
			Bind: func(prior []any) (any, error) {
				pubs := asList(prior[len(prior)-1])
				if len(pubs) == 0 {
					return nil, ErrNoPublications
				}
				return map[string]any{"publication_id": asRecord(pubs[0])["id"]}, nil
			},
		},
	)
	return ops, nil
}

// withOptionNames copies each variant, adding option{N}_name from the
// product option at position N.
func withOptionNames(variants, options []any) []any {
	names := map[int]string{}
	for i, o := range options {
		opt := asRecord(o)
		pos := limit(map[string]any{"limit": opt["position"]}, i+1, 0)
		if name := str(opt["name"]); name != "" {
			names[pos] = name
		}
	}
	out := make([]any, 0, len(variants))
	for _, v := range variants {
		src := asRecord(v)
		cp := make(map[string]any, len(src)+len(names))
		for k, val := range src {
			cp[k] = val
		}
		for pos := 1; pos <= 3; pos++ {
			if name, ok := names[pos]; ok {
				cp["option"+str(pos)+"_name"] = name
			}
		}
		out = append(out, cp)
	}
	return out
}

func splitVariants(variants []any) (existing, added []any) {
	for _, v := range variants {
		if str(asRecord(v)["id"]) != "" {
			existing = append(existing, v)
		} else {
			added = append(added, v)
		}
	}
	return existing, added
}
