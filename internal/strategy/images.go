package strategy

import (
	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
)

type images struct{}

func (images) Resource() canonical.Resource { return canonical.Images }

var imageDetail = gql.Fields("url", "altText", "width", "height")

var mediaImageFields = gql.Fields("id", "createdAt", "updatedAt", "alt", gql.Object("image", imageDetail))

var productImagesFields = gql.Fields(
	"id",
	gql.Nodes("media($COUNT)", "id", gql.On("MediaImage", mediaImageFields)),
	gql.Nodes("images($COUNT)", "id", imageDetail),
	gql.Edges("variants($COUNT)", "id", gql.Object("image", "id", imageDetail)),
)

func (images) BuildQuery(rc *request.Context) (*gql.Document, error) {
	id := rc.ResourceID()
	if id == "" {
		productID, err := rc.FindIDInChain(string(canonical.Products))
		if err != nil {
			return nil, unsupported(canonical.Images, rc, "specify a parent product or an image id")
		}
		fs := gql.Fields(gql.Object("product($RESOURCE_ID)", productImagesFields))
		return document(fs, map[string]string{
			"$RESOURCE_ID": gid.IDClause(productID, "Product"),
			"$COUNT":       perPage(limit(queryParams(rc), 30, 250)),
		}, "", nil)
	}
	fs := gql.Fields(gql.Object("node($RESOURCE_ID)", gql.On("MediaImage", mediaImageFields)))
	return document(fs, map[string]string{"$RESOURCE_ID": gid.IDClause(id, "MediaImage")}, "", nil)
}

var mediaSummary = gql.Fields("alt", "mediaContentType", "status", gql.On("MediaImage", "id", gql.Object("image", imageDetail)))

func (i images) BuildMutation(rc *request.Context) (*gql.Document, error) {
	switch {
	case rc.HasSuffix("delete"):
		return i.delete(rc)
	case rc.Suffix() != "":
		return nil, unsupported(canonical.Images, rc, "unknown image action")
	case rc.ResourceID() != "":
		return i.update(rc)
	default:
		return i.create(rc)
	}
}

func (images) delete(rc *request.Context) (*gql.Document, error) {
	productID, err := rc.FindIDInChain(string(canonical.Products))
	if err != nil {
		return nil, err
	}
	fs := gql.Fields(gql.Object("productDeleteMedia($INPUT)",
		"deletedMediaIds", "deletedProductImageIds",
		gql.Object("mediaUserErrors", "field", "message"),
		gql.Object("product", "id", "title", gql.Nodes("media($COUNT)", "alt", "mediaContentType", "status")),
	))
	return document(fs,
		map[string]string{"$INPUT": "mediaIds: [$mediaId], productId: $productId", "$COUNT": "first: 30"},
		"mutation DeleteMediaImage($mediaId: ID!, $productId: ID!)",
		map[string]any{
			"mediaId":   rc.GlobalResourceID("MediaImage"),
			"productId": gid.ToGlobalID(productID, "Product"),
		})
}

func (images) update(rc *request.Context) (*gql.Document, error) {
	in := rc.Record("image")
	file := map[string]any{"id": rc.GlobalResourceID("MediaImage")}
	if alt, ok := in["alt"]; ok {
		file["alt"] = alt
	}
	if src := str(in["src"]); src != "" {
		file["originalSource"] = src
	}
	fs := gql.Fields(gql.Object("fileUpdate($INPUT)",
		gql.Object("files", gql.On("MediaImage", mediaImageFields)),
		userErrors,
	))
	return document(fs,
		map[string]string{"$INPUT": "files: $files"},
		"mutation UpdateMediaImage($files: [FileUpdateInput!]!)",
		map[string]any{"files": []any{file}})
}

func (images) create(rc *request.Context) (*gql.Document, error) {
	productID, err := rc.FindIDInChain(string(canonical.Products))
	if err != nil {
		return nil, err
	}
	in := rc.Record("image")
	src := str(in["src"])
	if src == "" {
		return nil, unsupported(canonical.Images, rc, "creating an image requires a src url")
	}
	media := map[string]any{"originalSource": src, "mediaContentType": "IMAGE"}
	if alt, ok := in["alt"]; ok {
		media["alt"] = alt
	}
	fs := gql.Fields(gql.Object("productCreateMedia($INPUT)",
		gql.Object("media", mediaSummary),
		gql.Object("mediaUserErrors", "field", "message"),
	))
	return document(fs,
		map[string]string{"$INPUT": "productId: $productId, media: $media"},
		"mutation CreateProductMedia($productId: ID!, $media: [CreateMediaInput!]!)",
		map[string]any{"productId": gid.ToGlobalID(productID, "Product"), "media": []any{media}})
}
