package strategy

import (
	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
)

type fulfillmentServices struct{}

func (fulfillmentServices) Resource() canonical.Resource { return canonical.FulfillmentServices }

var fulfillmentServiceFields = gql.Fields(
	"id", "callbackUrl", "fulfillmentOrdersOptIn", "permitsSkuSharing", "handle",
	"inventoryManagement", "trackingSupport", "serviceName",
	gql.Object("location", "id"),
)

func (fulfillmentServices) BuildQuery(rc *request.Context) (*gql.Document, error) {
	if id := rc.ResourceID(); id != "" {
		fs := gql.Fields(gql.Object("fulfillmentService($ID)", fulfillmentServiceFields))
		return document(fs, map[string]string{"$ID": gid.IDClause(id, "FulfillmentService")}, "", nil)
	}
	return document(gql.Fields(gql.Object("shop", gql.Object("fulfillmentServices", fulfillmentServiceFields))), nil, "", nil)
}

func (fulfillmentServices) BuildMutation(rc *request.Context) (*gql.Document, error) {
	id := rc.GlobalResourceID("FulfillmentService")
	if rc.HasSuffix("delete") {
		fs := gql.Fields(gql.Object("fulfillmentServiceDelete($INPUT)", "deletedId", userErrors))
		return document(fs,
			map[string]string{"$INPUT": "id: $id"},
			"mutation DeleteFulfillmentService($id: ID!)",
			map[string]any{"id": id})
	}
	if rc.Suffix() != "" {
		return nil, unsupported(canonical.FulfillmentServices, rc, "unknown fulfillment service action")
	}

	in := rc.Record("fulfillment_service")
	vars := map[string]any{"name": in["name"]}
	if v, ok := in["callback_url"]; ok {
		vars["callbackUrl"] = v
	}
	if v, ok := in["tracking_support"]; ok {
		vars["trackingSupport"] = boolOr(v, false)
	}
	if v, ok := in["inventory_management"]; ok {
		vars["inventoryManagement"] = boolOr(v, false)
	}

	selection := gql.Fields(gql.Object("fulfillmentService", fulfillmentServiceFields), userErrors)
	if id != "" {
		vars["id"] = id
		return document(gql.Fields(gql.Object("fulfillmentServiceUpdate($INPUT)", selection)),
			map[string]string{"$INPUT": "id: $id, name: $name, callbackUrl: $callbackUrl, trackingSupport: $trackingSupport, inventoryManagement: $inventoryManagement"},
			"mutation UpdateFulfillmentService($id: ID!, $name: String, $callbackUrl: URL, $trackingSupport: Boolean, $inventoryManagement: Boolean)",
			vars)
	}
	if str(vars["name"]) == "" {
		return nil, unsupported(canonical.FulfillmentServices, rc, "a fulfillment service needs a name")
	}
	return document(gql.Fields(gql.Object("fulfillmentServiceCreate($INPUT)", selection)),
		map[string]string{"$INPUT": "name: $name, callbackUrl: $callbackUrl, trackingSupport: $trackingSupport, inventoryManagement: $inventoryManagement"},
		"mutation CreateFulfillmentService($name: String!, $callbackUrl: URL, $trackingSupport: Boolean, $inventoryManagement: Boolean)",
		vars)
}
