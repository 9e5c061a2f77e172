package strategy

import (
	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
)

type fulfillmentOrders struct{}

func (fulfillmentOrders) Resource() canonical.Resource { return canonical.FulfillmentOrders }

var fulfillmentOrderFields = gql.Fields(
	"id", "createdAt", "updatedAt",
	gql.Object("assignedLocation", "name", "address1", "address2", "city", "countryCode", "phone", "province", "zip"),
	"requestStatus", "status", "fulfillAt",
	gql.Object("supportedActions", "action"),
	gql.Object("destination", "id", "address1", "address2", "city", "company", "countryCode", "email",
		"firstName", "lastName", "phone", "province", "zip"),
	gql.Object("internationalDuties", "incoterm"),
	gql.Edges("lineItems($PER_PAGE)",
		"id", "totalQuantity", "remainingQuantity",
		gql.Object("lineItem", "id", gql.Object("variant", "id", "title")),
		"inventoryItemId",
	),
	gql.Object("fulfillmentHolds", "reason", "reasonNotes", "displayReason", "heldBy", "heldByRequestingApp"),
	"fulfillBy",
	gql.Object("deliveryMethod", "id", "methodType", "minDeliveryDateTime", "maxDeliveryDateTime"),
	gql.Edges("merchantRequests($PER_PAGE)", "id", "kind", "message", "requestOptions", "responseData", "sentAt"),
)

func (fulfillmentOrders) BuildQuery(rc *request.Context) (*gql.Document, error) {
	if id := rc.ResourceID(); id != "" {
		fs := gql.Fields(gql.Object("fulfillmentOrder($ID)", fulfillmentOrderFields))
		return document(fs, map[string]string{
			"$ID":       gid.IDClause(id, "FulfillmentOrder"),
			"$PER_PAGE": "first: 100",
		}, "", nil)
	}
	orderID, err := rc.FindIDInChain(string(canonical.Orders))
	if err != nil {
		return nil, err
	}
	fs := gql.Fields(gql.Object("order($ORDER_ID)", "id",
		gql.Object("fulfillmentOrders($PER_PAGE)", gql.Object("edges", gql.Object("node", fulfillmentOrderFields))),
	))
	return document(fs, map[string]string{
		"$ORDER_ID": gid.IDClause(orderID, "Order"),
		"$PER_PAGE": "first: 100",
	}, "", nil)
}

type fulfillmentOrderAction struct {
	op        string
	name      string
	args      string
	decl      string
	selection gql.FieldSet
	vars      func(in map[string]any) map[string]any
}

var foSummary = gql.Fields("id", "status", "requestStatus", "fulfillAt")

var fulfillmentOrderActions = map[string]fulfillmentOrderAction{
	"cancel": {
		op: "fulfillmentOrderCancel", name: "CancelFulfillmentOrder", args: "id: $id",
		selection: gql.Fields(gql.Object("fulfillmentOrder", foSummary), gql.Object("replacementFulfillmentOrder", foSummary)),
	},
	"close": {
		op: "fulfillmentOrderClose", name: "CloseFulfillmentOrder", args: "id: $id, message: $message",
		decl:      ", $message: String",
		selection: gql.Fields(gql.Object("fulfillmentOrder", foSummary)),
		vars:      func(in map[string]any) map[string]any { return map[string]any{"message": in["message"]} },
	},
	"open": {
		op: "fulfillmentOrderOpen", name: "OpenFulfillmentOrder", args: "id: $id",
		selection: gql.Fields(gql.Object("fulfillmentOrder", foSummary)),
	},
	"hold": {
		op: "fulfillmentOrderHold", name: "HoldFulfillmentOrder", args: "id: $id, fulfillmentHold: $fulfillmentHold",
		decl:      ", $fulfillmentHold: FulfillmentOrderHoldInput!",
		selection: gql.Fields(gql.Object("fulfillmentOrder", foSummary), gql.Object("remainingFulfillmentOrder", foSummary)),
		vars: func(in map[string]any) map[string]any {
			hold := asRecord(canonical.CamelKeys(asRecord(in["fulfillment_hold"])))
			if r := upper(hold["reason"]); r != "" {
				hold["reason"] = r
			}
			return map[string]any{"fulfillmentHold": hold}
		},
	},
	"release_hold": {
		op: "fulfillmentOrderReleaseHold", name: "ReleaseFulfillmentOrderHold", args: "id: $id",
		selection: gql.Fields(gql.Object("fulfillmentOrder", foSummary)),
	},
	"move": {
		op: "fulfillmentOrderMove", name: "MoveFulfillmentOrder", args: "id: $id, newLocationId: $newLocationId",
		decl: ", $newLocationId: ID!",
		selection: gql.Fields(
			gql.Object("movedFulfillmentOrder", foSummary),
			gql.Object("originalFulfillmentOrder", foSummary),
			gql.Object("remainingFulfillmentOrder", foSummary),
		),
		vars: func(in map[string]any) map[string]any {
			return map[string]any{"newLocationId": gid.ToGlobalID(str(in["new_location_id"]), "Location")}
		},
	},
	"reschedule": {
		op: "fulfillmentOrderReschedule", name: "RescheduleFulfillmentOrder", args: "id: $id, fulfillAt: $fulfillAt",
		decl:      ", $fulfillAt: DateTime!",
		selection: gql.Fields(gql.Object("fulfillmentOrder", foSummary)),
		vars:      func(in map[string]any) map[string]any { return map[string]any{"fulfillAt": in["new_fulfill_at"]} },
	},
	"fulfillment_request/accept": {
		op: "fulfillmentOrderAcceptFulfillmentRequest", name: "AcceptFulfillmentRequest", args: "id: $id, message: $message",
		decl:      ", $message: String",
		selection: gql.Fields(gql.Object("fulfillmentOrder", foSummary)),
		vars:      func(in map[string]any) map[string]any { return map[string]any{"message": in["message"]} },
	},
	"fulfillment_request/reject": {
		op: "fulfillmentOrderRejectFulfillmentRequest", name: "RejectFulfillmentRequest", args: "id: $id, message: $message, reason: $reason",
		decl:      ", $message: String, $reason: FulfillmentOrderRejectionReason",
		selection: gql.Fields(gql.Object("fulfillmentOrder", foSummary)),
		vars: func(in map[string]any) map[string]any {
			vars := map[string]any{"message": in["message"], "reason": nil}
			if r := upper(in["reason"]); r != "" {
				vars["reason"] = r
			}
			return vars
		},
	},
}

func (fulfillmentOrders) BuildMutation(rc *request.Context) (*gql.Document, error) {
	action, ok := fulfillmentOrderActions[rc.Suffix()]
	if !ok {
		return nil, unsupported(canonical.FulfillmentOrders, rc,
			"fulfillment orders support cancel, close, open, hold, release_hold, move, reschedule and fulfillment_request/accept|reject")
	}
	id := rc.GlobalResourceID("FulfillmentOrder")
	if id == "" {
		return nil, unsupported(canonical.FulfillmentOrders, rc, "a fulfillment order id is required")
	}

	vars := map[string]any{}
	if action.vars != nil {
		vars = action.vars(rc.Record("fulfillment_order"))
	}
	vars["id"] = id

	fs := gql.Fields(gql.Object(action.op+"($INPUT)", action.selection, userErrors))
	return document(fs,
		map[string]string{"$INPUT": action.args},
		"mutation "+action.name+"($id: ID!"+action.decl+")",
		vars)
}
