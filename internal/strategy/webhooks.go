package strategy

import (
	"strings"

	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
	"shopbridge/internal/webhook"
)

type webhooks struct{}

func (webhooks) Resource() canonical.Resource { return canonical.Webhooks }

var webhookFields = gql.Fields(
	"id", "callbackUrl", "topic", "createdAt", "updatedAt", "format", "includeFields", "metafieldNamespaces",
	gql.Object("apiVersion", "handle", "displayName"),
)

func (webhooks) BuildQuery(rc *request.Context) (*gql.Document, error) {
	if id := rc.ResourceID(); id != "" {
		fs := gql.Fields(gql.Object("webhookSubscription($ID)", webhookFields))
		return document(fs, map[string]string{"$ID": gid.IDClause(id, "WebhookSubscription")}, "", nil)
	}
	q := queryParams(rc)
	var args []string
	if topic := str(q["topic"]); topic != "" {
		args = append(args, "topics: ["+webhook.GraphTopic(topic)+"]")
	}
	if rc.HasSuffix("count") {
		header := "webhookSubscriptionsCount"
		if len(args) > 0 {
			header = "webhookSubscriptionsCount($FILTERS)"
		}
		fs := gql.Fields(gql.Object(header, "count", "precision"))
		return document(fs, map[string]string{"$FILTERS": strings.Join(args, ", ")}, "", nil)
	}
	header := "webhookSubscriptions($PER_PAGE)"
	if len(args) > 0 {
		header = "webhookSubscriptions($PER_PAGE, $FILTERS)"
	}
	fs := gql.Fields(gql.Object(header, gql.Object("edges", gql.Object("node", webhookFields)), pageInfo))
	return document(fs, map[string]string{
		"$PER_PAGE": perPage(limit(q, 50, 250)),
		"$FILTERS":  strings.Join(args, ", "),
	}, "", nil)
}

func (webhooks) BuildMutation(rc *request.Context) (*gql.Document, error) {
	id := rc.GlobalResourceID("WebhookSubscription")
	if rc.HasSuffix("delete") {
		fs := gql.Fields(gql.Object("webhookSubscriptionDelete($INPUT)", "deletedWebhookSubscriptionId", userErrors))
		return document(fs,
			map[string]string{"$INPUT": "id: $id"},
			"mutation DeleteWebhook($id: ID!)",
			map[string]any{"id": id})
	}
	if rc.Suffix() != "" {
		return nil, unsupported(canonical.Webhooks, rc, "unknown webhook action")
	}

	in := rc.Record("webhook")
	sub := map[string]any{}
	if addr := str(in["address"]); addr != "" {
		sub["callbackUrl"] = addr
	}
	if format := upper(in["format"]); format != "" {
		sub["format"] = format
	}
	if fields := splitList(in["fields"]); len(fields) > 0 {
		sub["includeFields"] = fields
	}
	if ns := splitList(in["metafield_namespaces"]); len(ns) > 0 {
		sub["metafieldNamespaces"] = ns
	}
	selection := gql.Fields(gql.Object("webhookSubscription", webhookFields), userErrors)

	if id != "" {
		return document(gql.Fields(gql.Object("webhookSubscriptionUpdate($INPUT)", selection)),
			map[string]string{"$INPUT": "id: $id, webhookSubscription: $webhookSubscription"},
			"mutation UpdateWebhook($id: ID!, $webhookSubscription: WebhookSubscriptionInput!)",
			map[string]any{"id": id, "webhookSubscription": sub})
	}
	topic := str(in["topic"])
	if topic == "" {
		return nil, unsupported(canonical.Webhooks, rc, "a webhook needs a topic")
	}
	return document(gql.Fields(gql.Object("webhookSubscriptionCreate($INPUT)", selection)),
		map[string]string{"$INPUT": "topic: $topic, webhookSubscription: $webhookSubscription"},
		"mutation CreateWebhook($topic: WebhookSubscriptionTopic!, $webhookSubscription: WebhookSubscriptionInput!)",
		map[string]any{"topic": webhook.GraphTopic(topic), "webhookSubscription": sub})
}
