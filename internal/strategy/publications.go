package strategy

import (
	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
	"shopbridge/internal/gql"
	"shopbridge/internal/request"
)

type publications struct{}

func (publications) Resource() canonical.Resource { return canonical.Publications }

var publicationFields = gql.Fields("id", "name")

func (publications) BuildQuery(rc *request.Context) (*gql.Document, error) {
	if id := rc.ResourceID(); id != "" {
		fs := gql.Fields(gql.Object("publication($ID)", publicationFields))
		return document(fs, map[string]string{"$ID": gid.IDClause(id, "Publication")}, "", nil)
	}
	fs := gql.Fields(gql.Object("publications($PER_PAGE)", gql.Object("edges", gql.Object("node", publicationFields)), pageInfo))
	return document(fs, map[string]string{"$PER_PAGE": "first: 250"}, "", nil)
}

func (publications) BuildMutation(rc *request.Context) (*gql.Document, error) {
	return nil, unsupported(canonical.Publications, rc, "Mutation not supported on Publication")
}
