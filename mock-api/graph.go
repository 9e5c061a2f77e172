package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"shopbridge/internal/canonical"
	"shopbridge/internal/gid"
)

// Root fields are matched by name only. Selections are not applied: every
// stored field of a node is returned, camelCased.
var (
	entityFields     = map[string]canonical.Resource{}
	collectionFields = map[string]canonical.Resource{}
)

func init() {
	for _, res := range canonical.All() {
		def := res.Definition()
		entityFields[canonical.CamelCase(def.Entity)] = res
		collectionFields[canonical.CamelCase(def.Collection)] = res
	}
}

type graphError struct {
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"errors": "Bad Request"})
		return
	}
	doc, err := parser.ParseQuery(&ast.Source{Name: "request", Input: payload.Query})
	if err != nil {
		respondGraphQLErrors(w, []graphError{{Message: err.Error()}})
		return
	}
	if len(doc.Operations) == 0 {
		respondGraphQLErrors(w, []graphError{{Message: "no operation in document"}})
		return
	}
	op := doc.Operations[0]

	data := map[string]any{}
	var errs []graphError
	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		args, err := fieldArgs(field, payload.Variables)
		if err == nil {
			if op.Operation == ast.Mutation {
				data[field.Alias], err = s.mutate(r.Context(), field.Name, args)
			} else {
				data[field.Alias], err = s.resolve(r.Context(), field.Name, args)
			}
		}
		if err != nil {
			data[field.Alias] = nil
			errs = append(errs, graphError{Message: err.Error(), Path: []string{field.Alias}})
		}
	}
	out := map[string]any{"data": data}
	if len(errs) > 0 {
		out["errors"] = errs
	}
	respondJSON(w, http.StatusOK, out)
}

func fieldArgs(field *ast.Field, vars map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		v, err := arg.Value.Value(vars)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		args[arg.Name] = v
	}
	return args, nil
}

func (s *Server) resolve(ctx context.Context, name string, args map[string]any) (any, error) {
	if name == "shop" {
		node := canonical.CamelKeys(s.shop).(map[string]any)
		node["id"] = gid.ToGlobalID(strconv.Itoa(s.shop["id"].(int)), "Shop")
		return node, nil
	}
	if res, ok := entityFields[name]; ok {
		id, ok := gid.NumericID(gid.Stringify(args["id"]))
		if !ok {
			return nil, fmt.Errorf("%s requires a valid id", name)
		}
		rec, err := s.store.Get(ctx, res, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return graphNode(rec), nil
	}
	if res, ok := collectionFields[name]; ok {
		return s.connection(ctx, res, args)
	}
	return nil, fmt.Errorf("Field '%s' doesn't exist on type 'QueryRoot'", name)
}

func (s *Server) connection(ctx context.Context, res canonical.Resource, args map[string]any) (any, error) {
	opts := listOptions{Limit: defaultLimit}
	if n, ok := gid.NumericID(gid.Stringify(args["first"])); ok && n > 0 {
		opts.Limit = int(min(n, maxLimit))
	}
	if after, _ := args["after"].(string); after != "" {
		id, ok := decodeCursor(after)
		if !ok {
			return nil, fmt.Errorf("invalid cursor")
		}
		opts.AfterID = id
	}
	recs, more, err := s.store.List(ctx, res, opts)
	if err != nil {
		return nil, err
	}
	nodes := make([]any, 0, len(recs))
	edges := make([]any, 0, len(recs))
	var endCursor any
	for _, rec := range recs {
		node := graphNode(rec)
		cursor := encodeCursor(rec.ID)
		nodes = append(nodes, node)
		edges = append(edges, map[string]any{"node": node, "cursor": cursor})
		endCursor = cursor
	}
	return map[string]any{
		"nodes":    nodes,
		"edges":    edges,
		"pageInfo": map[string]any{"hasNextPage": more, "endCursor": endCursor},
	}, nil
}

var mutationVerbs = []string{"Create", "Update", "Delete"}

func (s *Server) mutate(ctx context.Context, name string, args map[string]any) (any, error) {
	var (
		res  canonical.Resource
		verb string
	)
	for _, v := range mutationVerbs {
		if r, ok := entityFields[strings.TrimSuffix(name, v)]; ok && strings.HasSuffix(name, v) {
			res, verb = r, v
			break
		}
	}
	if res == "" {
		return nil, fmt.Errorf("Field '%s' doesn't exist on type 'Mutation'", name)
	}

	entity := canonical.CamelCase(res.Definition().Entity)
	input := mutationInput(args)
	idArg := args["id"]
	if idArg == nil {
		idArg = input["id"]
	}

	switch verb {
	case "Create":
		fields, _ := canonical.SnakeKeys(input).(map[string]any)
		rec, err := s.store.Create(ctx, res, parentRef{}, fields)
		if err != nil {
			return nil, err
		}
		return map[string]any{entity: graphNode(rec), "userErrors": []any{}}, nil
	case "Update":
		id, ok := gid.NumericID(gid.Stringify(idArg))
		if !ok {
			return userErrors(entity, "id", "id is required"), nil
		}
		fields, _ := canonical.SnakeKeys(input).(map[string]any)
		rec, err := s.store.Update(ctx, res, id, fields)
		if errors.Is(err, sql.ErrNoRows) {
			return userErrors(entity, "id", res.GraphType()+" does not exist"), nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{entity: graphNode(rec), "userErrors": []any{}}, nil
	default:
		deletedKey := "deleted" + canonical.StudlyCase(res.Definition().Entity) + "Id"
		id, ok := gid.NumericID(gid.Stringify(idArg))
		if !ok {
			return map[string]any{deletedKey: nil, "userErrors": []any{map[string]any{"field": []string{"id"}, "message": "id is required"}}}, nil
		}
		err := s.store.Delete(ctx, res, id)
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]any{deletedKey: nil, "userErrors": []any{map[string]any{"field": []string{"id"}, "message": res.GraphType() + " does not exist"}}}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{deletedKey: gid.ToGlobalID(strconv.FormatInt(id, 10), res.GraphType()), "userErrors": []any{}}, nil
	}
}

// mutationInput picks the first object-valued argument (input, product, ...).
func mutationInput(args map[string]any) map[string]any {
	for _, v := range args {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return map[string]any{}
}

func userErrors(entity, field, msg string) map[string]any {
	return map[string]any{
		entity:       nil,
		"userErrors": []any{map[string]any{"field": []string{field}, "message": msg}},
	}
}

func graphNode(rec record) map[string]any {
	node, _ := canonical.CamelKeys(rec.Fields).(map[string]any)
	if node == nil {
		node = map[string]any{}
	}
	id := strconv.FormatInt(rec.ID, 10)
	node["id"] = gid.ToGlobalID(id, rec.Resource.GraphType())
	node["legacyResourceId"] = id
	return node
}

func respondGraphQLErrors(w http.ResponseWriter, errs []graphError) {
	respondJSON(w, http.StatusOK, map[string]any{"errors": errs})
}
