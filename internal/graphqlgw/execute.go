// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package graphqlgw

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/taibuivan/dataapi/internal/engine"
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/platform/principal"
	requestutil "github.com/taibuivan/dataapi/internal/platform/request"
	"github.com/taibuivan/dataapi/internal/platform/respond"
	"github.com/taibuivan/dataapi/internal/policy"
	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/pkg/slice"
)

const defaultListSize = 100

// Handler serves a single POST /graphql endpoint over the same Metadata
// Provider, Engine Factory, and Authorization Policy Processor the REST
// surface uses.
type Handler struct {
	Provider *metadata.Provider
	Engines  *engine.Factory
	Policies *policy.Processor

	schema *ast.Schema
	routes map[string]fieldRoute
}

// NewHandler builds the GraphQL schema document from provider's current
// entities. Call again (replacing the old handler) after a resource
// document reload changes the set of exposed entities.
func NewHandler(provider *metadata.Provider, engines *engine.Factory, policies *policy.Processor) (*Handler, error) {
	schema, routes, err := BuildSchema(provider)
	if err != nil {
		return nil, err
	}
	return &Handler{Provider: provider, Engines: engines, Policies: policies, schema: schema, routes: routes}, nil
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   map[string]json.RawMessage `json:"data,omitempty"`
	Errors []gqlError                 `json:"errors,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest
	if err := requestutil.DecodeJSON(r, &req); err != nil {
		writeErrors(w, http.StatusBadRequest, err)
		return
	}

	doc, gqlErrs := gqlparser.LoadQuery(h.schema, req.Query)
	if gqlErrs != nil {
		writeErrors(w, http.StatusBadRequest, gqlErrs)
		return
	}

	op, err := selectOperation(doc, req.OperationName)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err)
		return
	}
	if op.Operation == ast.Subscription {
		writeErrors(w, http.StatusBadRequest, fmt.Errorf("graphqlgw: subscriptions are not supported"))
		return
	}

	caller := requestutil.Claims(r)
	data := make(map[string]json.RawMessage, len(op.SelectionSet))
	var errs []gqlError

	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		route, ok := h.routes[field.Name]
		if !ok {
			errs = append(errs, gqlError{Message: "unknown field " + field.Name})
			continue
		}
		raw, err := h.resolveField(r, caller, field, route, req.Variables)
		if err != nil {
			errs = append(errs, gqlError{Message: err.Error()})
			continue
		}
		data[responseKey(field)] = raw
	}

	respond.JSON(w, http.StatusOK, graphQLResponse{Data: data, Errors: errs})
}

func responseKey(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

func selectOperation(doc *ast.QueryDocument, operationName string) (*ast.OperationDefinition, error) {
	if operationName != "" {
		for _, op := range doc.Operations {
			if op.Name == operationName {
				return op, nil
			}
		}
		return nil, fmt.Errorf("graphqlgw: no operation named %q", operationName)
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0], nil
	}
	return nil, fmt.Errorf("graphqlgw: operationName is required when a document declares more than one operation")
}

func writeErrors(w http.ResponseWriter, status int, err error) {
	var messages []gqlError
	if list, ok := err.(gqlerror.List); ok {
		for _, e := range list {
			messages = append(messages, gqlError{Message: e.Message})
		}
	} else {
		messages = append(messages, gqlError{Message: err.Error()})
	}
	respond.JSON(w, status, graphQLResponse{Errors: messages})
}

// resolveField dispatches a single root-selection field to the queryir
// structure its route names, runs it through the policy processor and
// engine factory exactly as the REST surface does, and returns the raw
// JSON to splice into the response's data object.
func (h *Handler) resolveField(r *http.Request, caller *principal.Principal, field *ast.Field, route fieldRoute, variables map[string]any) (json.RawMessage, error) {
	args, err := argumentValues(field, variables)
	if err != nil {
		return nil, err
	}

	switch route.kind {
	case kindGet:
		return h.resolveGet(r, caller, route.entity, field, args)
	case kindList:
		return h.resolveList(r, caller, route.entity, field, args)
	case kindCreate:
		return h.resolveCreate(r, caller, route.entity, args)
	case kindUpdate:
		return h.resolveUpdate(r, caller, route.entity, args)
	case kindDelete:
		return h.resolveDelete(r, caller, route.entity, args)
	default:
		return nil, fmt.Errorf("graphqlgw: unreachable field kind")
	}
}

func argumentValues(field *ast.Field, variables map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		val, err := arg.Value.Value(variables)
		if err != nil {
			return nil, fmt.Errorf("graphqlgw: argument %s: %w", arg.Name, err)
		}
		out[arg.Name] = val
	}
	return out, nil
}

func selectedColumns(field *ast.Field) []string {
	fields := slice.Filter(field.SelectionSet, func(sel ast.Selection) bool {
		_, ok := sel.(*ast.Field)
		return ok
	})
	return slice.Map(fields, func(sel ast.Selection) string {
		return sel.(*ast.Field).Name
	})
}

func (h *Handler) resolveGet(r *http.Request, caller *principal.Principal, source *metadata.SourceDefinition, field *ast.Field, args map[string]any) (json.RawMessage, error) {
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure(source.EntityName, h.Provider, namer)
	if err != nil {
		return nil, err
	}
	find.Singleton = true
	find.Limit = 1

	if err := projectColumns(find, source, selectedColumns(field)); err != nil {
		return nil, err
	}
	if err := applyPrimaryKeyArgs(find, source, args); err != nil {
		return nil, err
	}
	if err := h.Policies.Apply(source.EntityName, "Read", source, find.Alias, caller, nil, find); err != nil {
		return nil, err
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		return nil, err
	}
	result, err := eng.Find(r.Context(), caller, find)
	if err != nil {
		return nil, err
	}
	if len(result.JSON) == 0 || string(result.JSON) == "null" {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(result.JSON), nil
}

func (h *Handler) resolveList(r *http.Request, caller *principal.Principal, source *metadata.SourceDefinition, field *ast.Field, args map[string]any) (json.RawMessage, error) {
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure(source.EntityName, h.Provider, namer)
	if err != nil {
		return nil, err
	}
	find.Limit = parseFirstArg(args)

	if err := projectColumns(find, source, selectedColumns(field)); err != nil {
		return nil, err
	}
	if err := h.Policies.Apply(source.EntityName, "Read", source, find.Alias, caller, nil, find); err != nil {
		return nil, err
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		return nil, err
	}
	result, err := eng.Find(r.Context(), caller, find)
	if err != nil {
		return nil, err
	}
	if len(result.JSON) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.RawMessage(result.JSON), nil
}

func (h *Handler) resolveCreate(r *http.Request, caller *principal.Principal, source *metadata.SourceDefinition, args map[string]any) (json.RawMessage, error) {
	body, err := inputArgument(args)
	if err != nil {
		return nil, err
	}

	namer := queryir.NewNamer()
	ins, err := queryir.NewInsertStructure(source.EntityName, h.Provider, namer)
	if err != nil {
		return nil, err
	}
	if err := bindWritableValues(ins, source, body, false); err != nil {
		return nil, err
	}
	if err := h.Policies.Apply(source.EntityName, "Create", source, ins.Alias, caller, itemFields(body), ins); err != nil {
		return nil, err
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		return nil, err
	}
	result, err := eng.Insert(r.Context(), caller, ins)
	if err != nil {
		return nil, err
	}
	return marshalRow(result.Row)
}

func (h *Handler) resolveUpdate(r *http.Request, caller *principal.Principal, source *metadata.SourceDefinition, args map[string]any) (json.RawMessage, error) {
	body, err := inputArgument(args)
	if err != nil {
		return nil, err
	}

	namer := queryir.NewNamer()
	u, err := queryir.NewUpsertStructure(source.EntityName, h.Provider, namer, true)
	if err != nil {
		return nil, err
	}
	if err := applyPrimaryKeyArgs(u, source, args); err != nil {
		return nil, err
	}
	if err := bindWritableValues(u, source, body, true); err != nil {
		return nil, err
	}
	if err := h.Policies.Apply(source.EntityName, "UpsertIncremental", source, u.Alias, caller, itemFields(body), u); err != nil {
		return nil, err
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		return nil, err
	}
	result, err := eng.Upsert(r.Context(), caller, u)
	if err != nil {
		return nil, err
	}
	return marshalRow(result.Row)
}

func (h *Handler) resolveDelete(r *http.Request, caller *principal.Principal, source *metadata.SourceDefinition, args map[string]any) (json.RawMessage, error) {
	namer := queryir.NewNamer()
	del, err := queryir.NewDeleteStructure(source.EntityName, h.Provider, namer)
	if err != nil {
		return nil, err
	}
	if err := applyPrimaryKeyArgs(del, source, args); err != nil {
		return nil, err
	}
	if err := h.Policies.Apply(source.EntityName, "Delete", source, del.Alias, caller, nil, del); err != nil {
		return nil, err
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		return nil, err
	}
	if _, err := eng.Delete(r.Context(), caller, del); err != nil {
		return nil, err
	}
	return json.RawMessage("true"), nil
}

func parseFirstArg(args map[string]any) int {
	v, ok := args["first"]
	if !ok {
		return defaultListSize
	}
	n, ok := v.(int64)
	if !ok || n <= 0 {
		return defaultListSize
	}
	return int(n)
}

func inputArgument(args map[string]any) (map[string]any, error) {
	raw, ok := args["input"]
	if !ok {
		return nil, apperr.BadRequest("missing required argument input")
	}
	body, ok := raw.(map[string]any)
	if !ok {
		return nil, apperr.BadRequest("argument input must be an object")
	}
	return body, nil
}

func marshalRow(row map[string]any) (json.RawMessage, error) {
	if row == nil {
		return json.RawMessage("null"), nil
	}
	encoded, err := json.Marshal(row)
	if err != nil {
		return nil, apperr.UnexpectedError(err)
	}
	return encoded, nil
}
