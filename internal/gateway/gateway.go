// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package gateway is the REST surface of spec.md §6: it normalizes net/http
requests into the request record the engine understands — entity,
operation, primary key, filter AST, select fields, order by, pagination —
calls the Engine Factory, and shapes the response as a JSON envelope with
an optional `next_link`.

Route shape (mounted by [Handler.Routes]):

	GET    /api/{entity}           list, with $filter/$select/$orderby/$first/$after
	GET    /api/{entity}/*         singleton read by primary key path segments
	POST   /api/{entity}           create
	PUT    /api/{entity}/*         upsert (full record, PUT semantics)
	PATCH  /api/{entity}/*         upsert (incremental, PATCH semantics)
	DELETE /api/{entity}/*         delete
	POST   /api/{entity}/execute   stored-procedure execution

Primary-key path segments alternate exposed-field-name/value, e.g.
`/api/Book/id/42`, matching Azure Data API Builder's own REST convention.
*/
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dataapi/internal/cursor"
	"github.com/taibuivan/dataapi/internal/engine"
	"github.com/taibuivan/dataapi/internal/executor"
	"github.com/taibuivan/dataapi/internal/filter"
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/odata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	requestutil "github.com/taibuivan/dataapi/internal/platform/request"
	"github.com/taibuivan/dataapi/internal/platform/respond"
	"github.com/taibuivan/dataapi/internal/policy"
	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/pkg/convert"
	"github.com/taibuivan/dataapi/pkg/query"
)

const defaultPageSize = 100

// Handler wires the Metadata Provider, Engine Factory, and Authorization
// Policy Processor into a REST surface.
type Handler struct {
	Provider *metadata.Provider
	Engines  *engine.Factory
	Policies *policy.Processor
}

// Routes mounts the generic entity CRUD surface under /api/{entity}.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{entity}", h.list)
	r.Get("/{entity}/*", h.getByKey)
	r.Post("/{entity}", h.create)
	r.Put("/{entity}/*", h.upsert(false))
	r.Patch("/{entity}/*", h.upsert(true))
	r.Delete("/{entity}/*", h.delete)
	r.Post("/{entity}/execute", h.execute)
	return r
}

func (h *Handler) resolveEntity(w http.ResponseWriter, r *http.Request) (*metadata.SourceDefinition, string, bool) {
	entityName := chi.URLParam(r, "entity")
	source, ok := h.Provider.Entity(entityName)
	if !ok {
		respond.Error(w, r, apperr.EntityNotFound(entityName))
		return nil, "", false
	}
	return source, entityName, true
}

// pkSegments splits the request's wildcard tail into alternating
// {exposedField, value} pairs, e.g. "id/42" -> {"id": "42"}.
func pkSegments(r *http.Request) map[string]string {
	rest := strings.Trim(chi.URLParam(r, "*"), "/")
	if rest == "" {
		return nil
	}
	parts := strings.Split(rest, "/")
	out := make(map[string]string, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		out[parts[i]] = parts[i+1]
	}
	return out
}

// # Read

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	source, entityName, ok := h.resolveEntity(w, r)
	if !ok {
		return
	}
	caller := requestutil.Claims(r)

	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure(entityName, h.Provider, namer)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := projectColumns(find, source, r.URL.Query().Get("$select"), r.URL.Query().Has("$select")); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := applyFilter(find, source, r.URL.Query().Get("$filter")); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := applyOrderBy(find, r.URL.Query().Get("$orderby")); err != nil {
		respond.Error(w, r, err)
		return
	}

	limit, err := parseFirst(r.URL.Query().Get("$first"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	find.Limit = limit + 1

	if after := r.URL.Query().Get("$after"); after != "" {
		decoded, err := cursor.ForEntity(after, entityName)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		pagination, err := paginationFromCursor(find, decoded)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		find.SetPagination(pagination)
	}

	if err := h.Policies.Apply(entityName, "Read", source, find.Alias, caller, nil, find); err != nil {
		respond.Error(w, r, err)
		return
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	result, err := eng.Find(r.Context(), caller, find)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	writeListResult(w, r, entityName, source, find, result, limit)
}

func (h *Handler) getByKey(w http.ResponseWriter, r *http.Request) {
	source, entityName, ok := h.resolveEntity(w, r)
	if !ok {
		return
	}
	caller := requestutil.Claims(r)

	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure(entityName, h.Provider, namer)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	find.Singleton = true
	find.Limit = 1

	if err := projectColumns(find, source, "", false); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := applyPrimaryKeyPredicates(find, source, pkSegments(r)); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := h.Policies.Apply(entityName, "Read", source, find.Alias, caller, nil, find); err != nil {
		respond.Error(w, r, err)
		return
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	result, err := eng.Find(r.Context(), caller, find)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if len(result.JSON) == 0 || string(result.JSON) == "null" {
		respond.Error(w, r, apperr.ItemNotFound(""))
		return
	}
	respond.OK(w, json.RawMessage(result.JSON))
}

// # Write

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	source, entityName, ok := h.resolveEntity(w, r)
	if !ok {
		return
	}
	caller := requestutil.Claims(r)

	body, err := decodeBody(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	namer := queryir.NewNamer()
	ins, err := queryir.NewInsertStructure(entityName, h.Provider, namer)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := bindWritableValues(ins, source, body, false); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := h.Policies.Apply(entityName, "Create", source, ins.Alias, caller, itemFields(body), ins); err != nil {
		respond.Error(w, r, err)
		return
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	result, err := eng.Insert(r.Context(), caller, ins)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Created(w, result.Row)
}

func (h *Handler) upsert(incremental bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, entityName, ok := h.resolveEntity(w, r)
		if !ok {
			return
		}
		caller := requestutil.Claims(r)

		body, err := decodeBody(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		namer := queryir.NewNamer()
		u, err := queryir.NewUpsertStructure(entityName, h.Provider, namer, incremental)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		if err := applyPrimaryKeyPredicates(u, source, pkSegments(r)); err != nil {
			respond.Error(w, r, err)
			return
		}
		if err := bindWritableValues(u, source, body, incremental); err != nil {
			respond.Error(w, r, err)
			return
		}

		requestOp := "Upsert"
		if incremental {
			requestOp = "UpsertIncremental"
		}
		if err := h.Policies.Apply(entityName, requestOp, source, u.Alias, caller, itemFields(body), u); err != nil {
			respond.Error(w, r, err)
			return
		}

		eng, err := h.Engines.For(source.DataSourceName)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		result, err := eng.Upsert(r.Context(), caller, u)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		status := http.StatusOK
		if !result.IsUpdate {
			status = http.StatusCreated
		}
		respond.JSON(w, status, upsertEnvelope{Data: result.Row, IsUpdate: result.IsUpdate})
	}
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	source, entityName, ok := h.resolveEntity(w, r)
	if !ok {
		return
	}
	caller := requestutil.Claims(r)

	namer := queryir.NewNamer()
	del, err := queryir.NewDeleteStructure(entityName, h.Provider, namer)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := applyPrimaryKeyPredicates(del, source, pkSegments(r)); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := h.Policies.Apply(entityName, "Delete", source, del.Alias, caller, nil, del); err != nil {
		respond.Error(w, r, err)
		return
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if _, err := eng.Delete(r.Context(), caller, del); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.NoContent(w)
}

// execute calls a stored-procedure entity with positional parameters bound
// from the request body (keyed by parameter name, per
// [metadata.SourceDefinition.StoredProcParams]), per SPEC_FULL.md's Execute
// operation.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	source, entityName, ok := h.resolveEntity(w, r)
	if !ok {
		return
	}
	caller := requestutil.Claims(r)

	body, err := decodeBody(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	namer := queryir.NewNamer()
	x, err := queryir.NewExecuteStructure(entityName, h.Provider, namer)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := bindStoredProcParams(x, source, body); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := h.Policies.Apply(entityName, "Execute", source, x.Alias, caller, itemFields(body), x); err != nil {
		respond.Error(w, r, err)
		return
	}

	eng, err := h.Engines.For(source.DataSourceName)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	result, err := eng.Execute(r.Context(), caller, x)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, executeResultEnvelope(result))
}

// bindStoredProcParams binds source.StoredProcParams, in call order, from
// body's matching fields.
func bindStoredProcParams(x *queryir.ExecuteStructure, source *metadata.SourceDefinition, body map[string]any) error {
	for _, paramName := range source.StoredProcParams {
		value, present := body[paramName]
		if !present {
			return apperr.BadRequest("Missing required parameter " + paramName)
		}
		x.BindParam(value)
	}
	return nil
}

// executeResultEnvelope shapes an Execute result the same reader-handler
// polymorphism Find uses for singleton vs. list: a single row of a single
// column collapses to its bare JSON scalar, anything else stays a row set.
func executeResultEnvelope(result *executor.Result) any {
	if len(result.Rows) == 1 {
		row := result.Rows[0]
		if len(row) == 1 {
			for _, v := range row {
				return v
			}
		}
	}
	return result.Rows
}

// # Request Shaping Helpers

// pkTarget is the subset of a queryir structure variant needed to bind
// primary-key path segments into predicates.
type pkTarget interface {
	Column(exposedName string) (queryir.Column, error)
	AddParameter(value any, backingColumn string) string
	AddPredicate(p *queryir.Predicate)
}

func applyPrimaryKeyPredicates(target pkTarget, source *metadata.SourceDefinition, segments map[string]string) error {
	if len(segments) == 0 {
		return apperr.InvalidIdentifierField(source.EntityName)
	}
	for _, backing := range source.PrimaryKey {
		exposedName := backing
		for _, c := range source.Columns {
			if c.BackingName == backing {
				exposedName = c.ExposedName
				break
			}
		}
		value, present := segments[exposedName]
		if !present {
			return apperr.InvalidIdentifierField(source.EntityName)
		}
		column, err := target.Column(exposedName)
		if err != nil {
			return err
		}
		paramName := target.AddParameter(value, backing)
		target.AddPredicate(queryir.BinaryPredicate(queryir.ColumnOperand(column), queryir.OpEq, queryir.ParamOperand(paramName)))
	}
	return nil
}

// projectColumns resolves $select into find's column list. selectPresent
// distinguishes an absent $select (select all columns) from a present but
// empty one (a client error), which an empty selectParam string alone
// cannot: both an absent and an empty `$select=` decode to "".
func projectColumns(find *queryir.FindStructure, source *metadata.SourceDefinition, selectParam string, selectPresent bool) error {
	names := query.StringSlice(selectParam)
	if len(names) == 0 {
		if selectPresent {
			return apperr.BadRequest("Invalid Field name: null or white space")
		}
		for _, c := range source.Columns {
			names = append(names, c.ExposedName)
		}
	}
	for _, n := range names {
		if err := find.AddColumn(n); err != nil {
			return apperr.BadRequest("Unknown $select field " + n)
		}
	}
	return nil
}

func applyFilter(find *queryir.FindStructure, source *metadata.SourceDefinition, filterParam string) error {
	if filterParam == "" {
		return nil
	}
	decoded, err := url.QueryUnescape(filterParam)
	if err != nil {
		decoded = filterParam
	}
	expr, err := filter.Parse(decoded)
	if err != nil {
		return apperr.BadRequest("Malformed $filter: " + err.Error())
	}
	visitor := &odata.Visitor{
		Target:             odata.Target{Source: source, Alias: find.Alias},
		Params:             find,
		AllowClaimsAndItem: false,
	}
	pred, err := visitor.Visit(expr)
	if err != nil {
		return apperr.BadRequest("Malformed $filter: " + err.Error())
	}
	find.AddPredicate(pred)
	return nil
}

func applyOrderBy(find *queryir.FindStructure, orderByParam string) error {
	if orderByParam == "" {
		return nil
	}
	var cols []queryir.OrderByColumn
	for _, clause := range strings.Split(orderByParam, ",") {
		fields := strings.Fields(strings.TrimSpace(clause))
		if len(fields) == 0 {
			continue
		}
		exposedName := fields[0]
		direction := queryir.Asc
		if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
			direction = queryir.Desc
		}
		col, err := find.Column(exposedName)
		if err != nil {
			return apperr.BadRequest("Unknown $orderby field " + exposedName)
		}
		cols = append(cols, queryir.OrderByColumn{Column: col, Direction: direction})
	}
	find.SetOrderBy(cols)
	return nil
}

// paginationFromCursor rebuilds the keyset tuple from a decoded cursor,
// re-minting parameters on find so the builder can render the comparison
// chain the same way it would any other predicate value.
func paginationFromCursor(find *queryir.FindStructure, c cursor.Cursor) (*queryir.KeysetPaginationPredicate, error) {
	var cols []queryir.KeysetColumn
	for _, elem := range c {
		backing, ok := find.Source.BackingName(elem.FieldName)
		if !ok {
			return nil, apperr.BadRequest("Pagination cursor references unknown field " + elem.FieldName)
		}
		column, err := find.Column(elem.FieldName)
		if err != nil {
			return nil, err
		}
		paramName := find.AddParameter(elem.FieldValue, backing)
		direction := queryir.Asc
		if elem.Direction == cursor.Desc {
			direction = queryir.Desc
		}
		cols = append(cols, queryir.KeysetColumn{Column: column, ParamName: paramName, Value: elem.FieldValue, Direction: direction})
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return &queryir.KeysetPaginationPredicate{Columns: cols}, nil
}

// parseFirst parses $first, defaulting a blank, negative, or unparseable
// value to defaultPageSize. A raw value that parses to exactly 0 is
// rejected outright: spec.md §8 treats `$first=0` as illegal rather than
// "unset".
func parseFirst(raw string) (int, error) {
	n := convert.ToIntD(raw, defaultPageSize)
	if n == 0 {
		return 0, apperr.BadRequest("$first must be a positive integer")
	}
	if n < 0 {
		return defaultPageSize, nil
	}
	return n, nil
}

func decodeBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := requestutil.DecodeJSON(r, &body); err != nil {
		return nil, apperr.BadRequest("Invalid JSON body")
	}
	return body, nil
}

// writableTarget is the subset of a queryir structure variant needed to
// bind request-body field values.
type writableTarget interface {
	SetValue(backingName string, value any)
}

// bindWritableValues copies body's exposed fields onto target, skipping
// read-only/auto-generated columns. When partial is false (Create, full
// Upsert), every non-auto-generated, non-nullable, no-default column must
// be present.
func bindWritableValues(target writableTarget, source *metadata.SourceDefinition, body map[string]any, partial bool) error {
	for _, col := range source.Columns {
		if col.ReadOnly || col.AutoGenerated {
			continue
		}
		value, present := body[col.ExposedName]
		if !present {
			if partial || col.Nullable || col.HasDefault {
				continue
			}
			return apperr.BadRequest("Missing required field " + col.ExposedName)
		}
		target.SetValue(col.BackingName, value)
	}
	return nil
}

// itemResolver adapts a decoded request body to [odata.ItemResolver] so
// Create/Update policy text can reference `@item.<field>`.
type itemResolver map[string]any

func (m itemResolver) ItemField(fieldName string) (any, bool) {
	v, ok := m[fieldName]
	return v, ok
}

func itemFields(body map[string]any) odata.ItemResolver {
	return itemResolver(body)
}

// # Response Shaping

type upsertEnvelope struct {
	Data     any  `json:"data"`
	IsUpdate bool `json:"is_update"`
}

type listEnvelope struct {
	Data     []map[string]json.RawMessage `json:"data"`
	NextLink string                       `json:"next_link,omitempty"`
}

// writeListResult trims the fetched page back down to the requested size
// (the engine was asked for limit+1 to detect a next page) and, when a next
// page exists, mints a continuation cursor off the last row's primary key
// values, per spec.md §4.6.
func writeListResult(w http.ResponseWriter, r *http.Request, entityName string, source *metadata.SourceDefinition, find *queryir.FindStructure, result *executor.Result, limit int) {
	var rows []map[string]json.RawMessage
	if len(result.JSON) > 0 {
		if err := json.Unmarshal(result.JSON, &rows); err != nil {
			respond.Error(w, r, apperr.UnexpectedError(err))
			return
		}
	}

	hasNext := len(rows) > limit
	if hasNext {
		rows = rows[:limit]
	}

	var nextLink string
	if hasNext && len(rows) > 0 {
		encoded, err := cursorFromRow(entityName, source, find, rows[len(rows)-1])
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		nextLink = encoded
	}

	respond.JSON(w, http.StatusOK, listEnvelope{Data: rows, NextLink: nextLink})
}

// cursorFromRow builds and encodes a pagination cursor from row's primary
// key fields, one tuple per key column in source.PrimaryKey order. Each
// tuple takes its direction from find's explicit $orderby when that names
// the column, and ascending otherwise; $orderby columns outside the primary
// key are not included in the cursor.
func cursorFromRow(entityName string, source *metadata.SourceDefinition, find *queryir.FindStructure, row map[string]json.RawMessage) (string, error) {
	directionFor := func(backing string) cursor.Direction {
		for _, ob := range find.OrderBy {
			if ob.Column.BackingName == backing {
				if ob.Direction == queryir.Desc {
					return cursor.Desc
				}
				return cursor.Asc
			}
		}
		return cursor.Asc
	}

	var c cursor.Cursor
	for _, backing := range source.PrimaryKey {
		exposedName := backing
		for _, col := range source.Columns {
			if col.BackingName == backing {
				exposedName = col.ExposedName
				break
			}
		}
		raw, ok := row[exposedName]
		if !ok {
			return "", apperr.UnexpectedError(fmt.Errorf("result row missing primary key field %s", exposedName))
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return "", apperr.UnexpectedError(err)
		}
		c = append(c, cursor.Element{
			EntityName: entityName,
			FieldName:  exposedName,
			FieldValue: value,
			Direction:  directionFor(backing),
		})
	}
	return c.Encode()
}
