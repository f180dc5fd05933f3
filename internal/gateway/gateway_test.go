// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/cursor"
	"github.com/taibuivan/dataapi/internal/executor"
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/queryir"
)

func bookSource() *metadata.SourceDefinition {
	return &metadata.SourceDefinition{
		EntityName: "Book",
		Schema:     "dbo",
		Object:     "books",
		Columns: []metadata.ColumnDef{
			{ExposedName: "id", BackingName: "id", Type: metadata.ColumnTypeInt, AutoGenerated: true, ReadOnly: true},
			{ExposedName: "title", BackingName: "title", Type: metadata.ColumnTypeString},
			{ExposedName: "year", BackingName: "publication_year", Type: metadata.ColumnTypeInt, Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestPkSegments_SplitsAlternatingFieldValuePairs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/Book/id/42", nil)
	req = withWildcardParam(req, "id/42")

	got := pkSegments(req)

	assert.Equal(t, map[string]string{"id": "42"}, got)
}

func TestPkSegments_EmptyWildcard_ReturnsNil(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/Book/", nil)
	req = withWildcardParam(req, "")

	got := pkSegments(req)

	assert.Nil(t, got)
}

func TestPkSegments_OddSegmentCount_DropsTrailingUnpaired(t *testing.T) {
	req := withWildcardParam(httptest.NewRequest(http.MethodGet, "/api/Book/id", nil), "id")

	got := pkSegments(req)

	assert.Empty(t, got)
}

func TestParseFirst_EmptyDefaultsToPageSize(t *testing.T) {
	n, err := parseFirst("")
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, n)
}

func TestParseFirst_ValidValue(t *testing.T) {
	n, err := parseFirst("25")
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestParseFirst_NegativeOrUnparseable_FallsBackToDefault(t *testing.T) {
	n, err := parseFirst("-5")
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, n)

	n, err = parseFirst("not-a-number")
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, n)
}

func TestParseFirst_Zero_FailsBadRequest(t *testing.T) {
	_, err := parseFirst("0")

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusBadRequest, appErr.SubStatus)
}

func TestApplyPrimaryKeyPredicates_MissingSegments_FailsInvalidIdentifierField(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = applyPrimaryKeyPredicates(find, source, nil)

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusInvalidIdentifierField, appErr.SubStatus)
}

func TestApplyPrimaryKeyPredicates_AddsEqualityPredicateOnBackingColumn(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = applyPrimaryKeyPredicates(find, source, map[string]string{"id": "42"})

	require.NoError(t, err)
	require.Len(t, find.Predicates, 1)
	pred := find.Predicates[0]
	assert.Equal(t, "id", pred.Left.Column.BackingName)
	assert.Equal(t, queryir.OpEq, pred.Op)
	assert.Equal(t, "42", find.Parameters[pred.Right.ParamName].Value)
}

func TestBindWritableValues_FullMode_RequiresNonNullableFieldsWithoutDefault(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	ins, err := queryir.NewInsertStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = bindWritableValues(ins, source, map[string]any{}, false)

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusBadRequest, appErr.SubStatus)
}

func TestBindWritableValues_SkipsAutoGeneratedAndReadOnlyColumns(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	ins, err := queryir.NewInsertStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = bindWritableValues(ins, source, map[string]any{"title": "Dune"}, false)

	require.NoError(t, err)
	_, hasID := ins.Values["id"]
	assert.False(t, hasID)
	titleParam, ok := ins.Values["title"]
	require.True(t, ok)
	assert.Equal(t, "Dune", ins.Parameters[titleParam].Value)
}

func TestBindWritableValues_PartialMode_OmittedFieldsAreSkipped(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	upd, err := queryir.NewUpdateStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = bindWritableValues(upd, source, map[string]any{"title": "Dune Messiah"}, true)

	require.NoError(t, err)
	assert.Len(t, upd.Values, 1)
}

func TestCursorFromRow_EncodesPrimaryKeyFields(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	encoded, err := cursorFromRow("Book", source, find, map[string]json.RawMessage{"id": json.RawMessage("7")})

	require.NoError(t, err)
	decoded, err := cursor.Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "Book", decoded[0].EntityName)
	assert.Equal(t, "id", decoded[0].FieldName)
	assert.EqualValues(t, 7, decoded[0].FieldValue)
}

func TestCursorFromRow_MissingPrimaryKeyField_Fails(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	_, err = cursorFromRow("Book", source, find, map[string]json.RawMessage{})

	assert.Error(t, err)
}

func TestPaginationFromCursor_ReMintsParametersAndPreservesDirection(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	decoded := cursor.Cursor{{EntityName: "Book", FieldName: "id", FieldValue: float64(7), Direction: cursor.Desc}}

	pagination, err := paginationFromCursor(find, decoded)

	require.NoError(t, err)
	require.Len(t, pagination.Columns, 1)
	col := pagination.Columns[0]
	assert.Equal(t, "id", col.Column.BackingName)
	assert.Equal(t, queryir.Desc, col.Direction)
	assert.EqualValues(t, 7, find.Parameters[col.ParamName].Value)
	assert.EqualValues(t, 7, col.Value)
}

func TestPaginationFromCursor_UnknownField_FailsBadRequest(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	decoded := cursor.Cursor{{EntityName: "Book", FieldName: "ghost", FieldValue: "x"}}

	_, err = paginationFromCursor(find, decoded)

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusBadRequest, appErr.SubStatus)
}

func TestProjectColumns_AbsentSelect_SelectsAllColumns(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = projectColumns(find, source, "", false)

	require.NoError(t, err)
	assert.Len(t, find.Columns, len(source.Columns))
}

func TestProjectColumns_PresentEmptySelect_FailsBadRequest(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = projectColumns(find, source, "", true)

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusBadRequest, appErr.SubStatus)
	assert.Equal(t, "Invalid Field name: null or white space", appErr.Message)
}

func TestProjectColumns_PresentNonEmptySelect_ProjectsNamedColumns(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = projectColumns(find, source, "title", true)

	require.NoError(t, err)
	require.Len(t, find.Columns, 1)
	assert.Equal(t, "title", find.Columns[0].Label)
}

func TestBindStoredProcParams_BindsInDeclaredOrder(t *testing.T) {
	source := &metadata.SourceDefinition{
		EntityName:       "TopBooks",
		Schema:           "dbo",
		Object:           "usp_top_books",
		ObjectType:       metadata.SourceObjectStoredProc,
		StoredProcParams: []string{"minYear", "limit"},
	}
	namer := queryir.NewNamer()
	x, err := queryir.NewExecuteStructure("TopBooks", providerWith(source), namer)
	require.NoError(t, err)

	err = bindStoredProcParams(x, source, map[string]any{"minYear": 2000, "limit": 10})

	require.NoError(t, err)
	require.Len(t, x.Params, 2)
	assert.EqualValues(t, 2000, x.Parameters[x.Params[0]].Value)
	assert.EqualValues(t, 10, x.Parameters[x.Params[1]].Value)
}

func TestBindStoredProcParams_MissingParam_FailsBadRequest(t *testing.T) {
	source := &metadata.SourceDefinition{
		EntityName:       "TopBooks",
		Schema:           "dbo",
		Object:           "usp_top_books",
		ObjectType:       metadata.SourceObjectStoredProc,
		StoredProcParams: []string{"minYear"},
	}
	namer := queryir.NewNamer()
	x, err := queryir.NewExecuteStructure("TopBooks", providerWith(source), namer)
	require.NoError(t, err)

	err = bindStoredProcParams(x, source, map[string]any{})

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusBadRequest, appErr.SubStatus)
}

func TestExecuteResultEnvelope_SingleRowSingleColumn_CollapsesToScalar(t *testing.T) {
	result := &executor.Result{Rows: []map[string]any{{"count": 42}}}

	got := executeResultEnvelope(result)

	assert.EqualValues(t, 42, got)
}

func TestExecuteResultEnvelope_MultiRow_StaysRowSet(t *testing.T) {
	result := &executor.Result{Rows: []map[string]any{{"id": 1}, {"id": 2}}}

	got := executeResultEnvelope(result)

	assert.Equal(t, result.Rows, got)
}

func providerWith(sources ...*metadata.SourceDefinition) *metadata.Provider {
	return metadata.NewProvider(sources)
}

// withWildcardParam attaches a chi route context whose "*" param is set to
// wildcard, mirroring what chi's router would populate for a `/*` route.
func withWildcardParam(r *http.Request, wildcard string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("*", wildcard)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
