// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package graphqlgw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func providerWith(sources ...*metadata.SourceDefinition) *metadata.Provider {
	return metadata.NewProvider(sources)
}

func TestApplyPrimaryKeyArgs_MissingArgument_FailsInvalidIdentifierField(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = applyPrimaryKeyArgs(find, source, map[string]any{})

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusInvalidIdentifierField, appErr.SubStatus)
}

func TestApplyPrimaryKeyArgs_AddsEqualityPredicateOnBackingColumn(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = applyPrimaryKeyArgs(find, source, map[string]any{"id": int64(42)})

	require.NoError(t, err)
	require.Len(t, find.Predicates, 1)
	pred := find.Predicates[0]
	assert.Equal(t, "id", pred.Left.Column.BackingName)
	assert.Equal(t, queryir.OpEq, pred.Op)
	assert.EqualValues(t, 42, find.Parameters[pred.Right.ParamName].Value)
}

func TestProjectColumns_EmptySelection_ProjectsEveryExposedColumn(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = projectColumns(find, source, nil)

	require.NoError(t, err)
	assert.Len(t, find.Columns, len(source.Columns))
}

func TestProjectColumns_UnknownField_FailsBadRequest(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	find, err := queryir.NewFindStructure("Book", providerWith(source), namer)
	require.NoError(t, err)

	err = projectColumns(find, source, []string{"ghost"})

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusBadRequest, appErr.SubStatus)
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

func TestBindWritableValues_PartialMode_OmittedFieldsAreSkipped(t *testing.T) {
	source := bookSource()
	namer := queryir.NewNamer()
	upd, err := queryir.NewUpsertStructure("Book", providerWith(source), namer, true)
	require.NoError(t, err)

	err = bindWritableValues(upd, source, map[string]any{"title": "Dune Messiah"}, true)

	require.NoError(t, err)
	assert.Len(t, upd.Values, 1)
}

func TestItemFields_ResolvesPresentAndMissingFields(t *testing.T) {
	resolver := itemFields(map[string]any{"title": "Dune"})

	value, ok := resolver.ItemField("title")
	assert.True(t, ok)
	assert.Equal(t, "Dune", value)

	_, ok = resolver.ItemField("ghost")
	assert.False(t, ok)
}
