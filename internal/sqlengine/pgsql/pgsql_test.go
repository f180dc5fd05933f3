// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pgsql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/internal/sqlengine/pgsql"
)

func notesSource() *metadata.SourceDefinition {
	return &metadata.SourceDefinition{
		EntityName: "Note",
		Schema:     "public",
		Object:     "notes",
		Columns: []metadata.ColumnDef{
			{ExposedName: "id", BackingName: "id", Type: metadata.ColumnTypeInt},
			{ExposedName: "title", BackingName: "title", Type: metadata.ColumnTypeString},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestBuildFind_List_UsesJSONBAgg(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	f, err := queryir.NewFindStructure("Note", provider, namer)
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("id"))

	built, err := pgsql.New().BuildFind(f)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "jsonb_agg(to_jsonb(subq))")
	assert.Contains(t, built.SQL, `"public"."notes"`)
}

func TestBuildFind_Singleton_UsesToJsonb(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	f, err := queryir.NewFindStructure("Note", provider, namer)
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("id"))
	f.Singleton = true

	built, err := pgsql.New().BuildFind(f)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "to_jsonb(subq)")
	assert.NotContains(t, built.SQL, "jsonb_agg")
	assert.Contains(t, built.SQL, "LIMIT 1")
}

func TestBuildFind_WithPredicate_UsesPositionalPlaceholders(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	f, err := queryir.NewFindStructure("Note", provider, namer)
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("id"))
	col, err := f.Column("title")
	require.NoError(t, err)
	paramName := f.AddParameter("hello", "title")
	f.AddPredicate(queryir.BinaryPredicate(queryir.ColumnOperand(col), queryir.OpEq, queryir.ParamOperand(paramName)))

	built, err := pgsql.New().BuildFind(f)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "$1")
}

func TestBuildInsert_UsesReturning(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	ins, err := queryir.NewInsertStructure("Note", provider, namer)
	require.NoError(t, err)
	ins.SetValue("title", "hello")

	built, err := pgsql.New().BuildInsert(ins)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "INSERT INTO")
	assert.Contains(t, built.SQL, "RETURNING")
	assert.Contains(t, built.SQL, "$1")
}

func TestBuildUpsert_UsesUpdateAndInsertCTE(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	u, err := queryir.NewUpsertStructure("Note", provider, namer, false)
	require.NoError(t, err)
	u.SetValue("id", 1)
	u.SetValue("title", "hello")

	built, err := pgsql.New().BuildUpsert(u)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "update_cte AS")
	assert.Contains(t, built.SQL, "insert_cte AS")
	assert.Contains(t, built.SQL, "NOT EXISTS (SELECT 1 FROM update_cte)")
	assert.Contains(t, built.SQL, "UNION")
}

func TestBuildDelete_RendersWhereClause(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	del, err := queryir.NewDeleteStructure("Note", provider, namer)
	require.NoError(t, err)
	col, err := del.Column("id")
	require.NoError(t, err)
	paramName := del.AddParameter(1, "id")
	del.AddPredicate(queryir.BinaryPredicate(queryir.ColumnOperand(col), queryir.OpEq, queryir.ParamOperand(paramName)))

	built, err := pgsql.New().BuildDelete(del)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "DELETE FROM")
	assert.Contains(t, built.SQL, "$1")
}

func topBooksProcSource() *metadata.SourceDefinition {
	return &metadata.SourceDefinition{
		EntityName:       "TopBooks",
		Schema:           "public",
		Object:           "top_books",
		ObjectType:       metadata.SourceObjectStoredProc,
		StoredProcParams: []string{"minYear", "limit"},
	}
}

func TestBuildExecute_RendersSetReturningFunctionCall(t *testing.T) {
	source := topBooksProcSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	x, err := queryir.NewExecuteStructure("TopBooks", provider, namer)
	require.NoError(t, err)
	x.BindParam(2000)
	x.BindParam(10)

	built, err := pgsql.New().BuildExecute(x)

	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "public"."top_books"($1, $2)`, built.SQL)
	require.Len(t, built.ParamOrder, 2)
	assert.EqualValues(t, 2000, built.Params[built.ParamOrder[0]].Value)
	assert.EqualValues(t, 10, built.Params[built.ParamOrder[1]].Value)
}
