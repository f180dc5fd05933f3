// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package tsql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/internal/sqlengine/tsql"
)

func notesSource() *metadata.SourceDefinition {
	return &metadata.SourceDefinition{
		EntityName: "Note",
		Schema:     "dbo",
		Object:     "notes",
		Columns: []metadata.ColumnDef{
			{ExposedName: "id", BackingName: "id", Type: metadata.ColumnTypeInt},
			{ExposedName: "title", BackingName: "title", Type: metadata.ColumnTypeString},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestBuildFind_List_UsesForJSONPath(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	f, err := queryir.NewFindStructure("Note", provider, namer)
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("id"))
	f.Limit = 10

	built, err := tsql.New().BuildFind(f)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "FOR JSON PATH, INCLUDE_NULL_VALUES")
	assert.NotContains(t, built.SQL, "WITHOUT_ARRAY_WRAPPER")
	assert.Contains(t, built.SQL, "TOP (10)")
	assert.Contains(t, built.SQL, "[dbo].[notes]")
}

func TestBuildFind_Singleton_UsesWithoutArrayWrapper(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	f, err := queryir.NewFindStructure("Note", provider, namer)
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("id"))
	f.Singleton = true

	built, err := tsql.New().BuildFind(f)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "WITHOUT_ARRAY_WRAPPER")
	assert.NotContains(t, built.SQL, "TOP (")
}

func TestBuildInsert_UsesOutputInserted(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	ins, err := queryir.NewInsertStructure("Note", provider, namer)
	require.NoError(t, err)
	ins.SetValue("title", "hello")

	built, err := tsql.New().BuildInsert(ins)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "OUTPUT INSERTED.*")
	assert.Contains(t, built.SQL, "@param1")
}

func TestBuildUpsert_ProducesCountAndInsertBatch(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	u, err := queryir.NewUpsertStructure("Note", provider, namer, false)
	require.NoError(t, err)
	u.SetValue("id", 1)
	u.SetValue("title", "hello")

	built, err := tsql.New().BuildUpsert(u)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "UPDATE")
	assert.Contains(t, built.SQL, "OUTPUT INSERTED.*")
	require.Len(t, built.Batch, 2)
	assert.Contains(t, built.Batch[0], "SELECT COUNT(*) AS pk_count")
	assert.Contains(t, built.Batch[1], "INSERT INTO")
}

func TestSessionContextPrelude_RendersOneStatementPerClaim(t *testing.T) {
	stmts := tsql.SessionContextPrelude(map[string]string{"oid": "param0"})
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "EXEC sp_set_session_context 'oid', @param0, @read_only = 0")
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

	built, err := tsql.New().BuildDelete(del)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "DELETE FROM")
	assert.Contains(t, built.SQL, "@param1")
}

func topBooksProcSource() *metadata.SourceDefinition {
	return &metadata.SourceDefinition{
		EntityName:       "TopBooks",
		Schema:           "dbo",
		Object:           "usp_top_books",
		ObjectType:       metadata.SourceObjectStoredProc,
		StoredProcParams: []string{"minYear", "limit"},
	}
}

func TestBuildExecute_RendersExecStatement(t *testing.T) {
	source := topBooksProcSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	x, err := queryir.NewExecuteStructure("TopBooks", provider, namer)
	require.NoError(t, err)
	x.BindParam(2000)
	x.BindParam(10)

	built, err := tsql.New().BuildExecute(x)

	require.NoError(t, err)
	assert.Equal(t, "EXEC [dbo].[usp_top_books] @param1, @param2", built.SQL)
	assert.EqualValues(t, 2000, built.Params["param1"].Value)
	assert.EqualValues(t, 10, built.Params["param2"].Value)
}
