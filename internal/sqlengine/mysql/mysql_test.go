// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mysql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/internal/sqlengine/mysql"
)

func notesSource() *metadata.SourceDefinition {
	return &metadata.SourceDefinition{
		EntityName: "Note",
		Schema:     "",
		Object:     "notes",
		Columns: []metadata.ColumnDef{
			{ExposedName: "id", BackingName: "id", Type: metadata.ColumnTypeInt},
			{ExposedName: "title", BackingName: "title", Type: metadata.ColumnTypeString},
			{ExposedName: "archived", BackingName: "archived", Type: metadata.ColumnTypeBool},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestBuildFind_List_WrapsInJSONArrayAgg(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	f, err := queryir.NewFindStructure("Note", provider, namer)
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("id"))
	require.NoError(t, f.AddColumn("title"))

	built, err := mysql.New().BuildFind(f)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "JSON_ARRAYAGG(JSON_OBJECT(")
	assert.Contains(t, built.SQL, "COALESCE(")
	assert.Contains(t, built.SQL, "JSON_ARRAY())")
	assert.Contains(t, built.SQL, "`notes`")
}

func TestBuildFind_Singleton_UsesBareJSONObject(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	f, err := queryir.NewFindStructure("Note", provider, namer)
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("id"))
	f.Singleton = true

	built, err := mysql.New().BuildFind(f)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "SELECT JSON_OBJECT(")
	assert.NotContains(t, built.SQL, "JSON_ARRAYAGG")
	assert.Contains(t, built.SQL, "LIMIT 1")
}

func TestBuildFind_BoolAndBytesColumns_ApplyTypeQuirks(t *testing.T) {
	source := &metadata.SourceDefinition{
		EntityName: "Note",
		Object:     "notes",
		Columns: []metadata.ColumnDef{
			{ExposedName: "archived", BackingName: "archived", Type: metadata.ColumnTypeBool},
			{ExposedName: "blob", BackingName: "blob", Type: metadata.ColumnTypeBytes},
		},
		PrimaryKey: []string{"archived"},
	}
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	f, err := queryir.NewFindStructure("Note", provider, namer)
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("archived"))
	require.NoError(t, f.AddColumn("blob"))

	built, err := mysql.New().BuildFind(f)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "CAST(")
	assert.Contains(t, built.SQL, "IS TRUE AS JSON)")
	assert.Contains(t, built.SQL, "TO_BASE64(")
}

func TestBuildInsert_ProducesRowCountGuardedFollowUp(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	ins, err := queryir.NewInsertStructure("Note", provider, namer)
	require.NoError(t, err)
	ins.SetValue("title", "hello")

	built, err := mysql.New().BuildInsert(ins)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "INSERT INTO `notes`")
	assert.NotContains(t, built.SQL, "RETURNING")
	require.Len(t, built.Batch, 1)
	assert.Contains(t, built.Batch[0], "ROW_COUNT() > 0")
	assert.Contains(t, built.Batch[0], "LAST_INSERT_ID()")
}

func TestBuildUpsert_UsesOnDuplicateKeyUpdate(t *testing.T) {
	source := notesSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	u, err := queryir.NewUpsertStructure("Note", provider, namer, false)
	require.NoError(t, err)
	u.SetValue("id", 1)
	u.SetValue("title", "hello")

	built, err := mysql.New().BuildUpsert(u)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "ON DUPLICATE KEY UPDATE")
	assert.Contains(t, built.SQL, "VALUES(`title`)")
	require.Len(t, built.Batch, 1)
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

	built, err := mysql.New().BuildDelete(del)
	require.NoError(t, err)
	assert.Contains(t, built.SQL, "DELETE FROM `notes`")
	assert.Contains(t, built.SQL, "WHERE")
	assert.Contains(t, built.SQL, "?")
}

func topBooksProcSource() *metadata.SourceDefinition {
	return &metadata.SourceDefinition{
		EntityName:       "TopBooks",
		Schema:           "",
		Object:           "top_books",
		ObjectType:       metadata.SourceObjectStoredProc,
		StoredProcParams: []string{"minYear", "limit"},
	}
}

func TestBuildExecute_RendersCallStatement(t *testing.T) {
	source := topBooksProcSource()
	provider := metadata.NewProvider([]*metadata.SourceDefinition{source})
	namer := queryir.NewNamer()
	x, err := queryir.NewExecuteStructure("TopBooks", provider, namer)
	require.NoError(t, err)
	x.BindParam(2000)
	x.BindParam(10)

	built, err := mysql.New().BuildExecute(x)

	require.NoError(t, err)
	assert.Equal(t, "CALL `top_books`(?, ?)", built.SQL)
	require.Len(t, built.ParamOrder, 2)
	assert.EqualValues(t, 2000, built.Params[built.ParamOrder[0]].Value)
	assert.EqualValues(t, 10, built.Params[built.ParamOrder[1]].Value)
}
