// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package graphqlgw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/metadata"
)

func TestBuildSchema_RoutesGetListAndMutationFields(t *testing.T) {
	source := bookSource()
	provider := providerWith(source)

	schema, routes, err := BuildSchema(provider)

	require.NoError(t, err)
	require.NotNil(t, schema)

	get, ok := routes["book"]
	require.True(t, ok)
	assert.Equal(t, kindGet, get.kind)
	assert.Same(t, source, get.entity)

	list, ok := routes["books"]
	require.True(t, ok)
	assert.Equal(t, kindList, list.kind)

	create, ok := routes["createBook"]
	require.True(t, ok)
	assert.Equal(t, kindCreate, create.kind)

	update, ok := routes["updateBook"]
	require.True(t, ok)
	assert.Equal(t, kindUpdate, update.kind)

	del, ok := routes["deleteBook"]
	require.True(t, ok)
	assert.Equal(t, kindDelete, del.kind)
}

func TestLowerFirst(t *testing.T) {
	assert.Equal(t, "book", lowerFirst("Book"))
	assert.Equal(t, "", lowerFirst(""))
}

func TestGraphqlScalar(t *testing.T) {
	assert.Equal(t, "Int", graphqlScalar(metadata.ColumnTypeInt))
	assert.Equal(t, "Float", graphqlScalar(metadata.ColumnTypeFloat))
	assert.Equal(t, "Boolean", graphqlScalar(metadata.ColumnTypeBool))
	assert.Equal(t, "ID", graphqlScalar(metadata.ColumnTypeUUID))
	assert.Equal(t, "String", graphqlScalar(metadata.ColumnTypeString))
}
