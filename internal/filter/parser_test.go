// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/filter"
)

func TestParse_SimpleComparison(t *testing.T) {
	expr, err := filter.Parse("status eq 'active'")
	require.NoError(t, err)

	bin, ok := expr.(*filter.Binary)
	require.True(t, ok)
	assert.Equal(t, filter.OpEq, bin.Op)

	col, ok := bin.Left.(*filter.ColumnRef)
	require.True(t, ok)
	assert.Equal(t, "status", col.Name)

	lit, ok := bin.Right.(*filter.Literal)
	require.True(t, ok)
	assert.Equal(t, filter.LiteralString, lit.Kind)
	assert.Equal(t, "active", lit.Str)
}

func TestParse_ClaimReference(t *testing.T) {
	expr, err := filter.Parse("ownerId eq @claims.oid")
	require.NoError(t, err)

	bin, ok := expr.(*filter.Binary)
	require.True(t, ok)

	claim, ok := bin.Right.(*filter.ClaimRef)
	require.True(t, ok)
	assert.Equal(t, "oid", claim.ClaimType)
}

func TestParse_AndOrPrecedence(t *testing.T) {
	expr, err := filter.Parse("a eq 1 and b eq 2 or c eq 3")
	require.NoError(t, err)

	top, ok := expr.(*filter.Binary)
	require.True(t, ok)
	assert.Equal(t, filter.OpOr, top.Op)

	left, ok := top.Left.(*filter.Binary)
	require.True(t, ok)
	assert.Equal(t, filter.OpAnd, left.Op)
}

func TestParse_Parentheses(t *testing.T) {
	expr, err := filter.Parse("(a eq 1 or b eq 2) and c eq 3")
	require.NoError(t, err)

	top, ok := expr.(*filter.Binary)
	require.True(t, ok)
	assert.Equal(t, filter.OpAnd, top.Op)

	_, ok = top.Left.(*filter.Binary)
	require.True(t, ok)
}

func TestParse_ItemReference(t *testing.T) {
	expr, err := filter.Parse("@item.ownerId eq @claims.oid")
	require.NoError(t, err)

	bin := expr.(*filter.Binary)
	item, ok := bin.Left.(*filter.ItemRef)
	require.True(t, ok)
	assert.Equal(t, "ownerId", item.FieldName)
}

func TestParse_ContainsFunction(t *testing.T) {
	expr, err := filter.Parse("contains(name, 'abc')")
	require.NoError(t, err)

	bin := expr.(*filter.Binary)
	assert.Equal(t, filter.OpContains, bin.Op)
}

func TestParse_UnterminatedString(t *testing.T) {
	_, err := filter.Parse("name eq 'abc")
	assert.Error(t, err)
}

func TestParse_TrailingGarbage(t *testing.T) {
	_, err := filter.Parse("a eq 1 )")
	assert.Error(t, err)
}
