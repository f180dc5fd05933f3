// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package docdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/taibuivan/dataapi/internal/queryir"
)

func TestLikeToRegex_TranslatesWildcards(t *testing.T) {
	assert.Equal(t, "^foo.*$", likeToRegex("foo%"))
	assert.Equal(t, "^f.o$", likeToRegex("f_o"))
	assert.Equal(t, "^a\\.b$", likeToRegex("a.b"))
}

func TestPredicateToBSON_Equality(t *testing.T) {
	params := map[string]queryir.Parameter{"param0": {Value: "archived"}}
	col := queryir.Column{BackingName: "status"}
	p := queryir.BinaryPredicate(queryir.ColumnOperand(col), queryir.OpEq, queryir.ParamOperand("param0"))

	got, err := predicateToBSON(p, params)

	require.NoError(t, err)
	assert.Equal(t, "archived", got["status"])
}

func TestPredicateToBSON_GreaterThan(t *testing.T) {
	params := map[string]queryir.Parameter{"param0": {Value: 10}}
	col := queryir.Column{BackingName: "views"}
	p := queryir.BinaryPredicate(queryir.ColumnOperand(col), queryir.OpGt, queryir.ParamOperand("param0"))

	got, err := predicateToBSON(p, params)

	require.NoError(t, err)
	assert.Equal(t, bson.M{"$gt": 10}, got["views"])
}

func TestPredicateToBSON_UnaryOperatorUnsupported(t *testing.T) {
	p := queryir.UnaryPredicate(queryir.OpExists, queryir.NestedOperand(nil))

	_, err := predicateToBSON(p, nil)

	assert.Error(t, err)
}

func TestFilterFrom_EmptyPredicatesAndPolicy_ReturnsEmptyFilter(t *testing.T) {
	got, err := filterFrom(nil, nil, nil)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFilterFrom_CombinesPredicatesAndPolicyWithAnd(t *testing.T) {
	params := map[string]queryir.Parameter{"param0": {Value: "draft"}, "param1": {Value: "tenant-1"}}
	predicate := queryir.BinaryPredicate(queryir.ColumnOperand(queryir.Column{BackingName: "status"}), queryir.OpEq, queryir.ParamOperand("param0"))
	policy := queryir.BinaryPredicate(queryir.ColumnOperand(queryir.Column{BackingName: "tenant_id"}), queryir.OpEq, queryir.ParamOperand("param1"))

	got, err := filterFrom([]*queryir.Predicate{predicate}, policy, params)

	require.NoError(t, err)
	and, ok := got["$and"]
	require.True(t, ok)
	assert.Len(t, and, 2)
}

func TestProjection_ExcludesMongoIDByDefault(t *testing.T) {
	cols := []queryir.LabelledColumn{{Column: queryir.Column{BackingName: "title"}, Label: "title"}}

	proj := projection(cols)

	assert.Equal(t, 0, proj["_id"])
	assert.Equal(t, 1, proj["title"])
}

func TestSortDocument_MapsDirections(t *testing.T) {
	orderBy := []queryir.OrderByColumn{
		{Column: queryir.Column{BackingName: "created_at"}, Direction: queryir.Desc},
	}

	sort := sortDocument(orderBy)

	require.Len(t, sort, 1)
	assert.Equal(t, "created_at", sort[0].Key)
	assert.Equal(t, -1, sort[0].Value)
}
