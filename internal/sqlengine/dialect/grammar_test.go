// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/internal/sqlengine/dialect"
)

// fakeGrammar is a minimal [dialect.Grammar] exercising the shared renderers
// without committing to any one dialect's quoting/placeholder spelling.
type fakeGrammar struct{}

func (fakeGrammar) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (fakeGrammar) Placeholder(paramName string) string { return "?" + paramName }
func (fakeGrammar) OperatorText(op queryir.PredicateOperator) string {
	return dialect.StandardOperatorText(op)
}

func idCol(alias, backing string) queryir.Column {
	return queryir.Column{TableAlias: alias, BackingName: backing}
}

func TestRenderKeysetPagination_SingleColumn_RendersComparison(t *testing.T) {
	pag := &queryir.KeysetPaginationPredicate{
		Columns: []queryir.KeysetColumn{
			{Column: idCol("t0", "id"), ParamName: "param0", Value: 42, Direction: queryir.Asc},
		},
	}

	text, err := dialect.RenderKeysetPagination(fakeGrammar{}, pag)

	require.NoError(t, err)
	assert.Equal(t, `"t0"."id" > ?param0`, text)
}

func TestRenderKeysetPagination_SingleColumn_NullValue_FallsBackToIsNull(t *testing.T) {
	pag := &queryir.KeysetPaginationPredicate{
		Columns: []queryir.KeysetColumn{
			{Column: idCol("t0", "archived_at"), ParamName: "param0", Value: nil, Direction: queryir.Desc},
		},
	}

	text, err := dialect.RenderKeysetPagination(fakeGrammar{}, pag)

	require.NoError(t, err)
	assert.Equal(t, `"t0"."archived_at" IS NULL`, text)
}

func TestRenderKeysetPagination_MultiColumn_RendersOrOfConjuncts(t *testing.T) {
	pag := &queryir.KeysetPaginationPredicate{
		Columns: []queryir.KeysetColumn{
			{Column: idCol("t0", "year"), ParamName: "param0", Value: 2020, Direction: queryir.Asc},
			{Column: idCol("t0", "id"), ParamName: "param1", Value: 7, Direction: queryir.Asc},
		},
	}

	text, err := dialect.RenderKeysetPagination(fakeGrammar{}, pag)

	require.NoError(t, err)
	assert.Equal(t,
		`("t0"."year" > ?param0) OR ("t0"."year" = ?param0 AND "t0"."id" > ?param1)`,
		text,
	)
}

func TestRenderKeysetPagination_MultiColumn_NullTieBreakColumn_RendersIsNull(t *testing.T) {
	pag := &queryir.KeysetPaginationPredicate{
		Columns: []queryir.KeysetColumn{
			{Column: idCol("t0", "year"), ParamName: "param0", Value: nil, Direction: queryir.Asc},
			{Column: idCol("t0", "id"), ParamName: "param1", Value: 7, Direction: queryir.Asc},
		},
	}

	text, err := dialect.RenderKeysetPagination(fakeGrammar{}, pag)

	require.NoError(t, err)
	assert.Equal(t,
		`("t0"."year" IS NULL) OR ("t0"."year" IS NULL AND "t0"."id" > ?param1)`,
		text,
	)
}

func TestRenderKeysetPagination_NilPredicate_ReturnsEmpty(t *testing.T) {
	text, err := dialect.RenderKeysetPagination(fakeGrammar{}, nil)

	require.NoError(t, err)
	assert.Empty(t, text)
}
