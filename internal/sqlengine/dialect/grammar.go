// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package dialect holds the rendering logic shared by all three SQL
builders — quoting, column/predicate/join text, and the keyset-pagination
algorithm, which spec.md §4.2 states is identical across dialects. Each
concrete dialect package (tsql, pgsql, mysql) supplies a [Grammar] and
calls into the shared renderers here; only JSON shaping and mutation
statement shape (RETURNING vs OUTPUT vs ROW_COUNT()) differ per dialect
and live in the dialect packages themselves.
*/
package dialect

import (
	"fmt"
	"strings"

	"github.com/taibuivan/dataapi/internal/queryir"
)

// Grammar is the minimal per-dialect vocabulary the shared renderers need.
type Grammar interface {
	// QuoteIdentifier wraps name in the dialect's identifier delimiter,
	// escaping any embedded delimiter.
	QuoteIdentifier(name string) string
	// Placeholder renders a bound parameter name into dialect-specific SQL
	// text (e.g. "@param0", "$1", "?").
	Placeholder(paramName string) string
	// OperatorText maps a [queryir.PredicateOperator] to its SQL token; the
	// map is the same set across dialects, but kept per-grammar so a
	// dialect could diverge without touching shared code.
	OperatorText(op queryir.PredicateOperator) string
}

// QuoteQualifiedColumn renders a column using the three-form preference
// order of spec.md §4.2: alias.col, else schema.table.col, else table.col.
func QuoteQualifiedColumn(g Grammar, col queryir.Column) string {
	switch {
	case col.TableAlias != "":
		return g.QuoteIdentifier(col.TableAlias) + "." + g.QuoteIdentifier(col.BackingName)
	case col.Schema != "":
		return g.QuoteIdentifier(col.Schema) + "." + g.QuoteIdentifier(col.Table) + "." + g.QuoteIdentifier(col.BackingName)
	default:
		return g.QuoteIdentifier(col.Table) + "." + g.QuoteIdentifier(col.BackingName)
	}
}

// RenderOperand renders a single predicate operand to SQL text.
func RenderOperand(g Grammar, operand queryir.PredicateOperand) (string, error) {
	switch operand.Kind {
	case queryir.OperandColumn:
		return QuoteQualifiedColumn(g, operand.Column), nil
	case queryir.OperandLiteral:
		if operand.ParamName == "" {
			return "NULL", nil
		}
		return g.Placeholder(operand.ParamName), nil
	case queryir.OperandPredicate:
		text, err := RenderPredicate(g, operand.Predicate)
		if err != nil {
			return "", err
		}
		return "(" + text + ")", nil
	default:
		return "", fmt.Errorf("dialect: unsupported operand kind %v", operand.Kind)
	}
}

// RenderPredicate renders p (binary or unary) to SQL text, honoring
// p.AddParens exactly as spec.md §4.2 describes.
func RenderPredicate(g Grammar, p *queryir.Predicate) (string, error) {
	if p == nil {
		return "", nil
	}

	var text string
	if p.Left == nil {
		// Unary: `op ( right )`.
		right, err := RenderOperand(g, p.Right)
		if err != nil {
			return "", err
		}
		text = fmt.Sprintf("%s (%s)", g.OperatorText(queryir.PredicateOperator(p.Op)), right)
	} else {
		left, err := RenderOperand(g, *p.Left)
		if err != nil {
			return "", err
		}
		right, err := RenderOperand(g, p.Right)
		if err != nil {
			return "", err
		}
		text = fmt.Sprintf("%s %s %s", left, g.OperatorText(p.Op), right)
	}

	if p.AddParens {
		return "(" + text + ")", nil
	}
	return text, nil
}

// RenderPredicateList joins predicates with AND, falling back to the
// canonical "1 = 1" when the list is empty so the statement is always
// syntactically valid — spec.md §4.2's base predicate rule.
func RenderPredicateList(g Grammar, predicates ...*queryir.Predicate) (string, error) {
	var parts []string
	for _, p := range predicates {
		if p == nil {
			continue
		}
		text, err := RenderPredicate(g, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(parts, " AND "), nil
}

// RenderJoin renders an INNER JOIN clause; schema is omitted when empty.
func RenderJoin(g Grammar, j queryir.JoinStructure) (string, error) {
	var object string
	if j.Schema != "" {
		object = g.QuoteIdentifier(j.Schema) + "." + g.QuoteIdentifier(j.Object)
	} else {
		object = g.QuoteIdentifier(j.Object)
	}
	onClause, err := RenderPredicateList(g, j.Predicates...)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INNER JOIN %s AS %s ON %s", object, g.QuoteIdentifier(j.Alias), onClause), nil
}

func cmpOperator(d queryir.Direction) queryir.PredicateOperator {
	if d == queryir.Desc {
		return queryir.OpLt
	}
	return queryir.OpGt
}

// RenderKeysetPagination renders the ordered tuple-comparison chain of
// spec.md §4.2. For k=1 it emits a single comparison, falling back to
// `IS NULL` when the bound cursor value is itself NULL; for k>1 it emits
// the OR-of-conjuncts form, with every equality tie-break conjunct against
// a NULL right-hand value rendered as `IS NULL` rather than `= <param>`
// (a SQL `= NULL` is always unknown, never true).
func RenderKeysetPagination(g Grammar, pag *queryir.KeysetPaginationPredicate) (string, error) {
	if pag == nil || len(pag.Columns) == 0 {
		return "", nil
	}

	cols := pag.Columns
	if len(cols) == 1 {
		c := cols[0]
		if c.Value == nil {
			return fmt.Sprintf("%s IS NULL", QuoteQualifiedColumn(g, c.Column)), nil
		}
		return fmt.Sprintf("%s %s %s", QuoteQualifiedColumn(g, c.Column), g.OperatorText(cmpOperator(c.Direction)), g.Placeholder(c.ParamName)), nil
	}

	var disjuncts []string
	for i := range cols {
		var conjuncts []string
		for j := 0; j < i; j++ {
			eq := cols[j]
			if eq.Value == nil {
				conjuncts = append(conjuncts, fmt.Sprintf("%s IS NULL", QuoteQualifiedColumn(g, eq.Column)))
				continue
			}
			conjuncts = append(conjuncts, fmt.Sprintf("%s %s %s", QuoteQualifiedColumn(g, eq.Column), g.OperatorText(queryir.OpEq), g.Placeholder(eq.ParamName)))
		}
		cur := cols[i]
		if cur.Value == nil {
			conjuncts = append(conjuncts, fmt.Sprintf("%s IS NULL", QuoteQualifiedColumn(g, cur.Column)))
		} else {
			conjuncts = append(conjuncts, fmt.Sprintf("%s %s %s", QuoteQualifiedColumn(g, cur.Column), g.OperatorText(cmpOperator(cur.Direction)), g.Placeholder(cur.ParamName)))
		}
		disjuncts = append(disjuncts, "("+strings.Join(conjuncts, " AND ")+")")
	}
	return strings.Join(disjuncts, " OR "), nil
}

// AppendPrimaryKeyOrdering appends pkColumns (in PK order, ASC by default)
// to orderBy when not already present, guaranteeing the total ordering
// spec.md §3 requires of every keyset cursor.
func AppendPrimaryKeyOrdering(orderBy []queryir.OrderByColumn, pkColumns []string, tableAlias string) []queryir.OrderByColumn {
	present := make(map[string]bool, len(orderBy))
	for _, ob := range orderBy {
		present[ob.Column.BackingName] = true
	}
	for _, pk := range pkColumns {
		if present[pk] {
			continue
		}
		orderBy = append(orderBy, queryir.OrderByColumn{
			Column:    queryir.Column{TableAlias: tableAlias, BackingName: pk},
			Direction: queryir.Asc,
		})
	}
	return orderBy
}

// StandardOperatorText maps the operator set common to all three dialects
// (spec.md §4.2's "Operator map"); dialects embed this in their Grammar and
// override only where their SQL token genuinely differs.
func StandardOperatorText(op queryir.PredicateOperator) string {
	switch op {
	case queryir.OpEq:
		return "="
	case queryir.OpGt:
		return ">"
	case queryir.OpLt:
		return "<"
	case queryir.OpGte:
		return ">="
	case queryir.OpLte:
		return "<="
	case queryir.OpNeq:
		return "!="
	case queryir.OpAnd:
		return "AND"
	case queryir.OpOr:
		return "OR"
	case queryir.OpLike:
		return "LIKE"
	case queryir.OpNotLike:
		return "NOT LIKE"
	case queryir.OpIs:
		return "IS"
	case queryir.OpIsNot:
		return "IS NOT"
	case queryir.OpExists:
		return "EXISTS"
	default:
		return string(op)
	}
}
