// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mysql implements the MY-SQL dialect builder, grounded on
`go-sql-driver/mysql`'s `?`-placeholder binding style. MySQL lacks
RETURNING, so mutations follow up with a ROW_COUNT()-guarded SELECT the
executor runs as a second statement in the same round trip, per spec.md
§4.2.
*/
package mysql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/internal/sqlengine"
	"github.com/taibuivan/dataapi/internal/sqlengine/dialect"
)

// grammar implements [dialect.Grammar] for MySQL. Placeholder renders every
// parameter as a bare `?` (MySQL binds positionally) and records the
// parameter name in emission order; each build returns that list as
// Built.ParamOrder, from which the executor builds the positional
// arguments `go-sql-driver/mysql` expects.
type grammar struct {
	order []string
}

func (g *grammar) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (g *grammar) Placeholder(paramName string) string {
	g.order = append(g.order, paramName)
	return "?"
}

func (g *grammar) OperatorText(op queryir.PredicateOperator) string {
	return dialect.StandardOperatorText(op)
}

// Builder is the MY-SQL [sqlengine.Builder].
type Builder struct{}

// New constructs a MY-SQL [Builder].
func New() *Builder { return &Builder{} }

var _ sqlengine.Builder = (*Builder)(nil)

func qualifiedTable(g *grammar, schema, object, alias string) string {
	var table string
	if schema != "" {
		table = g.QuoteIdentifier(schema) + "." + g.QuoteIdentifier(object)
	} else {
		table = g.QuoteIdentifier(object)
	}
	return table + " AS " + g.QuoteIdentifier(alias)
}

func selectList(g *grammar, source *metadata.SourceDefinition, cols []queryir.LabelledColumn) string {
	if len(cols) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(cols))
	for _, lc := range cols {
		rendered := dialect.QuoteQualifiedColumn(g, lc.Column)
		if colType, ok := columnType(source, lc.Column.BackingName); ok {
			switch colType {
			case metadata.ColumnTypeBool:
				rendered = fmt.Sprintf("CAST(%s IS TRUE AS JSON)", rendered)
			case metadata.ColumnTypeBytes:
				rendered = fmt.Sprintf("TO_BASE64(%s)", rendered)
			}
		}
		parts = append(parts, fmt.Sprintf("'%s', %s", lc.Label, rendered))
	}
	return strings.Join(parts, ", ")
}

func columnType(source *metadata.SourceDefinition, backingName string) (metadata.ColumnType, bool) {
	for _, c := range source.Columns {
		if c.BackingName == backingName {
			return c.Type, true
		}
	}
	return "", false
}

// BuildFind builds a SELECT wrapped in JSON_ARRAYAGG(JSON_OBJECT(...)) for
// a list, or a bare JSON_OBJECT(...) for a singleton, per spec.md §4.2.
func (b *Builder) BuildFind(f *queryir.FindStructure) (sqlengine.Built, error) {
	g := &grammar{}

	joins := make([]string, 0, len(f.Joins))
	for _, j := range f.Joins {
		text, err := dialect.RenderJoin(g, j)
		if err != nil {
			return sqlengine.Built{}, err
		}
		joins = append(joins, text)
	}

	readPolicy := f.GetDBPolicy(queryir.OpRead)
	where, err := dialect.RenderPredicateList(g, append([]*queryir.Predicate{readPolicy}, f.Predicates...)...)
	if err != nil {
		return sqlengine.Built{}, err
	}

	orderBy := dialect.AppendPrimaryKeyOrdering(f.OrderBy, f.Source.PrimaryKey, f.Alias)
	var orderClause string
	if len(orderBy) > 0 {
		parts := make([]string, 0, len(orderBy))
		for _, ob := range orderBy {
			dir := "ASC"
			if ob.Direction == queryir.Desc {
				dir = "DESC"
			}
			parts = append(parts, dialect.QuoteQualifiedColumn(g, ob.Column)+" "+dir)
		}
		orderClause = " ORDER BY " + strings.Join(parts, ", ")
	}

	if f.Pagination != nil {
		pagText, err := dialect.RenderKeysetPagination(g, f.Pagination)
		if err != nil {
			return sqlengine.Built{}, err
		}
		if pagText != "" {
			where = where + " AND (" + pagText + ")"
		}
	}

	limitClause := ""
	if f.Singleton {
		limitClause = " LIMIT 1"
	} else if f.Limit > 0 {
		limitClause = fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var joinText string
	if len(joins) > 0 {
		joinText = " " + strings.Join(joins, " ")
	}

	inner := fmt.Sprintf("SELECT %s FROM %s%s WHERE %s%s%s",
		plainSelectList(g, f.Columns),
		qualifiedTable(g, f.Source.Schema, f.Source.Object, f.Alias),
		joinText,
		where,
		orderClause,
		limitClause,
	)

	jsonObject := fmt.Sprintf("JSON_OBJECT(%s)", selectList(g, f.Source, f.Columns))
	var outer string
	if f.Singleton {
		outer = fmt.Sprintf("SELECT %s AS data FROM (%s) subq", jsonObject, inner)
	} else {
		outer = fmt.Sprintf("SELECT COALESCE(JSON_ARRAYAGG(%s), JSON_ARRAY()) AS data FROM (%s) subq", jsonObject, inner)
	}

	return sqlengine.Built{SQL: outer, Params: f.Parameters, ParamOrder: g.order}, nil
}

// plainSelectList renders the inner subquery's column list (no JSON
// wrapping — that happens in the outer JSON_OBJECT(...) projection).
func plainSelectList(g *grammar, cols []queryir.LabelledColumn) string {
	if len(cols) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(cols))
	for _, lc := range cols {
		parts = append(parts, fmt.Sprintf("%s AS %s", dialect.QuoteQualifiedColumn(g, lc.Column), g.QuoteIdentifier(lc.Label)))
	}
	return strings.Join(parts, ", ")
}

// BuildInsert builds an INSERT; the executor follows up with a
// ROW_COUNT()-guarded SELECT to recover generated/default column values,
// since MySQL has no RETURNING clause.
func (b *Builder) BuildInsert(ins *queryir.InsertStructure) (sqlengine.Built, error) {
	g := &grammar{}

	cols := make([]string, 0, len(ins.Values))
	placeholders := make([]string, 0, len(ins.Values))
	for _, backing := range sortedKeys(ins.Values) {
		cols = append(cols, g.QuoteIdentifier(backing))
		placeholders = append(placeholders, g.Placeholder(ins.Values[backing]))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifiedTable(g, ins.Source.Schema, ins.Source.Object, ins.Alias),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)

	followUp := fmt.Sprintf("SELECT %s FROM %s WHERE ROW_COUNT() > 0 AND %s = LAST_INSERT_ID()",
		selectList(g, ins.Source, ins.Returning),
		qualifiedTable(g, ins.Source.Schema, ins.Source.Object, ins.Alias),
		firstPrimaryKeyColumn(g, ins.Source),
	)

	return sqlengine.Built{SQL: sql, Params: ins.Parameters, Batch: []string{followUp}, ParamOrder: g.order}, nil
}

func firstPrimaryKeyColumn(g *grammar, source *metadata.SourceDefinition) string {
	if len(source.PrimaryKey) == 0 {
		return "1"
	}
	return g.QuoteIdentifier(source.PrimaryKey[0])
}

// BuildUpdate builds an UPDATE; the follow-up SELECT recovers the updated
// row the same way BuildInsert's does.
func (b *Builder) BuildUpdate(upd *queryir.UpdateStructure) (sqlengine.Built, error) {
	g := &grammar{}

	sets := make([]string, 0, len(upd.Values))
	for _, backing := range sortedKeys(upd.Values) {
		sets = append(sets, fmt.Sprintf("%s = %s", g.QuoteIdentifier(backing), g.Placeholder(upd.Values[backing])))
	}

	policy := upd.GetDBPolicy(queryir.OpUpdate)
	where, err := dialect.RenderPredicateList(g, append([]*queryir.Predicate{policy}, upd.Predicates...)...)
	if err != nil {
		return sqlengine.Built{}, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		qualifiedTable(g, upd.Source.Schema, upd.Source.Object, upd.Alias),
		strings.Join(sets, ", "),
		where,
	)

	followUp := fmt.Sprintf("SELECT %s FROM %s WHERE ROW_COUNT() > 0 AND %s",
		selectList(g, upd.Source, upd.Returning),
		qualifiedTable(g, upd.Source.Schema, upd.Source.Object, upd.Alias),
		where,
	)

	return sqlengine.Built{SQL: sql, Params: upd.Parameters, Batch: []string{followUp}, ParamOrder: g.order}, nil
}

// BuildDelete builds a DELETE … WHERE statement.
func (b *Builder) BuildDelete(del *queryir.DeleteStructure) (sqlengine.Built, error) {
	g := &grammar{}

	policy := del.GetDBPolicy(queryir.OpDelete)
	where, err := dialect.RenderPredicateList(g, append([]*queryir.Predicate{policy}, del.Predicates...)...)
	if err != nil {
		return sqlengine.Built{}, err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", qualifiedTable(g, del.Source.Schema, del.Source.Object, del.Alias), where)
	return sqlengine.Built{SQL: sql, Params: del.Parameters, ParamOrder: g.order}, nil
}

// BuildUpsert builds an INSERT … ON DUPLICATE KEY UPDATE, with a follow-up
// select keyed on LAST_INSERT_ID(); ROW_COUNT() returns 1 for a plain
// insert and 2 for a duplicate-key update under MySQL's client flag
// CLIENT_FOUND_ROWS off, which the executor's classification logic reads.
func (b *Builder) BuildUpsert(u *queryir.UpsertStructure) (sqlengine.Built, error) {
	g := &grammar{}

	cols := make([]string, 0, len(u.Values))
	placeholders := make([]string, 0, len(u.Values))
	for _, backing := range sortedKeys(u.Values) {
		cols = append(cols, g.QuoteIdentifier(backing))
		placeholders = append(placeholders, g.Placeholder(u.Values[backing]))
	}

	updates := make([]string, 0, len(u.Values))
	for _, backing := range sortedKeys(u.Values) {
		updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", g.QuoteIdentifier(backing), g.QuoteIdentifier(backing)))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		qualifiedTable(g, u.Source.Schema, u.Source.Object, u.Alias),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	followUp := fmt.Sprintf("SELECT %s FROM %s WHERE %s = LAST_INSERT_ID()",
		selectList(g, u.Source, u.Returning),
		qualifiedTable(g, u.Source.Schema, u.Source.Object, u.Alias),
		firstPrimaryKeyColumn(g, u.Source),
	)

	return sqlengine.Built{SQL: sql, Params: u.Parameters, Batch: []string{followUp}, ParamOrder: g.order}, nil
}

// BuildExecute renders a CALL statement invoking a stored procedure with its
// positional `?`-bound parameters, per spec.md §4.2's execution contract.
func (b *Builder) BuildExecute(x *queryir.ExecuteStructure) (sqlengine.Built, error) {
	g := &grammar{}

	placeholders := make([]string, 0, len(x.Params))
	for _, name := range x.Params {
		placeholders = append(placeholders, g.Placeholder(name))
	}

	object := g.QuoteIdentifier(x.Source.Object)
	if x.Source.Schema != "" {
		object = g.QuoteIdentifier(x.Source.Schema) + "." + object
	}

	sql := fmt.Sprintf("CALL %s(%s)", object, strings.Join(placeholders, ", "))
	return sqlengine.Built{SQL: sql, Params: x.Parameters, ParamOrder: g.order}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
