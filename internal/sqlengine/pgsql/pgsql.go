// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package pgsql implements the PG-SQL dialect builder, mirroring the
teacher's own PostgreSQL/pgx stack (internal/platform/postgres). Bound
parameters render as pgx-style positional placeholders ($1, $2, …); the
executor translates the structure's named parameter map into positional
arguments in placeholder order at execute time.
*/
package pgsql

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/internal/sqlengine"
	"github.com/taibuivan/dataapi/internal/sqlengine/dialect"
)

// grammar implements [dialect.Grammar] for PostgreSQL.
type grammar struct {
	// order fixes each parameter name's positional index so Placeholder
	// renders a stable $N across repeated calls within one build.
	order map[string]int
}

func newGrammar(paramOrder []string) *grammar {
	g := &grammar{order: make(map[string]int, len(paramOrder))}
	for i, name := range paramOrder {
		g.order[name] = i + 1
	}
	return g
}

func (g *grammar) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (g *grammar) Placeholder(paramName string) string {
	if idx, ok := g.order[paramName]; ok {
		return "$" + strconv.Itoa(idx)
	}
	return "$" + paramName
}

func (g *grammar) OperatorText(op queryir.PredicateOperator) string {
	return dialect.StandardOperatorText(op)
}

// Builder is the PG-SQL [sqlengine.Builder].
type Builder struct{}

// New constructs a PG-SQL [Builder].
func New() *Builder { return &Builder{} }

var _ sqlengine.Builder = (*Builder)(nil)

// paramOrder returns the deterministic positional order (by parameter
// counter suffix) pgx needs for $N-style binding.
func paramOrder(params map[string]queryir.Parameter) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return paramIndex(names[i]) < paramIndex(names[j]) })
	return names
}

func paramIndex(name string) int {
	var n int
	_, _ = fmt.Sscanf(name, "param%d", &n)
	return n
}

// selectList renders the projected/aggregated column list for a subquery,
// applying PG-SQL's byte-array base64 quirk (spec.md §4.2).
func selectList(g *grammar, source *metadata.SourceDefinition, cols []queryir.LabelledColumn) string {
	parts := make([]string, 0, len(cols))
	for _, lc := range cols {
		rendered := dialect.QuoteQualifiedColumn(g, lc.Column)
		if colType, ok := columnType(source, lc.Column.BackingName); ok && colType == metadata.ColumnTypeBytes {
			rendered = fmt.Sprintf("encode(%s, 'base64')", rendered)
		}
		parts = append(parts, fmt.Sprintf("%s AS %s", rendered, g.QuoteIdentifier(lc.Label)))
	}
	if len(parts) == 0 {
		return "*"
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

func qualifiedTable(g *grammar, source *metadata.SourceDefinition, alias string) string {
	var table string
	if source.Schema != "" {
		table = g.QuoteIdentifier(source.Schema) + "." + g.QuoteIdentifier(source.Object)
	} else {
		table = g.QuoteIdentifier(source.Object)
	}
	return table + " AS " + g.QuoteIdentifier(alias)
}

// BuildFind builds the dialect's SELECT, wrapping it in the PG-SQL JSON
// shaping forms spec.md §4.2 specifies: jsonb_agg for a list, to_jsonb for
// a singleton.
func (b *Builder) BuildFind(f *queryir.FindStructure) (sqlengine.Built, error) {
	order := paramOrder(f.Parameters)
	g := newGrammar(order)

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
	if f.Limit > 0 && !f.Singleton {
		limitClause = fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Singleton {
		limitClause = " LIMIT 1"
	}

	inner := fmt.Sprintf("SELECT %s FROM %s%s WHERE %s%s%s",
		selectList(g, f.Source, f.Columns),
		qualifiedTable(g, f.Source, f.Alias),
		joinClause(joins),
		where,
		orderClause,
		limitClause,
	)

	var outer string
	if f.Singleton {
		outer = fmt.Sprintf("SELECT to_jsonb(subq) AS data FROM (%s) subq", inner)
	} else {
		outer = fmt.Sprintf("SELECT COALESCE(jsonb_agg(to_jsonb(subq)), '[]') AS data FROM (%s) subq", inner)
	}

	return sqlengine.Built{SQL: outer, Params: f.Parameters, ParamOrder: order}, nil
}

func joinClause(joins []string) string {
	if len(joins) == 0 {
		return ""
	}
	return " " + strings.Join(joins, " ")
}

// BuildInsert builds an INSERT … RETURNING statement.
func (b *Builder) BuildInsert(ins *queryir.InsertStructure) (sqlengine.Built, error) {
	order := paramOrder(ins.Parameters)
	g := newGrammar(order)

	cols := make([]string, 0, len(ins.Values))
	placeholders := make([]string, 0, len(ins.Values))
	backingNames := sortedKeys(ins.Values)
	for _, backing := range backingNames {
		cols = append(cols, g.QuoteIdentifier(backing))
		placeholders = append(placeholders, g.Placeholder(ins.Values[backing]))
	}

	returning := "*"
	if len(ins.Returning) > 0 {
		returning = selectList(g, ins.Source, ins.Returning)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		qualifiedTable(g, ins.Source, ins.Alias),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		returning,
	)
	return sqlengine.Built{SQL: sql, Params: ins.Parameters, ParamOrder: order}, nil
}

// BuildUpdate builds an UPDATE … WHERE <policy AND predicates> RETURNING.
func (b *Builder) BuildUpdate(upd *queryir.UpdateStructure) (sqlengine.Built, error) {
	order := paramOrder(upd.Parameters)
	g := newGrammar(order)

	sets := make([]string, 0, len(upd.Values))
	for _, backing := range sortedKeys(upd.Values) {
		sets = append(sets, fmt.Sprintf("%s = %s", g.QuoteIdentifier(backing), g.Placeholder(upd.Values[backing])))
	}

	policy := upd.GetDBPolicy(queryir.OpUpdate)
	where, err := dialect.RenderPredicateList(g, append([]*queryir.Predicate{policy}, upd.Predicates...)...)
	if err != nil {
		return sqlengine.Built{}, err
	}

	returning := "*"
	if len(upd.Returning) > 0 {
		returning = selectList(g, upd.Source, upd.Returning)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		qualifiedTable(g, upd.Source, upd.Alias),
		strings.Join(sets, ", "),
		where,
		returning,
	)
	return sqlengine.Built{SQL: sql, Params: upd.Parameters, ParamOrder: order}, nil
}

// BuildDelete builds a DELETE … WHERE <policy AND predicates>.
func (b *Builder) BuildDelete(del *queryir.DeleteStructure) (sqlengine.Built, error) {
	order := paramOrder(del.Parameters)
	g := newGrammar(order)

	policy := del.GetDBPolicy(queryir.OpDelete)
	where, err := dialect.RenderPredicateList(g, append([]*queryir.Predicate{policy}, del.Predicates...)...)
	if err != nil {
		return sqlengine.Built{}, err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", qualifiedTable(g, del.Source, del.Alias), where)
	return sqlengine.Built{SQL: sql, Params: del.Parameters, ParamOrder: order}, nil
}

// BuildUpsert builds the CTE-based PG-SQL upsert of spec.md §4.2: an
// update_cte that reports 'updated' when it affects a row, an insert_cte
// guarded by NOT EXISTS(SELECT 1 FROM update_cte) that reports 'inserted',
// unioned together so the executor can read back which branch ran.
func (b *Builder) BuildUpsert(u *queryir.UpsertStructure) (sqlengine.Built, error) {
	order := paramOrder(u.Parameters)
	g := newGrammar(order)

	sets := make([]string, 0, len(u.Values))
	for _, backing := range sortedKeys(u.Values) {
		sets = append(sets, fmt.Sprintf("%s = %s", g.QuoteIdentifier(backing), g.Placeholder(u.Values[backing])))
	}

	updatePolicy := u.GetDBPolicy(queryir.OpUpdate)
	updateWhere, err := dialect.RenderPredicateList(g, append([]*queryir.Predicate{updatePolicy}, u.Predicates...)...)
	if err != nil {
		return sqlengine.Built{}, err
	}

	cols := make([]string, 0, len(u.Values))
	placeholders := make([]string, 0, len(u.Values))
	for _, backing := range sortedKeys(u.Values) {
		cols = append(cols, g.QuoteIdentifier(backing))
		placeholders = append(placeholders, g.Placeholder(u.Values[backing]))
	}

	returning := "*"
	if len(u.Returning) > 0 {
		returning = selectList(g, u.Source, u.Returning)
	}

	table := qualifiedTable(g, u.Source, u.Alias)

	sql := fmt.Sprintf(
		"WITH update_cte AS (UPDATE %s SET %s WHERE %s RETURNING %s, 'updated' AS op), "+
			"insert_cte AS (INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM update_cte) RETURNING %s, 'inserted' AS op) "+
			"SELECT * FROM update_cte UNION SELECT * FROM insert_cte",
		table, strings.Join(sets, ", "), updateWhere, returning,
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), returning,
	)

	return sqlengine.Built{SQL: sql, Params: u.Parameters, ParamOrder: order}, nil
}

// BuildExecute calls a stored procedure as a set-returning function, per
// SPEC_FULL.md's Execute operation: positional parameters, rows read back
// by the executor's row-set reader as one column-name-to-value map per row
// (BuildFind's output is instead read as a single JSON value).
func (b *Builder) BuildExecute(x *queryir.ExecuteStructure) (sqlengine.Built, error) {
	order := paramOrder(x.Parameters)
	g := newGrammar(order)

	placeholders := make([]string, 0, len(x.Params))
	for _, name := range x.Params {
		placeholders = append(placeholders, g.Placeholder(name))
	}

	sql := fmt.Sprintf("SELECT * FROM %s(%s)", qualifiedObject(g, x.Source), strings.Join(placeholders, ", "))
	return sqlengine.Built{SQL: sql, Params: x.Parameters, ParamOrder: order}, nil
}

func qualifiedObject(g *grammar, source *metadata.SourceDefinition) string {
	if source.Schema != "" {
		return g.QuoteIdentifier(source.Schema) + "." + g.QuoteIdentifier(source.Object)
	}
	return g.QuoteIdentifier(source.Object)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
