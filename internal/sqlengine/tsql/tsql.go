// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package tsql implements the T-SQL (SQL Server) dialect builder, grounded on
the `denisenkom/go-mssqldb` driver's named-parameter (@pN) binding style.
It is the only dialect with a session-context prelude, OUTPUT INSERTED.*
mutations, and a two-batch upsert classification query (spec.md §4.2, §4.7).
*/
package tsql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/internal/sqlengine"
	"github.com/taibuivan/dataapi/internal/sqlengine/dialect"
)

type grammar struct{}

func (grammar) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (grammar) Placeholder(paramName string) string { return "@" + paramName }

func (grammar) OperatorText(op queryir.PredicateOperator) string {
	return dialect.StandardOperatorText(op)
}

// Builder is the T-SQL [sqlengine.Builder].
type Builder struct{}

// New constructs a T-SQL [Builder].
func New() *Builder { return &Builder{} }

var _ sqlengine.Builder = (*Builder)(nil)

func qualifiedTable(g grammar, schema, object, alias string) string {
	var table string
	if schema != "" {
		table = g.QuoteIdentifier(schema) + "." + g.QuoteIdentifier(object)
	} else {
		table = g.QuoteIdentifier(object)
	}
	return table + " AS " + g.QuoteIdentifier(alias)
}

func selectList(g grammar, cols []queryir.LabelledColumn) string {
	if len(cols) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(cols))
	for _, lc := range cols {
		parts = append(parts, fmt.Sprintf("%s AS %s", dialect.QuoteQualifiedColumn(g, lc.Column), g.QuoteIdentifier(lc.Label)))
	}
	return strings.Join(parts, ", ")
}

// BuildFind builds a SELECT … FOR JSON PATH query, switching to
// WITHOUT_ARRAY_WRAPPER for singleton lookups per spec.md §4.2.
func (b *Builder) BuildFind(f *queryir.FindStructure) (sqlengine.Built, error) {
	var g grammar

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

	top := ""
	if f.Limit > 0 && !f.Singleton {
		top = fmt.Sprintf("TOP (%d) ", f.Limit)
	}

	jsonClause := "FOR JSON PATH, INCLUDE_NULL_VALUES"
	if f.Singleton {
		jsonClause = "FOR JSON PATH, INCLUDE_NULL_VALUES, WITHOUT_ARRAY_WRAPPER"
	}

	var joinText string
	if len(joins) > 0 {
		joinText = " " + strings.Join(joins, " ")
	}

	sql := fmt.Sprintf("SELECT %s%s FROM %s%s WHERE %s%s %s",
		top,
		selectList(g, f.Columns),
		qualifiedTable(g, f.Source.Schema, f.Source.Object, f.Alias),
		joinText,
		where,
		orderClause,
		jsonClause,
	)

	return sqlengine.Built{SQL: sql, Params: f.Parameters}, nil
}

// BuildInsert builds an INSERT … OUTPUT INSERTED.* statement.
func (b *Builder) BuildInsert(ins *queryir.InsertStructure) (sqlengine.Built, error) {
	var g grammar

	cols := make([]string, 0, len(ins.Values))
	placeholders := make([]string, 0, len(ins.Values))
	for _, backing := range sortedKeys(ins.Values) {
		cols = append(cols, g.QuoteIdentifier(backing))
		placeholders = append(placeholders, g.Placeholder(ins.Values[backing]))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.* VALUES (%s)",
		qualifiedTable(g, ins.Source.Schema, ins.Source.Object, ins.Alias),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
	return sqlengine.Built{SQL: sql, Params: ins.Parameters}, nil
}

// BuildUpdate builds an UPDATE … OUTPUT INSERTED.* WHERE statement.
func (b *Builder) BuildUpdate(upd *queryir.UpdateStructure) (sqlengine.Built, error) {
	var g grammar

	sets := make([]string, 0, len(upd.Values))
	for _, backing := range sortedKeys(upd.Values) {
		sets = append(sets, fmt.Sprintf("%s = %s", g.QuoteIdentifier(backing), g.Placeholder(upd.Values[backing])))
	}

	policy := upd.GetDBPolicy(queryir.OpUpdate)
	where, err := dialect.RenderPredicateList(g, append([]*queryir.Predicate{policy}, upd.Predicates...)...)
	if err != nil {
		return sqlengine.Built{}, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s OUTPUT INSERTED.* WHERE %s",
		qualifiedTable(g, upd.Source.Schema, upd.Source.Object, upd.Alias),
		strings.Join(sets, ", "),
		where,
	)
	return sqlengine.Built{SQL: sql, Params: upd.Parameters}, nil
}

// BuildDelete builds a DELETE … WHERE statement.
func (b *Builder) BuildDelete(del *queryir.DeleteStructure) (sqlengine.Built, error) {
	var g grammar

	policy := del.GetDBPolicy(queryir.OpDelete)
	where, err := dialect.RenderPredicateList(g, append([]*queryir.Predicate{policy}, del.Predicates...)...)
	if err != nil {
		return sqlengine.Built{}, err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", qualifiedTable(g, del.Source.Schema, del.Source.Object, del.Alias), where)
	return sqlengine.Built{SQL: sql, Params: del.Parameters}, nil
}

// BuildUpsert builds the two-statement T-SQL batch of spec.md §4.2/§4.7: a
// COUNT of matching primary-key rows first (read by the executor's
// ReadCount state), then the UPDATE or INSERT body. The executor's upsert
// state machine reads both result sets to classify insert vs. update.
func (b *Builder) BuildUpsert(u *queryir.UpsertStructure) (sqlengine.Built, error) {
	var g grammar

	policy := u.GetDBPolicy(queryir.OpUpdate)
	pkPredicates := make([]*queryir.Predicate, 0, len(u.Predicates)+1)
	pkPredicates = append(pkPredicates, policy)
	pkPredicates = append(pkPredicates, u.Predicates...)
	where, err := dialect.RenderPredicateList(g, pkPredicates...)
	if err != nil {
		return sqlengine.Built{}, err
	}

	countStmt := fmt.Sprintf("SELECT COUNT(*) AS pk_count FROM %s WHERE %s",
		qualifiedTable(g, u.Source.Schema, u.Source.Object, u.Alias), where)

	sets := make([]string, 0, len(u.Values))
	for _, backing := range sortedKeys(u.Values) {
		sets = append(sets, fmt.Sprintf("%s = %s", g.QuoteIdentifier(backing), g.Placeholder(u.Values[backing])))
	}
	updateStmt := fmt.Sprintf("UPDATE %s SET %s OUTPUT INSERTED.* WHERE %s",
		qualifiedTable(g, u.Source.Schema, u.Source.Object, u.Alias), strings.Join(sets, ", "), where)

	cols := make([]string, 0, len(u.Values))
	placeholders := make([]string, 0, len(u.Values))
	for _, backing := range sortedKeys(u.Values) {
		cols = append(cols, g.QuoteIdentifier(backing))
		placeholders = append(placeholders, g.Placeholder(u.Values[backing]))
	}
	insertStmt := fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.* VALUES (%s)",
		qualifiedTable(g, u.Source.Schema, u.Source.Object, u.Alias), strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	return sqlengine.Built{
		SQL:    updateStmt,
		Params: u.Parameters,
		Batch:  []string{countStmt, insertStmt},
	}, nil
}

// BuildExecute renders an EXEC statement calling a stored procedure with its
// positional parameters, continuing the EXEC-statement idiom
// [SessionContextPrelude] already uses for session-context stamping.
func (b *Builder) BuildExecute(x *queryir.ExecuteStructure) (sqlengine.Built, error) {
	var g grammar

	placeholders := make([]string, 0, len(x.Params))
	for _, name := range x.Params {
		placeholders = append(placeholders, g.Placeholder(name))
	}

	sql := fmt.Sprintf("EXEC %s %s", qualifiedObject(g, x.Source.Schema, x.Source.Object), strings.Join(placeholders, ", "))
	return sqlengine.Built{SQL: sql, Params: x.Parameters}, nil
}

func qualifiedObject(g grammar, schema, object string) string {
	if schema != "" {
		return g.QuoteIdentifier(schema) + "." + g.QuoteIdentifier(object)
	}
	return g.QuoteIdentifier(object)
}

// SessionContextPrelude renders the sp_set_session_context batch of
// spec.md §4.4: one statement per claim, each registered as a new
// session-scoped parameter by the caller before this is invoked.
func SessionContextPrelude(claimTypeToParam map[string]string) []string {
	var g grammar
	stmts := make([]string, 0, len(claimTypeToParam))
	for claimType, paramName := range claimTypeToParam {
		stmts = append(stmts, fmt.Sprintf("EXEC sp_set_session_context '%s', %s, @read_only = 0",
			strings.ReplaceAll(claimType, "'", "''"), g.Placeholder(paramName)))
	}
	return stmts
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
