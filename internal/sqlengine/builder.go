// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package sqlengine declares the common contract the three dialect builders
(tsql, pgsql, mysql) satisfy: build(structure) → sql_text, with the
parameter map obtained from the structure itself (spec.md §4.2).
*/
package sqlengine

import "github.com/taibuivan/dataapi/internal/queryir"

// Built is the result of building one statement: its SQL text and the
// parameter bindings referenced within it, keyed by parameter name.
type Built struct {
	SQL    string
	Params map[string]queryir.Parameter
	// Batch holds statement texts the executor runs alongside SQL: MY-SQL's
	// follow-up SELECT, run after SQL to read back the affected row, or the
	// T-SQL upsert's [count, insert] pair, where the count runs first and
	// the insert runs in place of SQL when no row matches — empty for
	// dialects/operations that need none.
	Batch []string
	// ParamOrder lists parameter names in the positional order a
	// positional-placeholder dialect (PG-SQL's $N, MY-SQL's ?) bound them in
	// SQL text; named-placeholder dialects (T-SQL's @paramN) leave this nil
	// since the executor binds by name instead.
	ParamOrder []string
}

// Builder is the per-dialect SQL builder contract.
type Builder interface {
	BuildFind(*queryir.FindStructure) (Built, error)
	BuildInsert(*queryir.InsertStructure) (Built, error)
	BuildUpdate(*queryir.UpdateStructure) (Built, error)
	BuildDelete(*queryir.DeleteStructure) (Built, error)
	BuildUpsert(*queryir.UpsertStructure) (Built, error)
	BuildExecute(*queryir.ExecuteStructure) (Built, error)
}
