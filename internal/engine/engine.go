// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package engine implements the Engine Factory of spec.md §4.5: given a data
source's declared database type, select one of the three SQL engine tuples
(builder, executor) or the DOC-DB engine. Unknown types fail with
[apperr.DataSourceNotFound].
*/
package engine

import (
	"context"

	"github.com/taibuivan/dataapi/internal/executor"
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/platform/principal"
	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/internal/sqlengine"
)

// Engine is the operation surface the gateway/graphqlgw surfaces call,
// implemented once per dialect family (one shared implementation for every
// SQL dialect, a distinct one for DOC-DB).
type Engine interface {
	Find(ctx context.Context, caller *principal.Principal, s *queryir.FindStructure) (*executor.Result, error)
	Insert(ctx context.Context, caller *principal.Principal, s *queryir.InsertStructure) (*executor.Result, error)
	Update(ctx context.Context, caller *principal.Principal, s *queryir.UpdateStructure) (*executor.Result, error)
	Delete(ctx context.Context, caller *principal.Principal, s *queryir.DeleteStructure) (*executor.Result, error)
	Upsert(ctx context.Context, caller *principal.Principal, s *queryir.UpsertStructure) (*executor.Result, error)
	Execute(ctx context.Context, caller *principal.Principal, s *queryir.ExecuteStructure) (*executor.Result, error)
}

// DocDBEngine is satisfied by internal/docdb.Engine; declared here (rather
// than imported) to avoid a dependency cycle, since docdb depends on
// nothing in this package.
type DocDBEngine interface {
	Engine
}

// Factory selects the (builder, executor) tuple — or the DOC-DB engine —
// for a data source, by its declared [metadata.DatabaseType].
type Factory struct {
	provider *metadata.Provider
	exec     *executor.Executor

	tsqlBuilder  sqlengine.Builder
	pgsqlBuilder sqlengine.Builder
	mysqlBuilder sqlengine.Builder

	docDB DocDBEngine
}

// New constructs a [Factory]. docDB may be nil if no DOC-DB data source is
// configured; attempting to resolve one then fails with
// [apperr.DataSourceNotFound].
func New(provider *metadata.Provider, exec *executor.Executor, tsqlBuilder, pgsqlBuilder, mysqlBuilder sqlengine.Builder, docDB DocDBEngine) *Factory {
	return &Factory{
		provider:     provider,
		exec:         exec,
		tsqlBuilder:  tsqlBuilder,
		pgsqlBuilder: pgsqlBuilder,
		mysqlBuilder: mysqlBuilder,
		docDB:        docDB,
	}
}

// For resolves the engine that serves dataSourceName.
func (f *Factory) For(dataSourceName string) (Engine, error) {
	dialectType, ok := f.provider.DataSourceType(dataSourceName)
	if !ok {
		return nil, apperr.DataSourceNotFound(dataSourceName)
	}

	switch dialectType {
	case metadata.DatabaseTypeMSSQL:
		return &sqlEngine{dataSourceName: dataSourceName, builder: f.tsqlBuilder, exec: f.exec}, nil
	case metadata.DatabaseTypePostgres:
		return &sqlEngine{dataSourceName: dataSourceName, builder: f.pgsqlBuilder, exec: f.exec}, nil
	case metadata.DatabaseTypeMySQL:
		return &sqlEngine{dataSourceName: dataSourceName, builder: f.mysqlBuilder, exec: f.exec}, nil
	case metadata.DatabaseTypeDocDB:
		if f.docDB == nil {
			return nil, apperr.DataSourceNotFound(dataSourceName)
		}
		return f.docDB, nil
	default:
		return nil, apperr.DataSourceNotFound(dataSourceName)
	}
}

// sqlEngine adapts a dialect [sqlengine.Builder] plus the shared
// [executor.Executor] into an [Engine].
type sqlEngine struct {
	dataSourceName string
	builder        sqlengine.Builder
	exec           *executor.Executor
}

func (e *sqlEngine) Find(ctx context.Context, caller *principal.Principal, s *queryir.FindStructure) (*executor.Result, error) {
	built, err := e.builder.BuildFind(s)
	if err != nil {
		return nil, err
	}
	meta := executor.ExecutionMeta{
		EntityName: s.EntityName,
		Operation:  "Read",
		CacheKey:   executor.CacheKeyFor(s.EntityName, "Read", roleOf(caller), built),
	}
	return e.exec.Execute(ctx, e.dataSourceName, built, executor.ModeJSONString, caller, meta)
}

func (e *sqlEngine) Insert(ctx context.Context, caller *principal.Principal, s *queryir.InsertStructure) (*executor.Result, error) {
	built, err := e.builder.BuildInsert(s)
	if err != nil {
		return nil, err
	}
	meta := executor.ExecutionMeta{EntityName: s.EntityName, Operation: "Create", CacheKey: executor.NoCacheKey}
	return e.exec.Execute(ctx, e.dataSourceName, built, executor.ModeMutation, caller, meta)
}

func (e *sqlEngine) Update(ctx context.Context, caller *principal.Principal, s *queryir.UpdateStructure) (*executor.Result, error) {
	built, err := e.builder.BuildUpdate(s)
	if err != nil {
		return nil, err
	}
	meta := executor.ExecutionMeta{EntityName: s.EntityName, Operation: "Update", CacheKey: executor.NoCacheKey}
	result, err := e.exec.Execute(ctx, e.dataSourceName, built, executor.ModeMutation, caller, meta)
	if err != nil {
		return nil, err
	}
	if result.Row == nil {
		return nil, apperr.ItemNotFound("")
	}
	return result, nil
}

func (e *sqlEngine) Delete(ctx context.Context, caller *principal.Principal, s *queryir.DeleteStructure) (*executor.Result, error) {
	built, err := e.builder.BuildDelete(s)
	if err != nil {
		return nil, err
	}
	meta := executor.ExecutionMeta{EntityName: s.EntityName, Operation: "Delete", CacheKey: executor.NoCacheKey}
	return e.exec.Execute(ctx, e.dataSourceName, built, executor.ModeMutation, caller, meta)
}

func (e *sqlEngine) Upsert(ctx context.Context, caller *principal.Principal, s *queryir.UpsertStructure) (*executor.Result, error) {
	built, err := e.builder.BuildUpsert(s)
	if err != nil {
		return nil, err
	}
	meta := executor.ExecutionMeta{EntityName: s.EntityName, Operation: "Upsert", CacheKey: executor.NoCacheKey}
	return e.exec.Execute(ctx, e.dataSourceName, built, executor.ModeUpsert, caller, meta)
}

func (e *sqlEngine) Execute(ctx context.Context, caller *principal.Principal, s *queryir.ExecuteStructure) (*executor.Result, error) {
	built, err := e.builder.BuildExecute(s)
	if err != nil {
		return nil, err
	}
	meta := executor.ExecutionMeta{EntityName: s.EntityName, Operation: "Execute", CacheKey: executor.NoCacheKey}
	return e.exec.Execute(ctx, e.dataSourceName, built, executor.ModeRowSet, caller, meta)
}

// roleOf returns the acting role used in the response-cache key, or "" for
// an anonymous caller.
func roleOf(caller *principal.Principal) string {
	if caller == nil {
		return ""
	}
	return caller.Role
}
