// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queryir

import (
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
)

// Operation is the elemental CRUD operation a policy/predicate is scoped
// to. Compound request operations (Upsert) expand into these before the
// Authorization Policy Processor runs — see [ElementalOperations].
type Operation string

const (
	OpRead   Operation = "Read"
	OpCreate Operation = "Create"
	OpUpdate Operation = "Update"
	OpDelete Operation = "Delete"
	OpExecute Operation = "Execute"
)

// ElementalOperations expands a possibly-compound request operation into
// the elemental operations the policy processor evaluates independently.
// Upsert and UpsertIncremental are the only compound operations: each
// behaves as an Update against an existing row or a Create of a new one,
// so both policies must hold.
func ElementalOperations(requestOp string) []Operation {
	switch requestOp {
	case "Upsert", "UpsertIncremental":
		return []Operation{OpUpdate, OpCreate}
	case "Read":
		return []Operation{OpRead}
	case "Create":
		return []Operation{OpCreate}
	case "Update":
		return []Operation{OpUpdate}
	case "Delete":
		return []Operation{OpDelete}
	case "Execute":
		return []Operation{OpExecute}
	default:
		return []Operation{Operation(requestOp)}
	}
}

// base holds the fields and mutators shared by every query-structure
// variant: the entity binding, namer, parameters, predicates, joins, and
// per-operation policy predicates. Mutators are not thread-safe — a
// structure is single-owner for its lifetime.
type base struct {
	EntityName string
	Source     *metadata.SourceDefinition
	Alias      string
	Namer      *Namer

	Parameters map[string]Parameter
	Predicates []*Predicate
	Joins      []JoinStructure

	// policyPredicates holds the rendered policy predicate for each
	// elemental operation this structure's request operation expands to.
	policyPredicates map[Operation]*Predicate
}

func newBase(entityName string, source *metadata.SourceDefinition, namer *Namer) base {
	b := base{
		EntityName:       entityName,
		Source:           source,
		Namer:            namer,
		Parameters:       make(map[string]Parameter),
		policyPredicates: make(map[Operation]*Predicate),
	}
	b.Alias = namer.NextAlias()
	return b
}

// AddParameter registers a new parameter with a counter-suffixed name and
// returns that name. If backingName resolves to a known column, the
// parameter's type tag is copied from the column definition so dialect
// binding chooses the correct wire type. Never deduplicates — even two
// identical values get distinct parameter names.
func (b *base) AddParameter(value any, backingName string) string {
	name := b.Namer.NextParamName()
	param := Parameter{Name: name, Value: value}
	if backingName != "" {
		for _, col := range b.Source.Columns {
			if col.BackingName == backingName {
				param.Type = col.Type
				break
			}
		}
	}
	b.Parameters[name] = param
	return name
}

// CreateTableAlias returns a fresh monotone alias, shared across the whole
// structure (including subqueries) via the common [Namer].
func (b *base) CreateTableAlias() string {
	return b.Namer.NextAlias()
}

// GetDBPolicy returns the cached, already-rendered predicate the
// Authorization Policy Processor attached for the given elemental
// operation, or nil if none was emitted (an empty policy is legal and
// simply contributes no predicate).
func (b *base) GetDBPolicy(op Operation) *Predicate {
	return b.policyPredicates[op]
}

// SetDBPolicy attaches a policy predicate for an elemental operation; only
// the policy processor calls this.
func (b *base) SetDBPolicy(op Operation, pred *Predicate) {
	b.policyPredicates[op] = pred
}

// AddPredicate appends a predicate to the structure's own (non-policy)
// predicate list.
func (b *base) AddPredicate(p *Predicate) {
	b.Predicates = append(b.Predicates, p)
}

// AddJoin appends an INNER JOIN.
func (b *base) AddJoin(j JoinStructure) {
	b.Joins = append(b.Joins, j)
}

// Column resolves an exposed column name against the structure's entity and
// returns a fully-qualified [Column] bound to this structure's alias.
func (b *base) Column(exposedName string) (Column, error) {
	backing, ok := b.Source.BackingName(exposedName)
	if !ok {
		return Column{}, apperr.BadRequest("unknown field " + exposedName + " on entity " + b.EntityName)
	}
	return Column{TableAlias: b.Alias, Schema: b.Source.Schema, Table: b.Source.Object, BackingName: backing}, nil
}

// newBaseFor constructs the base of a query structure for entityName, resolving it
// against provider. Fails with EntityNotFound if the name is unknown —
// the only failure mode [base] construction has, per spec.md §4.1.
func newBaseFor(entityName string, provider *metadata.Provider, namer *Namer) (base, error) {
	source, ok := provider.Entity(entityName)
	if !ok {
		return base{}, apperr.EntityNotFound(entityName)
	}
	return newBase(entityName, source, namer), nil
}

// FindStructure is the query structure for a Read operation.
type FindStructure struct {
	base

	Columns      []LabelledColumn
	Aggregations []AggregationColumn
	OrderBy      []OrderByColumn
	Pagination   *KeysetPaginationPredicate
	// Limit is the page size (+1 is typically requested internally to
	// detect a next page; callers decide that convention).
	Limit int
	// Singleton marks a by-primary-key lookup expected to return at most
	// one row, selecting the dialect's singleton JSON shape.
	Singleton bool
}

// NewFindStructure builds a [FindStructure] for entityName.
func NewFindStructure(entityName string, provider *metadata.Provider, namer *Namer) (*FindStructure, error) {
	b, err := newBaseFor(entityName, provider, namer)
	if err != nil {
		return nil, err
	}
	return &FindStructure{base: b}, nil
}

// AddColumn appends a projected column under the given exposed label.
func (f *FindStructure) AddColumn(exposedName string) error {
	col, err := f.Column(exposedName)
	if err != nil {
		return err
	}
	f.Columns = append(f.Columns, LabelledColumn{Column: col, Label: exposedName})
	return nil
}

// SetOrderBy replaces the explicit (non-keyset) ORDER BY list.
func (f *FindStructure) SetOrderBy(cols []OrderByColumn) { f.OrderBy = cols }

// SetPagination attaches the keyset pagination predicate.
func (f *FindStructure) SetPagination(p *KeysetPaginationPredicate) { f.Pagination = p }

// InsertStructure is the query structure for a Create operation.
type InsertStructure struct {
	base
	// Values maps backing column name to the parameter name holding its value.
	Values map[string]string
	// Returning lists the columns to project back after insert.
	Returning []LabelledColumn
}

// NewInsertStructure builds an [InsertStructure] for entityName.
func NewInsertStructure(entityName string, provider *metadata.Provider, namer *Namer) (*InsertStructure, error) {
	b, err := newBaseFor(entityName, provider, namer)
	if err != nil {
		return nil, err
	}
	return &InsertStructure{base: b, Values: make(map[string]string)}, nil
}

// SetValue registers value as a parameter and binds it to backingName.
func (ins *InsertStructure) SetValue(backingName string, value any) {
	ins.Values[backingName] = ins.AddParameter(value, backingName)
}

// UpdateStructure is the query structure for an Update operation.
type UpdateStructure struct {
	base
	Values    map[string]string
	Returning []LabelledColumn
}

// NewUpdateStructure builds an [UpdateStructure] for entityName.
func NewUpdateStructure(entityName string, provider *metadata.Provider, namer *Namer) (*UpdateStructure, error) {
	b, err := newBaseFor(entityName, provider, namer)
	if err != nil {
		return nil, err
	}
	return &UpdateStructure{base: b, Values: make(map[string]string)}, nil
}

// SetValue registers value as a parameter and binds it to backingName.
func (upd *UpdateStructure) SetValue(backingName string, value any) {
	upd.Values[backingName] = upd.AddParameter(value, backingName)
}

// DeleteStructure is the query structure for a Delete operation.
type DeleteStructure struct {
	base
}

// NewDeleteStructure builds a [DeleteStructure] for entityName.
func NewDeleteStructure(entityName string, provider *metadata.Provider, namer *Namer) (*DeleteStructure, error) {
	b, err := newBaseFor(entityName, provider, namer)
	if err != nil {
		return nil, err
	}
	return &DeleteStructure{base: b}, nil
}

// UpsertStructure is the query structure for an Upsert/UpsertIncremental
// operation; it carries both the update and insert value sets since the
// dialect builders decide at execution time which path ran.
type UpsertStructure struct {
	base
	Values    map[string]string
	Returning []LabelledColumn
	// Incremental marks UpsertIncremental (PATCH semantics: only supplied
	// fields are set) vs. full-record Upsert (PUT semantics).
	Incremental bool
}

// NewUpsertStructure builds an [UpsertStructure] for entityName.
func NewUpsertStructure(entityName string, provider *metadata.Provider, namer *Namer, incremental bool) (*UpsertStructure, error) {
	b, err := newBaseFor(entityName, provider, namer)
	if err != nil {
		return nil, err
	}
	return &UpsertStructure{base: b, Values: make(map[string]string), Incremental: incremental}, nil
}

// SetValue registers value as a parameter and binds it to backingName.
func (u *UpsertStructure) SetValue(backingName string, value any) {
	u.Values[backingName] = u.AddParameter(value, backingName)
}

// ExecuteStructure is the query structure for an Execute operation: a
// stored-procedure call bound to positional parameters, per
// [metadata.SourceDefinition.StoredProcParams].
type ExecuteStructure struct {
	base
	// Params lists the parameter names registered via BindParam, in
	// positional call order.
	Params []string
}

// NewExecuteStructure builds an [ExecuteStructure] for entityName.
func NewExecuteStructure(entityName string, provider *metadata.Provider, namer *Namer) (*ExecuteStructure, error) {
	b, err := newBaseFor(entityName, provider, namer)
	if err != nil {
		return nil, err
	}
	return &ExecuteStructure{base: b}, nil
}

// BindParam registers value as the next positional stored-procedure
// parameter and returns the minted parameter name.
func (x *ExecuteStructure) BindParam(value any) string {
	name := x.AddParameter(value, "")
	x.Params = append(x.Params, name)
	return name
}

// ExistsStructure is a minimal structure used by the policy processor and
// nested predicates to build `EXISTS (SELECT 1 FROM … WHERE …)` checks.
type ExistsStructure struct {
	base
}

// NewExistsStructure builds an [ExistsStructure] for entityName.
func NewExistsStructure(entityName string, provider *metadata.Provider, namer *Namer) (*ExistsStructure, error) {
	b, err := newBaseFor(entityName, provider, namer)
	if err != nil {
		return nil, err
	}
	return &ExistsStructure{base: b}, nil
}

// QueryStructure is the common surface every dialect builder accepts,
// satisfied by each of the above variants through embedding of [base].
type QueryStructure interface {
	GetDBPolicy(op Operation) *Predicate
}
