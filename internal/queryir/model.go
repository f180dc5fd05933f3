// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queryir

import "github.com/taibuivan/dataapi/internal/metadata"

// Direction is a sort or keyset-comparison direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Parameter is a single bound SQL parameter.
type Parameter struct {
	Name  string
	Value any
	// Type optionally tags the bind type so a dialect driver binds the wire
	// type explicitly instead of guessing from Go's dynamic type of Value.
	Type metadata.ColumnType
}

// Column is a leaf reference to a table column, already resolved to its
// backing name — callers must resolve exposed→backing via
// [metadata.SourceDefinition.BackingName] before constructing one.
type Column struct {
	TableAlias string
	Schema     string
	Table      string
	BackingName string
}

// LabelledColumn pairs a [Column] with the exposed name it should be
// projected as in the JSON-shaped result.
type LabelledColumn struct {
	Column Column
	Label  string
}

// AggregationFunc names a SQL aggregate used by an [AggregationColumn].
type AggregationFunc string

const (
	AggCount AggregationFunc = "COUNT"
	AggSum   AggregationFunc = "SUM"
	AggAvg   AggregationFunc = "AVG"
	AggMin   AggregationFunc = "MIN"
	AggMax   AggregationFunc = "MAX"
)

// AggregationColumn wraps a Column in an aggregate function.
type AggregationColumn struct {
	Func   AggregationFunc
	Column Column
	Label  string
}

// OrderByColumn is one entry of an explicit (non-keyset) ORDER BY clause,
// requested via $orderby and independent of keyset pagination's own
// tie-breaking order.
type OrderByColumn struct {
	Column    Column
	Direction Direction
}

// PredicateOperator is the fixed operator set every dialect maps to its own
// token spelling.
type PredicateOperator string

const (
	OpEq         PredicateOperator = "="
	OpGt         PredicateOperator = ">"
	OpLt         PredicateOperator = "<"
	OpGte        PredicateOperator = ">="
	OpLte        PredicateOperator = "<="
	OpNeq        PredicateOperator = "!="
	OpAnd        PredicateOperator = "AND"
	OpOr         PredicateOperator = "OR"
	OpLike       PredicateOperator = "LIKE"
	OpNotLike    PredicateOperator = "NOT LIKE"
	OpIs         PredicateOperator = "IS"
	OpIsNot      PredicateOperator = "IS NOT"
	OpExists     PredicateOperator = "EXISTS"
)

// PredicateOperandKind tags which variant of [PredicateOperand] is populated.
type PredicateOperandKind int

const (
	OperandColumn PredicateOperandKind = iota
	OperandLiteral
	OperandPredicate
	OperandStructure
)

// PredicateOperand is the leaf of a predicate: exactly one of {column,
// literal parameter name, nested predicate, nested structure} is set,
// selected by Kind.
type PredicateOperand struct {
	Kind      PredicateOperandKind
	Column    Column
	// ParamName references a [Parameter] already registered via
	// [Namer.NextParamName]; the literal value itself never appears inline.
	ParamName string
	Predicate *Predicate
	Structure QueryStructure
}

// ColumnOperand builds a column-kind operand.
func ColumnOperand(col Column) PredicateOperand {
	return PredicateOperand{Kind: OperandColumn, Column: col}
}

// ParamOperand builds a literal-parameter-kind operand.
func ParamOperand(paramName string) PredicateOperand {
	return PredicateOperand{Kind: OperandLiteral, ParamName: paramName}
}

// NestedOperand builds a nested-predicate-kind operand, used to group
// sub-expressions combined with AND/OR.
func NestedOperand(p *Predicate) PredicateOperand {
	return PredicateOperand{Kind: OperandPredicate, Predicate: p}
}

// Predicate is a binary or unary expression node. Unary predicates (e.g.
// EXISTS) leave Left unset and populate only Right.
type Predicate struct {
	Left      *PredicateOperand
	Op        PredicateOperator
	Right     PredicateOperand
	AddParens bool
}

// BinaryPredicate builds a two-operand predicate.
func BinaryPredicate(left PredicateOperand, op PredicateOperator, right PredicateOperand) *Predicate {
	return &Predicate{Left: &left, Op: op, Right: right}
}

// UnaryPredicate builds a single-operand predicate (e.g. EXISTS (subquery)).
func UnaryPredicate(op PredicateOperator, right PredicateOperand) *Predicate {
	return &Predicate{Op: op, Right: right}
}

// KeysetPaginationPredicate is the ordered tuple list driving keyset
// pagination's comparison chain; see the builder's pagination algorithm.
type KeysetPaginationPredicate struct {
	Columns []KeysetColumn
}

// KeysetColumn is one {column, value, direction} entry of a keyset tuple.
// Value carries the bound cursor value alongside ParamName so the dialect
// renderer can special-case a NULL tie-break column without a round trip
// through the parameter map.
type KeysetColumn struct {
	Column    Column
	ParamName string
	Value     any
	Direction Direction
}

// JoinStructure is an INNER JOIN appended by the policy processor or a
// nested selection.
type JoinStructure struct {
	Schema     string
	Object     string
	Alias      string
	Predicates []*Predicate
}
