// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package odata implements the OData-to-Predicate Visitor: it walks a
[filter.Expr] tree and appends [queryir.Predicate] nodes, emitting
parameters through a [queryir.Namer] rather than inlining literal values.

The same visitor serves both request-side `$filter` parsing and
database-policy text evaluation; the two differ in which [ClaimResolver]
and [ItemResolver] are supplied and in [Visitor.AllowClaimsAndItem] —
request-side parsing leaves it false, so any [filter.ClaimRef]/
[filter.ItemRef] node is rejected outright, since request filters may
never reference claims or the in-flight row.
*/
package odata

import (
	"fmt"

	"github.com/taibuivan/dataapi/internal/filter"
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/queryir"
)

// ClaimResolver resolves a claim type (e.g. "oid") to its value from the
// currently authenticated principal. Returns false if the claim is absent.
type ClaimResolver interface {
	Claim(claimType string) (string, bool)
}

// ItemResolver resolves a field name against the row currently being
// written (used by Create/Update policy predicates like `@item.ownerId eq
// @claims.oid`). Policy evaluation on Read/Delete never needs it; pass nil.
type ItemResolver interface {
	ItemField(fieldName string) (any, bool)
}

// Target binds the visitor to one entity/table alias so bare column
// references resolve against the right [metadata.SourceDefinition].
type Target struct {
	Source *metadata.SourceDefinition
	Alias  string
}

// column resolves an exposed field name to a queryir.Column bound to t.
func (t Target) column(exposedName string) (queryir.Column, error) {
	backing, ok := t.Source.BackingName(exposedName)
	if !ok {
		return queryir.Column{}, fmt.Errorf("odata: unknown field %q on entity", exposedName)
	}
	return queryir.Column{
		TableAlias:  t.Alias,
		Schema:      t.Source.Schema,
		Table:       t.Source.Object,
		BackingName: backing,
	}, nil
}

// ParamSink is the subset of a query structure the visitor needs to mint
// parameters — satisfied by every queryir structure variant's AddParameter.
type ParamSink interface {
	AddParameter(value any, backingColumn string) string
}

// Visitor walks a [filter.Expr] and materializes [queryir.Predicate] nodes.
type Visitor struct {
	Target   Target
	Params   ParamSink
	Claims   ClaimResolver
	Item     ItemResolver
	// AllowClaimsAndItem gates whether ClaimRef/ItemRef nodes are legal in
	// the expression being visited. Request-side $filter parsing sets this
	// false; policy evaluation sets it true.
	AllowClaimsAndItem bool
}

// Visit walks expr and returns the equivalent [queryir.Predicate] tree.
func (v *Visitor) Visit(expr filter.Expr) (*queryir.Predicate, error) {
	switch node := expr.(type) {
	case *filter.Binary:
		return v.visitBinary(node)
	case *filter.Unary:
		return v.visitUnary(node)
	default:
		return nil, fmt.Errorf("odata: %T cannot appear as a top-level predicate", expr)
	}
}

func (v *Visitor) visitUnary(node *filter.Unary) (*queryir.Predicate, error) {
	switch node.Op {
	case filter.OpNot:
		inner, err := v.Visit(node.Operand)
		if err != nil {
			return nil, err
		}
		return queryir.UnaryPredicate("NOT", queryir.NestedOperand(inner)), nil
	default:
		return nil, fmt.Errorf("odata: unsupported unary operator %q", node.Op)
	}
}

func (v *Visitor) visitBinary(node *filter.Binary) (*queryir.Predicate, error) {
	switch node.Op {
	case filter.OpAnd, filter.OpOr:
		left, err := v.visitLogicalOperand(node.Left)
		if err != nil {
			return nil, err
		}
		right, err := v.visitLogicalOperand(node.Right)
		if err != nil {
			return nil, err
		}
		op := queryir.OpAnd
		if node.Op == filter.OpOr {
			op = queryir.OpOr
		}
		pred := queryir.BinaryPredicate(queryir.NestedOperand(left), op, queryir.NestedOperand(right))
		pred.AddParens = true
		return pred, nil
	case filter.OpEq, filter.OpNe, filter.OpGt, filter.OpGe, filter.OpLt, filter.OpLe,
		filter.OpContains, filter.OpStartsWith:
		return v.visitComparison(node)
	default:
		return nil, fmt.Errorf("odata: unsupported operator %q", node.Op)
	}
}

// visitLogicalOperand visits an AND/OR child, which must itself be a
// predicate-shaped expression (Binary or Unary), not a bare leaf.
func (v *Visitor) visitLogicalOperand(expr filter.Expr) (*queryir.Predicate, error) {
	switch expr.(type) {
	case *filter.Binary, *filter.Unary:
		return v.Visit(expr)
	default:
		return nil, fmt.Errorf("odata: %T cannot appear as an operand of and/or", expr)
	}
}

func comparisonOperator(op filter.Op) queryir.PredicateOperator {
	switch op {
	case filter.OpEq:
		return queryir.OpEq
	case filter.OpNe:
		return queryir.OpNeq
	case filter.OpGt:
		return queryir.OpGt
	case filter.OpGe:
		return queryir.OpGte
	case filter.OpLt:
		return queryir.OpLt
	case filter.OpLe:
		return queryir.OpLte
	case filter.OpContains, filter.OpStartsWith:
		return queryir.OpLike
	default:
		return queryir.OpEq
	}
}

func (v *Visitor) visitComparison(node *filter.Binary) (*queryir.Predicate, error) {
	left, err := v.visitOperand(node.Left)
	if err != nil {
		return nil, err
	}

	// contains()/startswith() rewrite their literal operand into a LIKE
	// pattern before parameterizing it, rather than reusing visitOperand's
	// plain literal handling.
	if node.Op == filter.OpContains || node.Op == filter.OpStartsWith {
		return v.visitLikeComparison(left, node)
	}

	right, err := v.visitOperand(node.Right)
	if err != nil {
		return nil, err
	}

	op := comparisonOperator(node.Op)

	// A NULL right-hand side in equality position renders as IS / IS NOT,
	// never '= NULL', per spec.md §4.2.
	if lit, ok := node.Right.(*filter.Literal); ok && lit.Kind == filter.LiteralNull {
		switch op {
		case queryir.OpEq:
			op = queryir.OpIs
		case queryir.OpNeq:
			op = queryir.OpIsNot
		}
	}

	return queryir.BinaryPredicate(left, op, right), nil
}

func (v *Visitor) visitLikeComparison(left queryir.PredicateOperand, node *filter.Binary) (*queryir.Predicate, error) {
	lit, ok := node.Right.(*filter.Literal)
	if !ok || lit.Kind != filter.LiteralString {
		return nil, fmt.Errorf("odata: %s() requires a string literal argument", node.Op)
	}
	pattern := lit.Str + "%"
	if node.Op == filter.OpContains {
		pattern = "%" + lit.Str + "%"
	}
	right := queryir.ParamOperand(v.Params.AddParameter(pattern, ""))
	return queryir.BinaryPredicate(left, queryir.OpLike, right), nil
}

func (v *Visitor) visitOperand(expr filter.Expr) (queryir.PredicateOperand, error) {
	switch node := expr.(type) {
	case *filter.ColumnRef:
		col, err := v.Target.column(node.Name)
		if err != nil {
			return queryir.PredicateOperand{}, err
		}
		return queryir.ColumnOperand(col), nil

	case *filter.Literal:
		return v.visitLiteral(node)

	case *filter.ClaimRef:
		if !v.AllowClaimsAndItem {
			return queryir.PredicateOperand{}, fmt.Errorf("odata: claim references are not permitted in a request filter")
		}
		if v.Claims == nil {
			return queryir.PredicateOperand{}, fmt.Errorf("odata: no claim resolver configured")
		}
		value, ok := v.Claims.Claim(node.ClaimType)
		if !ok {
			return queryir.PredicateOperand{}, fmt.Errorf("odata: principal lacks required claim %q", node.ClaimType)
		}
		return queryir.ParamOperand(v.Params.AddParameter(value, "")), nil

	case *filter.ItemRef:
		if !v.AllowClaimsAndItem {
			return queryir.PredicateOperand{}, fmt.Errorf("odata: item references are not permitted in a request filter")
		}
		if v.Item == nil {
			return queryir.PredicateOperand{}, fmt.Errorf("odata: no item resolver configured for @item.%s", node.FieldName)
		}
		value, ok := v.Item.ItemField(node.FieldName)
		if !ok {
			return queryir.PredicateOperand{}, fmt.Errorf("odata: request body lacks field %q referenced by @item", node.FieldName)
		}
		backing, _ := v.Target.Source.BackingName(node.FieldName)
		return queryir.ParamOperand(v.Params.AddParameter(value, backing)), nil

	default:
		return queryir.PredicateOperand{}, fmt.Errorf("odata: %T cannot appear as a comparison operand", expr)
	}
}

func (v *Visitor) visitLiteral(lit *filter.Literal) (queryir.PredicateOperand, error) {
	switch lit.Kind {
	case LiteralNull:
		return queryir.ParamOperand(""), nil
	case LiteralString:
		return queryir.ParamOperand(v.Params.AddParameter(lit.Str, "")), nil
	case LiteralInt:
		return queryir.ParamOperand(v.Params.AddParameter(lit.Int, "")), nil
	case LiteralFloat:
		return queryir.ParamOperand(v.Params.AddParameter(lit.Float, "")), nil
	case LiteralBool:
		return queryir.ParamOperand(v.Params.AddParameter(lit.Bool, "")), nil
	default:
		return queryir.PredicateOperand{}, fmt.Errorf("odata: unknown literal kind %v", lit.Kind)
	}
}

// LiteralNull etc. are local aliases so visitLiteral reads naturally;
// defined here rather than imported to avoid a stutter of filter.Literal*.
const (
	LiteralNull   = filter.LiteralNull
	LiteralString = filter.LiteralString
	LiteralInt    = filter.LiteralInt
	LiteralFloat  = filter.LiteralFloat
	LiteralBool   = filter.LiteralBool
)
