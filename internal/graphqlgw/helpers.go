// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package graphqlgw

import (
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/odata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/queryir"
)

// pkTarget is the subset of a queryir structure variant needed to bind
// primary-key arguments into predicates — mirrors gateway.go's pkTarget,
// adapted to GraphQL's argument map instead of REST's path segments.
type pkTarget interface {
	Column(exposedName string) (queryir.Column, error)
	AddParameter(value any, backingColumn string) string
	AddPredicate(p *queryir.Predicate)
}

// applyPrimaryKeyArgs binds source's primary key columns from a GraphQL
// field's argument map onto target, the same way gateway.go's
// applyPrimaryKeyPredicates binds them from REST path segments.
func applyPrimaryKeyArgs(target pkTarget, source *metadata.SourceDefinition, args map[string]any) error {
	for _, backing := range source.PrimaryKey {
		exposedName := backing
		for _, c := range source.Columns {
			if c.BackingName == backing {
				exposedName = c.ExposedName
				break
			}
		}
		value, present := args[exposedName]
		if !present {
			return apperr.InvalidIdentifierField(source.EntityName)
		}
		column, err := target.Column(exposedName)
		if err != nil {
			return err
		}
		paramName := target.AddParameter(value, backing)
		target.AddPredicate(queryir.BinaryPredicate(queryir.ColumnOperand(column), queryir.OpEq, queryir.ParamOperand(paramName)))
	}
	return nil
}

// projectColumns adds columns to find's selection, or every exposed column
// of source when the selection set named none (the top-level field itself,
// e.g. a fragment spread the resolver does not walk).
func projectColumns(find *queryir.FindStructure, source *metadata.SourceDefinition, columns []string) error {
	names := columns
	if len(names) == 0 {
		for _, c := range source.Columns {
			names = append(names, c.ExposedName)
		}
	}
	for _, n := range names {
		if err := find.AddColumn(n); err != nil {
			return apperr.BadRequest("Unknown selected field " + n)
		}
	}
	return nil
}

// writableTarget is the subset of a queryir structure variant needed to
// bind an `input` argument's field values.
type writableTarget interface {
	SetValue(backingName string, value any)
}

// bindWritableValues copies body's exposed fields onto target, skipping
// read-only/auto-generated columns — identical semantics to gateway.go's
// bindWritableValues, reused here against a GraphQL input object instead
// of a decoded REST request body.
func bindWritableValues(target writableTarget, source *metadata.SourceDefinition, body map[string]any, partial bool) error {
	for _, col := range source.Columns {
		if col.ReadOnly || col.AutoGenerated {
			continue
		}
		value, present := body[col.ExposedName]
		if !present {
			if partial || col.Nullable || col.HasDefault {
				continue
			}
			return apperr.BadRequest("Missing required field " + col.ExposedName)
		}
		target.SetValue(col.BackingName, value)
	}
	return nil
}

// itemResolver adapts a decoded GraphQL input object to [odata.ItemResolver]
// so Create/Update policy text can reference `@item.<field>`.
type itemResolver map[string]any

func (m itemResolver) ItemField(fieldName string) (any, bool) {
	v, ok := m[fieldName]
	return v, ok
}

func itemFields(body map[string]any) odata.ItemResolver {
	return itemResolver(body)
}
