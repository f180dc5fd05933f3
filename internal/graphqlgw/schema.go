// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package graphqlgw is the GraphQL surface of spec.md §6: it builds a schema
document on the fly from the Metadata Provider's entities, then translates
each top-level selection of an incoming query/mutation into the same
queryir.QueryStructure the REST surface builds, so the rest of the
pipeline — policy processor, engine factory, dialect builders — never
knows which transport produced the request.

Only a practical subset of a full Data API Builder GraphQL surface is
built: by-primary-key reads, unfiltered/unordered list reads with a
`first` page-size argument, and create/update/delete mutations. $filter,
$orderby, and cursor-based continuation (all available over REST) are not
exposed as GraphQL arguments — see DESIGN.md.
*/
package graphqlgw

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/taibuivan/dataapi/internal/metadata"
)

// fieldKind names which queryir structure a root-field selection builds.
type fieldKind int

const (
	kindGet fieldKind = iota
	kindList
	kindCreate
	kindUpdate
	kindDelete
)

// fieldRoute is what the resolver needs to act on a matched root field:
// which entity it targets and which operation it performs.
type fieldRoute struct {
	entity *metadata.SourceDefinition
	kind   fieldKind
}

// BuildSchema generates the GraphQL SDL document for every entity in
// provider and parses it with gqlparser, returning the validated schema
// plus the root-field routing table [resolveField] dispatches against.
func BuildSchema(provider *metadata.Provider) (*ast.Schema, map[string]fieldRoute, error) {
	entities := provider.Entities()

	var sdl strings.Builder
	routes := make(map[string]fieldRoute, len(entities)*4)

	sdl.WriteString("type Query {\n")
	for _, e := range entities {
		getField := lowerFirst(e.EntityName)
		listField := getField + "s"
		fmt.Fprintf(&sdl, "  %s(%s): %s\n", getField, pkArgs(e), e.EntityName)
		fmt.Fprintf(&sdl, "  %s(first: Int): [%s!]!\n", listField, e.EntityName)
		routes[getField] = fieldRoute{entity: e, kind: kindGet}
		routes[listField] = fieldRoute{entity: e, kind: kindList}
	}
	sdl.WriteString("}\n\n")

	sdl.WriteString("type Mutation {\n")
	for _, e := range entities {
		name := e.EntityName
		createField := "create" + name
		updateField := "update" + name
		deleteField := "delete" + name
		fmt.Fprintf(&sdl, "  %s(input: %sInput!): %s\n", createField, name, name)
		fmt.Fprintf(&sdl, "  %s(%s, input: %sInput!): %s\n", updateField, pkArgs(e), name, name)
		fmt.Fprintf(&sdl, "  %s(%s): Boolean!\n", deleteField, pkArgs(e))
		routes[createField] = fieldRoute{entity: e, kind: kindCreate}
		routes[updateField] = fieldRoute{entity: e, kind: kindUpdate}
		routes[deleteField] = fieldRoute{entity: e, kind: kindDelete}
	}
	sdl.WriteString("}\n\n")

	for _, e := range entities {
		writeObjectType(&sdl, e)
		writeInputType(&sdl, e)
	}

	schema, gqlErr := gqlparser.LoadSchema(&ast.Source{Name: "gateway.graphql", Input: sdl.String()})
	if gqlErr != nil {
		return nil, nil, fmt.Errorf("graphqlgw: failed to build schema: %w", gqlErr)
	}
	return schema, routes, nil
}

func writeObjectType(sdl *strings.Builder, e *metadata.SourceDefinition) {
	fmt.Fprintf(sdl, "type %s {\n", e.EntityName)
	for _, c := range e.Columns {
		scalar := graphqlScalar(c.Type)
		if !c.Nullable {
			scalar += "!"
		}
		fmt.Fprintf(sdl, "  %s: %s\n", c.ExposedName, scalar)
	}
	sdl.WriteString("}\n\n")
}

func writeInputType(sdl *strings.Builder, e *metadata.SourceDefinition) {
	fmt.Fprintf(sdl, "input %sInput {\n", e.EntityName)
	for _, c := range e.Columns {
		if c.ReadOnly || c.AutoGenerated {
			continue
		}
		scalar := graphqlScalar(c.Type)
		if !c.Nullable && !c.HasDefault {
			scalar += "!"
		}
		fmt.Fprintf(sdl, "  %s: %s\n", c.ExposedName, scalar)
	}
	sdl.WriteString("}\n\n")
}

// pkArgs renders the primary-key argument list for a by-key field, e.g.
// "id: ID!" or "tenantId: ID!, id: ID!" for a composite key.
func pkArgs(e *metadata.SourceDefinition) string {
	var parts []string
	for _, backing := range e.PrimaryKey {
		exposedName := backing
		scalar := "ID"
		for _, c := range e.Columns {
			if c.BackingName == backing {
				exposedName = c.ExposedName
				scalar = graphqlScalar(c.Type)
				break
			}
		}
		parts = append(parts, fmt.Sprintf("%s: %s!", exposedName, scalar))
	}
	return strings.Join(parts, ", ")
}

func graphqlScalar(t metadata.ColumnType) string {
	switch t {
	case metadata.ColumnTypeInt:
		return "Int"
	case metadata.ColumnTypeFloat:
		return "Float"
	case metadata.ColumnTypeBool:
		return "Boolean"
	case metadata.ColumnTypeUUID:
		return "ID"
	case metadata.ColumnTypeDateTime, metadata.ColumnTypeBytes, metadata.ColumnTypeString:
		return "String"
	default:
		return "String"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
