// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"net/url"
	"os"

	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/config"
	"github.com/taibuivan/dataapi/internal/queryir"
)

// buildMetadataProvider translates the declarative resource document into
// the Metadata Provider's immutable map, per spec.md §4's "table in §3".
func buildMetadataProvider(rc *config.RuntimeConfig) *metadata.Provider {
	entities := make([]*metadata.SourceDefinition, 0, len(rc.Entities))
	for _, ec := range rc.Entities {
		entities = append(entities, sourceDefinitionFrom(ec))
	}
	provider := metadata.NewProvider(entities)
	provider.SetDataSourceTypes(dataSourceTypes(rc))
	return provider
}

func dataSourceTypes(rc *config.RuntimeConfig) map[string]metadata.DatabaseType {
	types := make(map[string]metadata.DatabaseType, len(rc.DataSources))
	for _, ds := range rc.DataSources {
		types[ds.Name] = metadata.DatabaseType(ds.DatabaseType)
	}
	return types
}

func sourceDefinitionFrom(ec config.EntityConfig) *metadata.SourceDefinition {
	columns := make([]metadata.ColumnDef, 0, len(ec.Columns))
	for _, c := range ec.Columns {
		columns = append(columns, metadata.ColumnDef{
			ExposedName:    c.ExposedName,
			BackingName:    c.BackingName,
			Type:           metadata.ColumnType(c.Type),
			Nullable:       c.Nullable,
			ReadOnly:       c.ReadOnly,
			AutoGenerated:  c.AutoGenerated,
			HasDefault:     c.HasDefault,
			DefaultLiteral: c.DefaultLiteral,
		})
	}

	foreignKeys := make([]metadata.ForeignKeyDef, 0, len(ec.ForeignKeys))
	for _, fk := range ec.ForeignKeys {
		foreignKeys = append(foreignKeys, metadata.ForeignKeyDef{
			ReferencedEntity: fk.ReferencedEntity,
			Columns:          fk.Columns,
		})
	}

	return &metadata.SourceDefinition{
		EntityName:       ec.Name,
		DataSourceName:   ec.DataSourceName,
		ObjectType:       metadata.SourceObjectType(ec.ObjectType),
		Schema:           ec.Schema,
		Object:           ec.Object,
		Columns:          columns,
		PrimaryKey:       ec.PrimaryKey,
		ForeignKeys:      foreignKeys,
		StoredProcParams: ec.StoredProcParams,
	}
}

// connectionResolver adapts [config.RuntimeConfig]'s data sources to
// [executor.ConnectionResolver].
type connectionResolver struct {
	dataSources map[string]config.DataSourceConfig
}

func newConnectionResolver(rc *config.RuntimeConfig) *connectionResolver {
	m := make(map[string]config.DataSourceConfig, len(rc.DataSources))
	for _, ds := range rc.DataSources {
		m[ds.Name] = ds
	}
	return &connectionResolver{dataSources: m}
}

func (r *connectionResolver) ConnectionString(dataSourceName string) (string, metadata.DatabaseType, bool) {
	ds, ok := r.dataSources[dataSourceName]
	if !ok {
		return "", "", false
	}
	return ds.ConnectionString, metadata.DatabaseType(ds.DatabaseType), true
}

func (r *connectionResolver) SetSessionContext(dataSourceName string) bool {
	ds, ok := r.dataSources[dataSourceName]
	return ok && ds.SetSessionContext
}

func (r *connectionResolver) OnBehalfOfEnabled(dataSourceName string) bool {
	ds, ok := r.dataSources[dataSourceName]
	return ok && ds.OnBehalfOfEnabled
}

func (r *connectionResolver) DatabaseAudience(dataSourceName string) string {
	return r.dataSources[dataSourceName].DatabaseAudience
}

func (r *connectionResolver) HasManagedIdentityToken(dataSourceName string) bool {
	ds, ok := r.dataSources[dataSourceName]
	if !ok || ds.ManagedIdentityTokenEnv == "" {
		return false
	}
	_, present := os.LookupEnv(ds.ManagedIdentityTokenEnv)
	return present
}

// policyResolver adapts the resource document's per-entity policy list to
// [policy.TextResolver].
type policyResolver struct {
	policies map[policyKey]string
}

type policyKey struct {
	entity string
	role   string
	op     queryir.Operation
}

func newPolicyResolver(rc *config.RuntimeConfig) *policyResolver {
	m := make(map[policyKey]string)
	for _, ec := range rc.Entities {
		for _, pc := range ec.Policies {
			m[policyKey{entity: ec.Name, role: pc.Role, op: queryir.Operation(pc.Operation)}] = pc.Filter
		}
	}
	return &policyResolver{policies: m}
}

func (r *policyResolver) PolicyText(entityName, role string, op queryir.Operation) (string, bool) {
	text, ok := r.policies[policyKey{entity: entityName, role: role, op: op}]
	return text, ok
}

// controlPlaneDataSource returns the data source marked as the bookkeeping
// store, if any, for the migration runner.
func controlPlaneDataSource(rc *config.RuntimeConfig) (config.DataSourceConfig, bool) {
	for _, ds := range rc.DataSources {
		if ds.IsControlPlane {
			return ds, true
		}
	}
	return config.DataSourceConfig{}, false
}

// firstDocDBDataSource returns the first configured DOC-DB data source, if
// any; the gateway supports at most one document store per deployment.
func firstDocDBDataSource(rc *config.RuntimeConfig) (config.DataSourceConfig, bool) {
	for _, ds := range rc.DataSources {
		if metadata.DatabaseType(ds.DatabaseType) == metadata.DatabaseTypeDocDB {
			return ds, true
		}
	}
	return config.DataSourceConfig{}, false
}

// mongoDatabaseName extracts the default database named in a Mongo
// connection URI's path segment.
func mongoDatabaseName(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	name := parsed.Path
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return name
}
