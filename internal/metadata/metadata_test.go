// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/metadata"
)

func TestProvider_Entity_UnknownNameReportsAbsent(t *testing.T) {
	p := metadata.NewProvider(nil)

	_, ok := p.Entity("notes")
	assert.False(t, ok)
}

func TestProvider_Entity_FindsRegisteredSource(t *testing.T) {
	source := &metadata.SourceDefinition{EntityName: "notes", DataSourceName: "primary"}
	p := metadata.NewProvider([]*metadata.SourceDefinition{source})

	got, ok := p.Entity("notes")
	require.True(t, ok)
	assert.Equal(t, "primary", got.DataSourceName)
}

func TestProvider_Reload_ReplacesEntitiesAtomically(t *testing.T) {
	p := metadata.NewProvider([]*metadata.SourceDefinition{{EntityName: "notes"}})
	p.Reload([]*metadata.SourceDefinition{{EntityName: "tags"}})

	_, ok := p.Entity("notes")
	assert.False(t, ok)

	_, ok = p.Entity("tags")
	assert.True(t, ok)
}

func TestProvider_DataSourceType_UnknownReportsAbsent(t *testing.T) {
	p := metadata.NewProvider(nil)

	_, ok := p.DataSourceType("primary")
	assert.False(t, ok)
}

func TestProvider_DataSourceType_ResolvesConfiguredDialect(t *testing.T) {
	p := metadata.NewProvider(nil)
	p.SetDataSourceTypes(map[string]metadata.DatabaseType{
		"primary": metadata.DatabaseTypePostgres,
		"legacy":  metadata.DatabaseTypeMSSQL,
	})

	got, ok := p.DataSourceType("primary")
	require.True(t, ok)
	assert.Equal(t, metadata.DatabaseTypePostgres, got)

	got, ok = p.DataSourceType("legacy")
	require.True(t, ok)
	assert.Equal(t, metadata.DatabaseTypeMSSQL, got)
}

func TestSourceDefinition_HasPrimaryKeySuffix(t *testing.T) {
	source := &metadata.SourceDefinition{PrimaryKey: []string{"tenant_id", "id"}}

	assert.True(t, source.HasPrimaryKeySuffix([]string{"id", "tenant_id"}))
	assert.False(t, source.HasPrimaryKeySuffix([]string{"id", "tenant_id", "extra"}))
	assert.False(t, source.HasPrimaryKeySuffix(nil))
}
