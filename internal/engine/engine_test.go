// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/engine"
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
)

type stubEngine struct{ engine.Engine }

func newFactory(t *testing.T, docDB engine.DocDBEngine) (*engine.Factory, *metadata.Provider) {
	t.Helper()
	provider := metadata.NewProvider(nil)
	provider.SetDataSourceTypes(map[string]metadata.DatabaseType{
		"mssql-ds":    metadata.DatabaseTypeMSSQL,
		"postgres-ds": metadata.DatabaseTypePostgres,
		"mysql-ds":    metadata.DatabaseTypeMySQL,
		"docdb-ds":    metadata.DatabaseTypeDocDB,
	})
	return engine.New(provider, nil, nil, nil, nil, docDB), provider
}

func TestFactory_For_UnknownDataSource_FailsDataSourceNotFound(t *testing.T) {
	f, _ := newFactory(t, nil)

	_, err := f.For("ghost-ds")

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusDataSourceNotFound, appErr.SubStatus)
}

func TestFactory_For_ResolvesEachSQLDialect(t *testing.T) {
	f, _ := newFactory(t, nil)

	for _, ds := range []string{"mssql-ds", "postgres-ds", "mysql-ds"} {
		eng, err := f.For(ds)
		require.NoError(t, err)
		assert.NotNil(t, eng)
	}
}

func TestFactory_For_DocDBWithoutEngineConfigured_FailsDataSourceNotFound(t *testing.T) {
	f, _ := newFactory(t, nil)

	_, err := f.For("docdb-ds")

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusDataSourceNotFound, appErr.SubStatus)
}

func TestFactory_For_DocDBWithEngineConfigured_ReturnsIt(t *testing.T) {
	docDB := stubEngine{}
	f, _ := newFactory(t, docDB)

	eng, err := f.For("docdb-ds")

	require.NoError(t, err)
	assert.Equal(t, docDB, eng)
}
