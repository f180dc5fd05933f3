// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/platform/principal"
	"github.com/taibuivan/dataapi/internal/queryir"
	"github.com/taibuivan/dataapi/internal/sqlengine"
)

func TestDerivePoolKey_DeterministicAndURLSafe(t *testing.T) {
	a := derivePoolKey("https://issuer.example", "user-oid-1")
	b := derivePoolKey("https://issuer.example", "user-oid-1")
	c := derivePoolKey("https://issuer.example", "user-oid-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, strings.ContainsAny(a, "+/="), "base64url-no-padding must not contain +, / or =")
}

func TestAppendAppIdentifierSuffix_TruncatesBaseNotSuffix(t *testing.T) {
	base := strings.Repeat("x", 200)
	suffix := "obo:abcdef"

	got := appendAppIdentifierSuffix(base, suffix)

	assert.LessOrEqual(t, len(got), maxAppIdentifierLength)
	assert.True(t, strings.HasSuffix(got, suffix))
}

func TestAppendAppIdentifierSuffix_ShortBaseUnaffected(t *testing.T) {
	got := appendAppIdentifierSuffix("postgres://localhost/db", "obo:xyz")
	assert.Equal(t, "postgres://localhost/db|obo:xyz", got)
}

type stubResolver struct {
	dsn               string
	dialectType       metadata.DatabaseType
	oboEnabled        bool
	sessionContext    bool
	hasManagedIdToken bool
}

func (s stubResolver) ConnectionString(string) (string, metadata.DatabaseType, bool) {
	return s.dsn, s.dialectType, true
}
func (s stubResolver) SetSessionContext(string) bool      { return s.sessionContext }
func (s stubResolver) OnBehalfOfEnabled(string) bool       { return s.oboEnabled }
func (s stubResolver) DatabaseAudience(string) string      { return "https://database.example/.default" }
func (s stubResolver) HasManagedIdentityToken(string) bool { return s.hasManagedIdToken }

func TestIsolateForCaller_OBODisabled_ReturnsBaseDSN(t *testing.T) {
	e := &Executor{resolver: stubResolver{dsn: "base", oboEnabled: false}}

	got, err := e.isolateForCaller("ds1", "base", &principal.Principal{Claims: map[string]string{"oid": "abc"}})

	require.NoError(t, err)
	assert.Equal(t, "base", got)
}

func TestIsolateForCaller_MissingClaims_FailsOboAuthentication(t *testing.T) {
	e := &Executor{resolver: stubResolver{dsn: "base", oboEnabled: true}}

	_, err := e.isolateForCaller("ds1", "base", &principal.Principal{Claims: map[string]string{}})

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.SubStatusOboAuthenticationFailure, appErr.SubStatus)
}

func TestIsolateForCaller_WithOID_AppendsIsolatedPoolKey(t *testing.T) {
	e := &Executor{resolver: stubResolver{dsn: "base", oboEnabled: true}}

	got, err := e.isolateForCaller("ds1", "base", &principal.Principal{Claims: map[string]string{"oid": "user-1", "iss": "https://issuer"}})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "base|obo:"))
}

func TestOrderedArgs_NilParamOrder_ReturnsNil(t *testing.T) {
	built := sqlengine.Built{Params: map[string]queryir.Parameter{"p1": {Value: 1}}}
	assert.Nil(t, orderedArgs(built))
}

func TestOrderedArgs_FollowsParamOrder(t *testing.T) {
	built := sqlengine.Built{
		Params:     map[string]queryir.Parameter{"p1": {Value: "a"}, "p2": {Value: "b"}},
		ParamOrder: []string{"p2", "p1"},
	}
	args := orderedArgs(built)
	require.Len(t, args, 2)
	assert.Equal(t, "b", args[0])
	assert.Equal(t, "a", args[1])
}

func TestWithRetry_NonTransientMySQLError_FailsImmediately(t *testing.T) {
	e := &Executor{}
	calls := 0

	err := e.withRetry(context.Background(), metadata.DatabaseTypeMySQL, func() error {
		calls++
		return &mysql.MySQLError{Number: 1062, Message: "duplicate entry"} // not transient
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_AppErrorPropagatesWithoutRetry(t *testing.T) {
	e := &Executor{}
	calls := 0
	sentinel := apperr.ItemNotFound("pk=1")

	err := e.withRetry(context.Background(), metadata.DatabaseTypeMySQL, func() error {
		calls++
		return sentinel
	})

	assert.Same(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_TransientErrorRetriesThenSucceeds(t *testing.T) {
	e := &Executor{}
	calls := 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := e.withRetry(ctx, metadata.DatabaseTypeMySQL, func() error {
		calls++
		if calls < 2 {
			return &mysql.MySQLError{Number: 1213, Message: "deadlock"} // transient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestNamedArgs_CarriesEveryParameter(t *testing.T) {
	built := sqlengine.Built{Params: map[string]queryir.Parameter{
		"param0": {Value: "x"},
		"param1": {Value: 42},
	}}
	args := namedArgs(built)
	assert.Len(t, args, 2)
}
