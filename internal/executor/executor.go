// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package executor implements the Query Executor of spec.md §4.4: connection
acquisition, per-user on-behalf-of pool isolation, managed-identity/OBO
token acquisition, T-SQL session-context stamping, transient-error retry,
and the polymorphic reader handlers (`json_string`, `row_set`,
`multi_result`) that turn a built statement into the shape the REST/GraphQL
surfaces return.
*/
package executor

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/dataapi/internal/executor/token"
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/platform/ctxutil"
	"github.com/taibuivan/dataapi/internal/platform/dberr"
	"github.com/taibuivan/dataapi/internal/platform/diagnostics"
	"github.com/taibuivan/dataapi/internal/platform/mssqlconn"
	"github.com/taibuivan/dataapi/internal/platform/mysqlconn"
	"github.com/taibuivan/dataapi/internal/platform/postgres"
	"github.com/taibuivan/dataapi/internal/platform/principal"
	"github.com/taibuivan/dataapi/internal/sqlengine"
	"github.com/taibuivan/dataapi/internal/sqlengine/tsql"
)

// ReaderMode selects which reader handler interprets a statement's result,
// per spec.md §4.4's "Reader handlers" polymorphism.
type ReaderMode int

const (
	// ModeJSONString expects the statement's single column/single row to be
	// (possibly row-fragmented) JSON text, as every dialect's Find query
	// produces.
	ModeJSONString ReaderMode = iota
	// ModeRowSet streams every row as a column-name-to-value map — used by
	// stored-procedure Execute results.
	ModeRowSet
	// ModeUpsert reads the dialect-specific upsert result shape and
	// classifies it into IS_UPDATE plus the affected row, per §4.2/§4.7.
	ModeUpsert
	// ModeMutation reads a single returned row for Insert/Update/Delete.
	ModeMutation
)

// Result is what [Executor.Execute] hands back to the gateway/graphqlgw
// surfaces for them to shape into a response.
type Result struct {
	// JSON holds the raw JSON payload for ModeJSONString (Find).
	JSON []byte
	// Row holds a single returned row for ModeMutation/ModeUpsert.
	Row map[string]any
	// Rows holds every returned row for ModeRowSet.
	Rows []map[string]any
	// IsUpdate is populated only for ModeUpsert, per §4.7's state machine.
	IsUpdate bool
}

// ConnectionResolver exposes the declarative per-data-source configuration
// the executor needs; satisfied by an adapter over [config.RuntimeConfig].
type ConnectionResolver interface {
	ConnectionString(dataSourceName string) (string, metadata.DatabaseType, bool)
	SetSessionContext(dataSourceName string) bool
	OnBehalfOfEnabled(dataSourceName string) bool
	DatabaseAudience(dataSourceName string) string
	HasManagedIdentityToken(dataSourceName string) bool
}

// Cache is the response-shaping cache pass-through collaborator of
// SPEC_FULL's "Response-shaping cache pass-through": a miss runs the
// pipeline as normal, so a nil Cache (or one that always misses) just
// disables caching rather than breaking requests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// NoCacheKey passed to [Executor.Execute] disables the response cache for
// that call — every mutation path uses it, since only Find's json_string
// result is a caching candidate.
const NoCacheKey = ""

// CacheKeyFor derives the response cache key described in SPEC_FULL's
// response-shaping cache: entity, elemental operation, acting role, the
// rendered SQL text, and the bound parameter values.
func CacheKeyFor(entityName, operation, role string, built sqlengine.Built) string {
	names := make([]string, 0, len(built.Params))
	for name := range built.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", entityName, operation, role, built.SQL)
	for _, name := range names {
		fmt.Fprintf(h, "|%s=%v", name, built.Params[name].Value)
	}
	return "resp:" + hex.EncodeToString(h.Sum(nil))
}

// statementID derives the diagnostics statement id for built — a stable
// fingerprint of its rendered SQL text, independent of entity/role.
func statementID(built sqlengine.Built) string {
	sum := sha256.Sum256([]byte(built.SQL))
	return hex.EncodeToString(sum[:8])
}

// ExecutionMeta carries the bookkeeping around one [Executor.Execute] call:
// the entity/operation the statement belongs to, for diagnostics and cache
// key derivation, and the response-cache key itself.
type ExecutionMeta struct {
	EntityName string
	Operation  string
	// CacheKey checks/populates the response-shaping cache for
	// ModeJSONString calls; pass [NoCacheKey] to skip it.
	CacheKey string
}

// Executor is the single Query Executor shared by every SQL dialect; the
// DOC-DB engine (internal/docdb) implements the engine-factory contract
// directly instead of going through this type.
type Executor struct {
	resolver ConnectionResolver

	pgPools    *postgres.Manager
	mysqlPools *mysqlconn.Manager
	mssqlPools *mssqlconn.Manager

	identity token.Provider
	obo      token.OBOExchanger
	tokens   *token.Cache

	cache    Cache
	cacheTTL time.Duration

	diagnostics *diagnostics.Collector

	logger        *slog.Logger
	developerMode bool
}

// New constructs an [Executor]. identity and obo may be nil — their
// absence just means the best-effort token paths are skipped, matching
// spec.md §4.4's "credential unavailability is logged as a warning." cache
// and diagCollector may also be nil, disabling the response-shaping cache
// and the execution-diagnostics collector respectively.
func New(
	resolver ConnectionResolver,
	pgPools *postgres.Manager,
	mysqlPools *mysqlconn.Manager,
	mssqlPools *mssqlconn.Manager,
	identity token.Provider,
	obo token.OBOExchanger,
	cache Cache,
	cacheTTL time.Duration,
	diagCollector *diagnostics.Collector,
	logger *slog.Logger,
	developerMode bool,
) *Executor {
	return &Executor{
		resolver:      resolver,
		pgPools:       pgPools,
		mysqlPools:    mysqlPools,
		mssqlPools:    mssqlPools,
		identity:      identity,
		obo:           obo,
		tokens:        token.NewCache(),
		cache:         cache,
		cacheTTL:      cacheTTL,
		diagnostics:   diagCollector,
		logger:        logger,
		developerMode: developerMode,
	}
}

// Execute runs built against dataSourceName's configured dialect, retrying
// transient failures with exponential backoff (spec.md §4.4), and
// interprets the result according to mode. meta.CacheKey checks and
// populates the response-shaping cache for ModeJSONString calls; pass
// [NoCacheKey] to skip it. Every call is recorded against the request's
// correlation id in the execution-diagnostics collector, if configured.
func (e *Executor) Execute(ctx context.Context, dataSourceName string, built sqlengine.Built, mode ReaderMode, caller *principal.Principal, meta ExecutionMeta) (*Result, error) {
	if e.diagnostics != nil {
		e.diagnostics.Record(ctxutil.GetRequestID(ctx), diagnostics.Statement{
			EntityName:  meta.EntityName,
			Operation:   meta.Operation,
			StatementID: statementID(built),
		})
	}

	cacheable := mode == ModeJSONString && meta.CacheKey != NoCacheKey && e.cache != nil
	if cacheable {
		if cached, ok := e.cache.Get(ctx, meta.CacheKey); ok {
			return &Result{JSON: cached}, nil
		}
	}

	dsn, dialectType, ok := e.resolver.ConnectionString(dataSourceName)
	if !ok {
		return nil, apperr.DataSourceNotFound(dataSourceName)
	}

	dsn, err := e.isolateForCaller(dataSourceName, dsn, caller)
	if err != nil {
		return nil, err
	}

	e.attachToken(ctx, dataSourceName, dialectType, caller)

	var result *Result
	err = e.withRetry(ctx, dialectType, func() error {
		var execErr error
		result, execErr = e.executeOnce(ctx, dataSourceName, dsn, dialectType, built, mode, caller)
		return execErr
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		e.cache.Set(ctx, meta.CacheKey, result.JSON, e.cacheTTL)
	}
	return result, nil
}

func (e *Executor) executeOnce(ctx context.Context, dataSourceName, dsn string, dialectType metadata.DatabaseType, built sqlengine.Built, mode ReaderMode, caller *principal.Principal) (*Result, error) {
	switch dialectType {
	case metadata.DatabaseTypePostgres:
		return e.executePostgres(ctx, dsn, built, mode)
	case metadata.DatabaseTypeMySQL:
		return e.executeMySQL(ctx, dsn, built, mode)
	case metadata.DatabaseTypeMSSQL:
		return e.executeMSSQL(ctx, dataSourceName, dsn, built, mode, caller)
	default:
		return nil, apperr.DataSourceNotFound(dataSourceName)
	}
}

// # Retry Policy

func (e *Executor) withRetry(ctx context.Context, dialectType metadata.DatabaseType, attempt func() error) error {
	const maxExtraAttempts = 5

	var lastErr error
	for n := 0; n <= maxExtraAttempts; n++ {
		if n > 0 {
			delay := time.Duration(1<<uint(n)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = attempt()
		if lastErr == nil {
			return nil
		}
		if apperr.IsAppError(lastErr) {
			return lastErr
		}
		if !dberr.IsTransient(dialectType, lastErr) {
			return dberr.Wrap(lastErr, 0, e.developerMode)
		}
		if e.logger != nil {
			e.logger.WarnContext(ctx, "transient_database_error_retrying", slog.Int("attempt", n+1), slog.Any("error", lastErr))
		}
	}
	return dberr.Wrap(lastErr, 0, e.developerMode)
}

// # Per-User Pool Isolation (OBO)

func (e *Executor) isolateForCaller(dataSourceName, baseDSN string, caller *principal.Principal) (string, error) {
	if !e.resolver.OnBehalfOfEnabled(dataSourceName) {
		return baseDSN, nil
	}
	if caller == nil {
		// No request context (startup/metadata phase): use the base string.
		return baseDSN, nil
	}

	oid, hasOID := caller.OID()
	sub, hasSub := caller.Subject()
	if !hasOID && !hasSub {
		return "", apperr.OboAuthenticationFailure("caller lacks oid/sub claim required for on-behalf-of pool isolation")
	}
	identity := oid
	if !hasOID {
		identity = sub
	}
	issuer, _ := caller.Issuer()

	pk := derivePoolKey(issuer, identity)
	return appendAppIdentifierSuffix(baseDSN, fmt.Sprintf("obo:%s", pk)), nil
}

// derivePoolKey computes pk = H(issuer || '|' || identity), Base64url
// without padding, per spec.md §4.4.
func derivePoolKey(issuer, identity string) string {
	sum := sha256.Sum256([]byte(issuer + "|" + identity))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

const maxAppIdentifierLength = 128

// appendAppIdentifierSuffix appends "|"+suffix to the application-name
// portion of dsn, truncating the base name (never the suffix) so the total
// never exceeds 128 characters (spec.md §4.4, property test §8 item 6).
//
// This models the application-identifier as the whole DSN string rather
// than parsing a dialect-specific "application name" key, since the three
// drivers in this pack spell it differently (pgx "application_name",
// go-sql-driver "?" query params, go-mssqldb "app name"); callers that need
// the real key-value form can post-process the returned string themselves.
func appendAppIdentifierSuffix(baseDSN, suffix string) string {
	full := baseDSN + "|" + suffix
	if len(full) <= maxAppIdentifierLength {
		return full
	}
	overflow := len(full) - maxAppIdentifierLength
	if overflow >= len(baseDSN) {
		return suffix
	}
	return baseDSN[:len(baseDSN)-overflow] + "|" + suffix
}

// # Token Acquisition

// attachToken best-effort resolves an access token for this call, per
// spec.md §4.4's three-tier precedence (managed identity > OBO > default
// credential). It currently only warms the in-process cache and logs
// failures — wiring the resulting [token.Token] onto a live connection is
// driver-specific (an access-token connection option on the dialect's DSN)
// and is the dialect pool manager's responsibility at dial time.
func (e *Executor) attachToken(ctx context.Context, dataSourceName string, dialectType metadata.DatabaseType, caller *principal.Principal) {
	if e.resolver.HasManagedIdentityToken(dataSourceName) {
		return
	}

	if e.resolver.OnBehalfOfEnabled(dataSourceName) && caller != nil && e.obo != nil {
		audience := e.resolver.DatabaseAudience(dataSourceName)
		if caller.BearerToken == "" {
			if e.logger != nil {
				e.logger.WarnContext(ctx, "obo_token_exchange_skipped_missing_bearer", slog.String("data_source", dataSourceName))
			}
			return
		}
		key := "obo:" + dataSourceName + ":" + caller.BearerToken
		_, err := e.tokens.GetOrAcquire(key, time.Now(), func() (token.Token, error) {
			return e.obo.Exchange(ctx, caller.BearerToken, audience)
		})
		if err != nil && e.logger != nil {
			e.logger.WarnContext(ctx, "obo_token_exchange_failed", slog.String("data_source", dataSourceName), slog.Any("error", err))
		}
		return
	}

	if e.identity != nil {
		key := "default:" + dataSourceName
		const defaultScope = "database.windows.net/.default"
		_, err := e.tokens.GetOrAcquire(key, time.Now(), func() (token.Token, error) {
			return e.identity.Acquire(ctx, defaultScope)
		})
		if err != nil && e.logger != nil {
			e.logger.WarnContext(ctx, "default_credential_unavailable", slog.String("data_source", dataSourceName), slog.Any("error", err))
		}
	}
}

// # PG-SQL Execution

func (e *Executor) executePostgres(ctx context.Context, dsn string, built sqlengine.Built, mode ReaderMode) (*Result, error) {
	pool, err := e.pgPools.Pool(ctx, dsn)
	if err != nil {
		return nil, dberr.Wrap(err, 0, e.developerMode)
	}

	args := orderedArgs(built)

	switch mode {
	case ModeJSONString:
		var payload []byte
		if err := pool.QueryRow(ctx, built.SQL, args...).Scan(&payload); err != nil {
			return nil, err
		}
		return &Result{JSON: payload}, nil

	case ModeUpsert:
		rows, err := pool.Query(ctx, built.SQL, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return classifyPostgresUpsert(rows)

	default: // ModeMutation, ModeRowSet
		rows, err := pool.Query(ctx, built.SQL, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return readPgxRows(rows)
	}
}

func orderedArgs(built sqlengine.Built) []any {
	if len(built.ParamOrder) == 0 {
		return nil
	}
	args := make([]any, len(built.ParamOrder))
	for i, name := range built.ParamOrder {
		args[i] = built.Params[name].Value
	}
	return args
}

func readPgxRows(rows pgx.Rows) (*Result, error) {
	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return &Result{Rows: out}, nil
	}
	return &Result{Row: out[0], Rows: out}, nil
}

// classifyPostgresUpsert reads the union of update_cte/insert_cte, whose
// final projected column is literally "op" ('updated' or 'inserted').
func classifyPostgresUpsert(rows pgx.Rows) (*Result, error) {
	fields := rows.FieldDescriptions()
	var row map[string]any
	var op string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row = make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		if v, ok := row["op"]; ok {
			op, _ = v.(string)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperr.UnexpectedError(fmt.Errorf("upsert CTE returned no rows"))
	}
	delete(row, "op")
	return &Result{Row: row, IsUpdate: op == "updated"}, nil
}

// # MY-SQL Execution

func (e *Executor) executeMySQL(ctx context.Context, dsn string, built sqlengine.Built, mode ReaderMode) (*Result, error) {
	db, err := e.mysqlPools.Pool(ctx, dsn)
	if err != nil {
		return nil, dberr.Wrap(err, 0, e.developerMode)
	}

	args := orderedArgs(built)

	switch mode {
	case ModeJSONString:
		var payload []byte
		if err := db.QueryRowContext(ctx, built.SQL, args...).Scan(&payload); err != nil {
			return nil, err
		}
		return &Result{JSON: payload}, nil

	case ModeMutation, ModeUpsert:
		res, err := db.ExecContext(ctx, built.SQL, args...)
		if err != nil {
			return nil, err
		}
		affected, _ := res.RowsAffected()
		if len(built.Batch) == 0 {
			return &Result{}, nil
		}
		row, err := readSingleRowSQL(ctx, db, built.Batch[0])
		if err != nil {
			return nil, err
		}
		// ON DUPLICATE KEY UPDATE reports affected=2 for an update path and
		// affected=1 for a fresh insert under the default client flags.
		return &Result{Row: row, IsUpdate: affected == 2}, nil

	default:
		rows, err := db.QueryContext(ctx, built.SQL, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return readSQLRows(rows)
	}
}

func readSingleRowSQL(ctx context.Context, db *sql.DB, query string) (map[string]any, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result, err := readSQLRows(rows)
	if err != nil {
		return nil, err
	}
	return result.Row, nil
}

func readSQLRows(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return &Result{Rows: out}, nil
	}
	return &Result{Row: out[0], Rows: out}, nil
}

// # T-SQL Execution

func (e *Executor) executeMSSQL(ctx context.Context, dataSourceName, dsn string, built sqlengine.Built, mode ReaderMode, caller *principal.Principal) (*Result, error) {
	db, err := e.mssqlPools.Pool(ctx, dsn)
	if err != nil {
		return nil, dberr.Wrap(err, 0, e.developerMode)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if e.resolver.SetSessionContext(dataSourceName) && caller != nil {
		if err := e.stampSessionContext(ctx, conn, caller); err != nil {
			return nil, err
		}
	}

	switch mode {
	case ModeJSONString:
		return readMSSQLJSON(ctx, conn, built)
	case ModeUpsert:
		return e.classifyMSSQLUpsert(ctx, conn, built)
	default:
		rows, err := conn.QueryContext(ctx, built.SQL, namedArgs(built)...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return readSQLRows(rows)
	}
}

func namedArgs(built sqlengine.Built) []any {
	args := make([]any, 0, len(built.Params))
	for name, param := range built.Params {
		args = append(args, sql.Named(name, param.Value))
	}
	return args
}

func readMSSQLJSON(ctx context.Context, conn *sql.Conn, built sqlengine.Built) (*Result, error) {
	// T-SQL's FOR JSON PATH splits large payloads across multiple rows at
	// ~2033 bytes; the json_string handler concatenates every row's single
	// column before deserializing.
	rows, err := conn.QueryContext(ctx, built.SQL, namedArgs(built)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sb []byte
	for rows.Next() {
		var fragment string
		if err := rows.Scan(&fragment); err != nil {
			return nil, err
		}
		sb = append(sb, fragment...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sb) == 0 {
		sb = []byte("null")
	}
	return &Result{JSON: sb}, nil
}

// classifyMSSQLUpsert runs the Init→ReadCount→ReadResult→Done state
// machine of spec.md §4.7 against the T-SQL batch: count statement, then
// the update/insert statement.
func (e *Executor) classifyMSSQLUpsert(ctx context.Context, conn *sql.Conn, built sqlengine.Built) (*Result, error) {
	if len(built.Batch) != 2 {
		return nil, apperr.UnexpectedError(fmt.Errorf("mssql upsert batch must carry count and insert statements, got %d", len(built.Batch)))
	}
	countStmt, insertStmt := built.Batch[0], built.Batch[1]

	var pkCount int
	if err := conn.QueryRowContext(ctx, countStmt, namedArgs(built)...).Scan(&pkCount); err != nil {
		return nil, err
	}

	// ReadResult: run the UPDATE path when a matching row exists, else INSERT.
	stmt := built.SQL
	if pkCount == 0 {
		stmt = insertStmt
	}
	rows, err := conn.QueryContext(ctx, stmt, namedArgs(built)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result, err := readSQLRows(rows)
	if err != nil {
		return nil, err
	}

	switch {
	case pkCount == 1 && len(result.Rows) == 0:
		return nil, apperr.DatabasePolicyFailure("the configured database policy prevented the update from affecting any row")
	case pkCount == 1:
		return &Result{Row: result.Row, IsUpdate: true}, nil
	case pkCount == 0 && len(result.Rows) == 0:
		return nil, apperr.ItemNotFound("")
	default:
		return &Result{Row: result.Row, IsUpdate: false}, nil
	}
}

func (e *Executor) stampSessionContext(ctx context.Context, conn *sql.Conn, caller *principal.Principal) error {
	claimParams := make(map[string]string, len(caller.Claims))
	args := make([]any, 0, len(caller.Claims))
	i := 0
	for claimType, value := range caller.Claims {
		paramName := fmt.Sprintf("session_param%d", i)
		claimParams[claimType] = paramName
		args = append(args, sql.Named(paramName, value))
		i++
	}
	for _, stmt := range tsql.SessionContextPrelude(claimParams) {
		if _, err := conn.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return nil
}
