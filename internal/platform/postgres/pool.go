// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package postgres provides the PG-SQL connection layer: a pgxpool-backed pool
per data source, generalized from a single hard-wired pool into a
[Manager] keyed by connection string so the Query Executor can open one
pool per configured PG-SQL data source, plus one isolated pool per
on-behalf-of caller (spec.md §4.4's per-user pool isolation).

Architecture:

  - Pool: Thread-safe connection pooling with automatic health checks (Ping).
  - Tuning: Configures MaxConns, MinConns, and MaxConnIdleTime for scalability.
  - Safety: Integrates context deadlines to prevent runaway queries.
*/
package postgres

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/dataapi/internal/platform/constants"
)

// Opinionated pool settings for the gateway workload.
const (
	maxConns          = 25
	minConns          = 5
	maxConnLifetime   = 60 * time.Minute
	maxConnIdleTime   = 10 * time.Minute
	healthCheckPeriod = 1 * time.Minute
	connectTimeout    = 5 * time.Second
	pingTimeout       = 2 * time.Second
)

// Manager lazily opens and caches one *pgxpool.Pool per connection string,
// so the executor can request a data source's base pool or a per-OBO-user
// pool by its derived connection string without re-dialing on every call.
type Manager struct {
	logger *slog.Logger

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewManager constructs an empty [Manager].
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger, pools: make(map[string]*pgxpool.Pool)}
}

// Pool returns the cached pool for dsn, opening and validating a new one on
// first use.
func (m *Manager) Pool(ctx stdctx.Context, dsn string) (*pgxpool.Pool, error) {
	m.mu.Lock()
	if pool, ok := m.pools[dsn]; ok {
		m.mu.Unlock()
		return pool, nil
	}
	m.mu.Unlock()

	pool, err := newPool(ctx, dsn, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.pools[dsn]; ok {
		pool.Close()
		return existing, nil
	}
	m.pools[dsn] = pool
	return pool, nil
}

// Close closes every pool the manager has opened.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pool := range m.pools {
		pool.Close()
	}
	m.pools = make(map[string]*pgxpool.Pool)
}

// newPool creates and validates a new PostgreSQL connection pool.
func newPool(ctx stdctx.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid DSN: %w", err)
	}

	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = minConns
	poolConfig.MaxConnLifetime = maxConnLifetime
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.HealthCheckPeriod = healthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	// AfterConnect is called each time a new physical connection is established.
	// We use it to set a per-connection statement timeout for safety.
	poolConfig.AfterConnect = func(ctx stdctx.Context, connection *pgx.Conn) error {
		timeoutQuery := fmt.Sprintf("SET statement_timeout = '%ds'", int(constants.GlobalRequestTimeout.Seconds()))
		_, err := connection.Exec(ctx, timeoutQuery)
		return err
	}

	connectCtx, cancel := stdctx.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}

	if err := Ping(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	stats := pool.Stat()
	if logger != nil {
		logger.Info("postgres pool connected",
			slog.Int("max_conns", int(stats.MaxConns())),
			slog.Int("total_conns", int(stats.TotalConns())),
		)
	}

	return pool, nil
}

// Ping verifies that the PostgreSQL connection pool is healthy.
func Ping(ctx stdctx.Context, pool *pgxpool.Pool) error {
	pingCtx, cancel := stdctx.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("postgres: ping failed: %w", err)
	}
	return nil
}
