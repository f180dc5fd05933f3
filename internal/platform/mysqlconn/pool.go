// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mysqlconn provides the MY-SQL connection layer: a database/sql pool
per data source, backed by `github.com/go-sql-driver/mysql`, mirroring
internal/platform/postgres's [Manager] shape so the Query Executor opens
each dialect's pools the same way regardless of driver.
*/
package mysqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 60 * time.Minute
	connMaxIdleTime = 10 * time.Minute
	pingTimeout     = 2 * time.Second
)

// Manager lazily opens and caches one *sql.DB per DSN.
type Manager struct {
	logger *slog.Logger

	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewManager constructs an empty [Manager].
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger, pools: make(map[string]*sql.DB)}
}

// Pool returns the cached pool for dsn, opening and validating a new one on
// first use.
func (m *Manager) Pool(ctx context.Context, dsn string) (*sql.DB, error) {
	m.mu.Lock()
	if db, ok := m.pools[dsn]; ok {
		m.mu.Unlock()
		return db, nil
	}
	m.mu.Unlock()

	db, err := newPool(ctx, dsn, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.pools[dsn]; ok {
		db.Close()
		return existing, nil
	}
	m.pools[dsn] = db
	return db, nil
}

// Close closes every pool the manager has opened.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, db := range m.pools {
		db.Close()
	}
	m.pools = make(map[string]*sql.DB)
}

func newPool(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlconn: invalid DSN: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysqlconn: ping failed: %w", err)
	}

	if logger != nil {
		logger.Info("mysql pool connected", slog.Int("max_open_conns", maxOpenConns))
	}
	return db, nil
}
