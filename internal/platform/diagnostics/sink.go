// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package diagnostics

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes drained statements to the execution_diagnostics
// bookkeeping table opened by the migration runner against the
// control-plane data source.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresSink constructs a [PostgresSink] over an already-migrated pool.
func NewPostgresSink(pool *pgxpool.Pool, logger *slog.Logger) *PostgresSink {
	return &PostgresSink{pool: pool, logger: logger}
}

// Flush drains collector and inserts every recorded statement. Failures are
// logged, not returned — diagnostics are best-effort bookkeeping, never a
// reason to fail the request that produced them.
func (s *PostgresSink) Flush(ctx context.Context, collector *Collector) {
	all := collector.DrainAll()
	for correlationID, stmts := range all {
		for _, stmt := range stmts {
			_, err := s.pool.Exec(ctx,
				`INSERT INTO execution_diagnostics (correlation_id, statement_id, entity_name, operation) VALUES ($1, $2, $3, $4)`,
				correlationID, stmt.StatementID, stmt.EntityName, stmt.Operation,
			)
			if err != nil {
				s.logger.WarnContext(ctx, "execution_diagnostics_flush_failed",
					slog.String("correlation_id", correlationID), slog.Any("error", err))
			}
		}
	}
}
