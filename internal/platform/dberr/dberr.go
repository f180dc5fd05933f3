// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package dberr bridges low-level, driver-specific database errors into the
gateway's [apperr.AppError] taxonomy. Classification is dialect-specific
(spec.md §4.4): each dialect declares its own transient SQLSTATE/error-number
set up front; the Query Executor's retry loop consults [IsTransient] before
giving up and wrapping the error with [Wrap].
*/
package dberr

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
)

// pgTransientCodes are PostgreSQL SQLSTATEs treated as transient: connection
// failures and serialization/deadlock conflicts safe to retry.
var pgTransientCodes = map[string]bool{
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
}

// mysqlTransientErrnos are MySQL server error numbers treated as transient.
var mysqlTransientErrnos = map[uint16]bool{
	1205: true, // ER_LOCK_WAIT_TIMEOUT
	1213: true, // ER_LOCK_DEADLOCK
	2002: true, // CR_CONNECTION_ERROR
	2006: true, // CR_SERVER_GONE_ERROR
	2013: true, // CR_SERVER_LOST
}

// mssqlTransientNumbers are SQL Server error numbers treated as transient
// (throttling, deadlock, connection-broken) — denisenkom/go-mssqldb surfaces
// these on its own error type, kept here as a plain int set since the driver
// type is only needed at the call site that already holds a *mssql.Error.
var mssqlTransientNumbers = map[int32]bool{
	1205:  true, // deadlock victim
	4060:  true, // cannot open database (transient during failover)
	40197: true, // service busy (Azure SQL)
	40501: true, // service busy (Azure SQL)
	40613: true, // database unavailable (Azure SQL failover)
}

// IsTransient classifies err as retryable for the given dialect, per
// spec.md §4.4's dialect-specific transient-error declaration.
func IsTransient(dialectType metadata.DatabaseType, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch dialectType {
	case metadata.DatabaseTypePostgres:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return pgTransientCodes[pgErr.Code]
		}
	case metadata.DatabaseTypeMySQL:
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) {
			return mysqlTransientErrnos[myErr.Number]
		}
	case metadata.DatabaseTypeMSSQL:
		if num, ok := mssqlErrorNumber(err); ok {
			return mssqlTransientNumbers[num]
		}
	}
	return false
}

// mssqlErrorNumberer is satisfied by denisenkom/go-mssqldb's *mssql.Error
// without importing the driver package here, keeping dberr buildable even
// when only a subset of drivers is vendored for a given deployment.
type mssqlErrorNumberer interface {
	SQLErrorNumber() int32
}

func mssqlErrorNumber(err error) (int32, bool) {
	var numberer mssqlErrorNumberer
	if errors.As(err, &numberer) {
		return numberer.SQLErrorNumber(), true
	}
	return 0, false
}

// Wrap classifies a non-transient database error into a
// [apperr.DatabaseOperationFailed], honoring developerMode for message
// disclosure. httpStatus lets a dialect map specific errors (e.g. a unique
// constraint violation) to a 4xx instead of the 500 default.
func Wrap(err error, httpStatus int, developerMode bool) error {
	if err == nil {
		return nil
	}
	return apperr.DatabaseOperationFailed(err, httpStatus, developerMode)
}
