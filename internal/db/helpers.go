package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	errDuplicateEntry   = 1062
	errLockWaitTimeout  = 1205
	errDeadlockDetected = 1213
)

// IsDuplicateKey reports a unique index violation.
func IsDuplicateKey(err error) bool {
	return mysqlNumber(err) == errDuplicateEntry
}

// IsRetryable reports deadlocks and lock wait timeouts; the whole unit of
// work may be re-run.
func IsRetryable(err error) bool {
	n := mysqlNumber(err)
	return n == errDeadlockDetected || n == errLockWaitTimeout
}

func mysqlNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// NullIfEmpty helps store optional strings as NULL.
func NullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NullInt64 maps a nil pointer to NULL.
func NullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Int64Ptr converts a scanned sql.NullInt64 into a pointer.
func Int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// RowsAffected returns 0 when the driver cannot report a count.
func RowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
