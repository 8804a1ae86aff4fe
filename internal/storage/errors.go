package storage

import (
	"errors"
	"io/fs"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Cause classifies why database initialization failed.
type Cause string

const (
	CauseConnection Cause = "connection"
	CauseSchema     Cause = "schema"
	CausePermission Cause = "permission"
	CauseUnknown    Cause = "unknown"
)

// InitError wraps a failure raised by Storage.Init. Its message is the
// message of the underlying error so log lines stay readable.
type InitError struct {
	Cause Cause
	Err   error
}

func (e *InitError) Error() string {
	if e.Err == nil {
		return string(e.Cause)
	}
	return e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// initFailure wraps err as an InitError unless it already is one.
func initFailure(err error) error {
	if err == nil {
		return nil
	}
	var initErr *InitError
	if errors.As(err, &initErr) {
		return err
	}
	return &InitError{Cause: Classify(err), Err: err}
}

// Classify maps a database error onto a Cause.
func Classify(err error) Cause {
	if err == nil {
		return CauseUnknown
	}

	var initErr *InitError
	if errors.As(err, &initErr) && initErr.Cause != "" {
		return initErr.Cause
	}

	if errors.Is(err, fs.ErrPermission) {
		return CausePermission
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501", "28000", "28P01":
			return CausePermission
		case "08000", "08001", "08003", "08004", "08006", "57P03":
			return CauseConnection
		default:
			return CauseSchema
		}
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CANTOPEN:
			return CauseConnection
		case sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH:
			return CausePermission
		default:
			return CauseSchema
		}
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return CauseConnection
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CauseConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CauseConnection
	}

	return CauseUnknown
}
