package dbx

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// UniqueConstraint returns the name of the violated unique constraint, or ""
// when err is not a unique violation.
func UniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}

// IsUnavailable reports whether err means the database could not answer:
// deadline exceeded, broken connection, network failure or a pgconn timeout.
// Caller cancellation (context.Canceled) is not an availability problem.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// Classify wraps availability failures as common.StoreUnavailableError for op
// and returns every other error unchanged.
func Classify(op string, err error) error {
	if IsUnavailable(err) {
		return common.Unavailable(op, err)
	}
	return err
}
