package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the repositories react to.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeLockNotAvailable    = "55P03"
	CodeQueryCanceled       = "57014"
)

// ErrorCode returns the SQLSTATE of err, or "" if err is not a server error.
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return ErrorCode(err) == CodeUniqueViolation
}

// IsForeignKeyViolation reports a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return ErrorCode(err) == CodeForeignKeyViolation
}

// IsLockTimeout reports a lock wait that hit lock_timeout.
func IsLockTimeout(err error) bool {
	return ErrorCode(err) == CodeLockNotAvailable
}
