package db

import (
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

var (
	ErrNotFound      = fmt.Errorf("not found: %w", pgx.ErrNoRows)
	ErrAlreadyExists = errors.New("already exists")
	ErrSerialization = errors.New("serialization error")
)

// PostgreSQL error codes this package inspects.
const (
	pgCodeUniqueViolation     = "23505"
	pgCodeSerializationError  = "40001"
	pgCodeDeadlockDetected    = "40P01"
	pgCodeInFailedTransaction = "25P02"
	pgCodeUndefinedTable      = "42P01"
)

func isDialError(err error) bool {
	netError := &net.OpError{}
	return errors.As(err, &netError) && netError.Op == "dial"
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgCodeUniqueViolation
}

func IsSerializationError(err error) bool {
	if errors.Is(err, ErrSerialization) {
		return true
	}
	code := pgErrorCode(err)
	return code == pgCodeSerializationError || code == pgCodeDeadlockDetected
}

// IsAbortedTransaction reports whether err means the enclosing transaction is
// already aborted and will reject any statement until rollback.
func IsAbortedTransaction(err error) bool {
	return pgErrorCode(err) == pgCodeInFailedTransaction
}

// IsUndefinedTable reports a statement referencing a relation that does not
// exist (anymore), e.g. a reader racing a concurrent DROP TABLE.
func IsUndefinedTable(err error) bool {
	return pgErrorCode(err) == pgCodeUndefinedTable
}
