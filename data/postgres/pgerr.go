package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes used by this package.
const (
	SQLStateUniqueViolation      = "23505"
	SQLStateForeignKeyViolation  = "23503"
	SQLStateNotNullViolation     = "23502"
	SQLStateCheckViolation       = "23514"
	SQLStateSerializationFailure = "40001"
	SQLStateDeadlockDetected     = "40P01"
	SQLStateSyntaxError          = "42601"
	SQLStateUndefinedTable       = "42P01"
)

type ConstraintInfo struct {
	Code     string // SQLSTATE (e.g. 23505)
	Name     string // constraint name from PG
	Schema   string
	Table    string
	Detail   string
	IsUnique bool
}

// Constraint extracts server error details from err. Both pgx and lib/pq
// errors are understood, wrapped or not.
func Constraint(err error) (ConstraintInfo, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return ConstraintInfo{
			Code:     pgErr.Code,
			Name:     pgErr.ConstraintName,
			Schema:   pgErr.SchemaName,
			Table:    pgErr.TableName,
			Detail:   pgErr.Detail,
			IsUnique: pgErr.Code == SQLStateUniqueViolation,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return ConstraintInfo{
			Code:     code,
			Name:     pqErr.Constraint,
			Schema:   pqErr.Schema,
			Table:    pqErr.Table,
			Detail:   pqErr.Detail,
			IsUnique: code == SQLStateUniqueViolation,
		}, true
	}
	return ConstraintInfo{}, false
}

// SQLState returns the SQLSTATE of a server error, or "".
func SQLState(err error) string {
	info, ok := Constraint(err)
	if !ok {
		return ""
	}
	return info.Code
}

// Narrow helper predicates.
func IsUniqueViolation(err error) bool     { return SQLState(err) == SQLStateUniqueViolation }
func IsForeignKeyViolation(err error) bool { return SQLState(err) == SQLStateForeignKeyViolation }
func IsNotNullViolation(err error) bool    { return SQLState(err) == SQLStateNotNullViolation }

// IsRetryable reports transaction conflicts a caller may safely retry.
func IsRetryable(err error) bool {
	switch SQLState(err) {
	case SQLStateSerializationFailure, SQLStateDeadlockDetected:
		return true
	}
	return false
}
