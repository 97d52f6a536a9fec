package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Sentinel errors surfaced by the store. Constraint violations are
// reported as-is to the caller; nothing is silently repaired.
var (
	// ErrNotFound indicates the referenced row does not exist
	ErrNotFound = errors.New("not found")
	// ErrUniqueViolation indicates a duplicate telegram_id or phone_number
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrForeignKeyViolation indicates a reference to a non-existent row
	ErrForeignKeyViolation = errors.New("foreign key violation")
	// ErrAccountLimit indicates the user's plan does not allow more linked accounts
	ErrAccountLimit = errors.New("account limit reached")
)

// translateError maps driver-level constraint errors to the package
// sentinels so callers can test them with errors.Is.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", ErrForeignKeyViolation, err)
		}
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %v", ErrForeignKeyViolation, err)
		}
	}

	return err
}
