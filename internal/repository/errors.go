package repository

import (
	"strings"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
)

// Common repository errors. These alias the shared taxonomy so callers can
// match with either package's sentinel.
var (
	ErrNotFound       = mailerrors.ErrNotFound
	ErrDuplicateEntry = mailerrors.ErrDuplicateEntry
	ErrInvalidInput   = mailerrors.ErrInvalidInput
)

// isDuplicateKeyError checks if the error is a duplicate key violation
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "UNIQUE constraint") ||
		strings.Contains(errStr, "23505") // PostgreSQL unique violation code
}
