package database

import (
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
)

// ErrNoRows is returned by [GetRow] and the Tx equivalent when the query
// matches no rows. The Table helpers never return it; they model "not found"
// as a nil result instead.
var ErrNoRows = errors.New("database: no rows returned")

// PanicError is the reply delivered to a caller whose closure panicked
// inside a worker. The worker itself survives.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("database: closure panicked: %v", e.Value)
}

// IsUniqueConstraintViolation reports whether err is a unique-constraint
// failure, so callers can branch on "already exists" without matching error
// strings.
func IsUniqueConstraintViolation(err error) bool {
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintUnique, sqlite.ResultConstraintPrimaryKey:
		return true
	default:
		return false
	}
}
