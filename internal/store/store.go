// Package store provides the typed data access layer on top of the
// database pool. Each entity (entries, accounts, sessions) declares a
// database.Table mapping and gets its own file of store methods; handlers
// call these methods rather than writing SQL themselves.
package store

import (
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/Rapptz/jimaku/internal/database"
)

// Store is the central data access object shared by every caller.
type Store struct {
	db *database.DB
}

// New creates a Store backed by db. The pool's lifecycle is managed by the
// caller; Store never closes it.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying pool for callers that need raw access.
func (s *Store) DB() *database.DB { return s.db }

// nullableText returns the named column as a *string, nil when NULL.
func nullableText(stmt *sqlite.Stmt, col string) *string {
	i := stmt.ColumnIndex(col)
	if i < 0 || stmt.ColumnType(i) == sqlite.TypeNull {
		return nil
	}
	v := stmt.ColumnText(i)
	return &v
}

// nullableInt returns the named column as a *int64, nil when NULL.
func nullableInt(stmt *sqlite.Stmt, col string) *int64 {
	i := stmt.ColumnIndex(col)
	if i < 0 || stmt.ColumnType(i) == sqlite.TypeNull {
		return nil
	}
	v := stmt.ColumnInt64(i)
	return &v
}

// textArg converts a *string into a bindable value, NULL when nil.
func textArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// intArg converts a *int64 into a bindable value, NULL when nil.
func intArg(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// unix converts a unix-seconds column value into a UTC time.
func unix(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}
