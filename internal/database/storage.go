package database

import (
	"context"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// StorageValue is the set of types the storage table can hold. Times are
// stored as RFC 3339 text.
type StorageValue interface {
	string | int64 | int | float64 | bool | time.Time
}

// GetFromStorage reads a value from the reserved (name, value) key-value
// table. The second return is false when the key is absent.
//
// Unlike the rest of this package, every error path collapses into a miss:
// the storage table holds best-effort process state (scrape timestamps,
// feature toggles) where a caller cannot do anything useful with the
// distinction between "not set" and "failed to read". Do not imitate this
// elsewhere.
func GetFromStorage[T StorageValue](ctx context.Context, db *DB, key string) (T, bool) {
	var (
		value T
		found bool
	)
	err := db.Call(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT value FROM storage WHERE name = ?", &sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if stmt.ColumnType(0) == sqlite.TypeNull {
					return nil
				}
				v, ok := decodeStorageValue[T](stmt)
				value, found = v, ok
				return nil
			},
		})
	})
	if err != nil {
		slog.Debug("storage read failed", "key", key, "error", err)
		var zero T
		return zero, false
	}
	return value, found
}

// UpdateStorage writes a value into the key-value table. Keys are seeded by
// the schema migration; updating a key that was never seeded is a silent
// no-op.
func (db *DB) UpdateStorage(ctx context.Context, key string, value any) error {
	if t, ok := value.(time.Time); ok {
		value = t.UTC().Format(time.RFC3339)
	}
	_, err := db.Execute(ctx, "UPDATE storage SET value = ? WHERE name = ?", value, key)
	return err
}

// decodeStorageValue converts the value column into T. The column is stored
// loosely typed, so numeric and boolean values round-trip through SQLite's
// own coercions; times are parsed from RFC 3339 text.
func decodeStorageValue[T StorageValue](stmt *sqlite.Stmt) (T, bool) {
	var value T
	switch p := any(&value).(type) {
	case *string:
		*p = stmt.ColumnText(0)
	case *int64:
		*p = stmt.ColumnInt64(0)
	case *int:
		*p = int(stmt.ColumnInt64(0))
	case *float64:
		*p = stmt.ColumnFloat(0)
	case *bool:
		*p = stmt.ColumnBool(0)
	case *time.Time:
		t, err := time.Parse(time.RFC3339, stmt.ColumnText(0))
		if err != nil {
			return value, false
		}
		*p = t
	}
	return value, true
}
