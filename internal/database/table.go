package database

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Table describes a database table for the generic query helpers: its name,
// its full column list, and how to convert a result row into T. ID is the
// type of the table's primary key column.
//
// Each entity package declares one Table value; the metadata is read-only
// and freely shared. Column-name lookups stay inside FromRow, never in the
// generic helpers.
type Table[T, ID any] struct {
	Name    string
	Columns []string
	FromRow func(stmt *sqlite.Stmt) (T, error)
}

// UpdateQuery builds "UPDATE name SET c1 = ?, c2 = ? WHERE id = ?" for the
// given columns. The last bound parameter is the primary key of the row.
//
// Panics if any column is not in Columns. Update columns come from
// hardcoded lists, so an unknown name is a programmer mistake, not input to
// recover from, and must never reach the SQL text.
func (t Table[T, ID]) UpdateQuery(columns ...string) string {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(t.Name)
	b.WriteString(" SET ")
	for i, column := range columns {
		if !slices.Contains(t.Columns, column) {
			panic(fmt.Sprintf("database: %q is not a column of table %q", column, t.Name))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(column)
		b.WriteString(" = ?")
	}
	b.WriteString(" WHERE id = ?")
	return b.String()
}

// Get runs the query on a pool connection and maps the first result row to
// T. Returns (nil, nil) when the query matches no rows.
func Get[T, ID any](ctx context.Context, db *DB, table Table[T, ID], query string, args ...any) (*T, error) {
	var result *T
	err := db.Call(ctx, func(conn *sqlite.Conn) error {
		var err error
		result, err = queryOne(conn, table, query, args)
		return err
	})
	return result, err
}

// GetByID fetches a row by its primary key. Returns (nil, nil) when no such
// row exists.
func GetByID[T, ID any](ctx context.Context, db *DB, table Table[T, ID], id ID) (*T, error) {
	query := "SELECT * FROM " + table.Name + " WHERE id = ?"
	return Get(ctx, db, table, query, any(id))
}

// All runs the query on a pool connection and maps every result row to T.
// A query matching no rows yields an empty slice, not an error.
func All[T, ID any](ctx context.Context, db *DB, table Table[T, ID], query string, args ...any) ([]T, error) {
	var result []T
	err := db.Call(ctx, func(conn *sqlite.Conn) error {
		var err error
		result, err = queryAll(conn, table, query, args)
		return err
	})
	return result, err
}

// GetRow is the escape hatch for ad-hoc row shapes not covered by a Table:
// it runs the query and maps the first result row through fn. Unlike Get it
// treats an empty result set as an error ([ErrNoRows]).
func GetRow[R any](ctx context.Context, db *DB, query string, args []any, fn func(stmt *sqlite.Stmt) (R, error)) (R, error) {
	var (
		result R
		found  bool
	)
	err := db.Call(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if found {
					return nil
				}
				var err error
				result, err = fn(stmt)
				found = true
				return err
			},
		})
	})
	if err == nil && !found {
		err = ErrNoRows
	}
	return result, err
}

func queryOne[T, ID any](conn *sqlite.Conn, table Table[T, ID], query string, args []any) (*T, error) {
	var result *T
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if result != nil {
				return nil
			}
			value, err := table.FromRow(stmt)
			if err != nil {
				return err
			}
			result = &value
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func queryAll[T, ID any](conn *sqlite.Conn, table Table[T, ID], query string, args []any) ([]T, error) {
	result := []T{}
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value, err := table.FromRow(stmt)
			if err != nil {
				return err
			}
			result = append(result, value)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
