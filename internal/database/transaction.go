package database

import (
	"context"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Tx is a transaction scoped to one worker's connection. It is only valid
// for the duration of the closure passed to [DB.Transaction] and must not be
// retained or used from another goroutine.
type Tx struct {
	conn *sqlite.Conn
}

// Transaction runs fn inside a transaction on a single pool connection. The
// transaction commits only if fn returns nil; an error or a panic rolls
// everything back. Statements inside fn are linearized with respect to every
// other job on the same worker.
//
// Results are captured by the closure:
//
//	var entry *store.Entry
//	err := db.Transaction(ctx, func(tx *database.Tx) error {
//		var err error
//		entry, err = database.TxGet(tx, store.EntryTable, query, id)
//		return err
//	})
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	return db.Call(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Save(conn)(&err)
		return fn(&Tx{conn: conn})
	})
}

// Execute runs the query with the given parameters inside the transaction
// and reports the number of rows affected.
func (tx *Tx) Execute(query string, args ...any) (int, error) {
	if err := sqlitex.Execute(tx.conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return 0, err
	}
	return tx.conn.Changes(), nil
}

// LastInsertRowID reports the rowid of the most recent successful INSERT on
// this transaction's connection.
func (tx *Tx) LastInsertRowID() int64 {
	return tx.conn.LastInsertRowID()
}

// TxGet is [Get] inside a transaction. Returns (nil, nil) when the query
// matches no rows.
func TxGet[T, ID any](tx *Tx, table Table[T, ID], query string, args ...any) (*T, error) {
	return queryOne(tx.conn, table, query, args)
}

// TxAll is [All] inside a transaction.
func TxAll[T, ID any](tx *Tx, table Table[T, ID], query string, args ...any) ([]T, error) {
	return queryAll(tx.conn, table, query, args)
}
