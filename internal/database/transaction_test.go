package database_test

import (
	"context"
	"errors"
	"testing"

	"zombiezen.com/go/sqlite"

	"github.com/Rapptz/jimaku/internal/database"
)

func fooCount(t *testing.T, db *database.DB) int64 {
	t.Helper()
	n, err := database.GetRow(context.Background(), db, "SELECT COUNT(*) FROM foo", nil,
		func(stmt *sqlite.Stmt) (int64, error) {
			return stmt.ColumnInt64(0), nil
		})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestTransactionCommits(t *testing.T) {
	t.Parallel()
	db := newPool(t, 2, fooSchema)
	ctx := context.Background()
	before := fooCount(t, db)

	err := db.Transaction(ctx, func(tx *database.Tx) error {
		if _, err := tx.Execute("INSERT INTO foo(name, age) VALUES (?, ?)", "a", 1); err != nil {
			return err
		}
		_, err := tx.Execute("INSERT INTO foo(name, age) VALUES (?, ?)", "b", 2)
		return err
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if got := fooCount(t, db); got != before+2 {
		t.Errorf("count = %d, want %d", got, before+2)
	}
}

// A closure that errors after writing must leave the database unchanged.
func TestTransactionRollsBackOnError(t *testing.T) {
	t.Parallel()
	db := newPool(t, 2, fooSchema)
	ctx := context.Background()
	before := fooCount(t, db)

	rollback := errors.New("rollback")
	err := db.Transaction(ctx, func(tx *database.Tx) error {
		if _, err := tx.Execute("INSERT INTO foo(name, age) VALUES (?, ?)", "a", 1); err != nil {
			return err
		}
		if _, err := tx.Execute("INSERT INTO foo(name, age) VALUES (?, ?)", "b", 2); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("err = %v, want the closure's error", err)
	}
	if got := fooCount(t, db); got != before {
		t.Errorf("count = %d, want %d (writes leaked out of aborted tx)", got, before)
	}
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	t.Parallel()
	db := newPool(t, 2, fooSchema)
	ctx := context.Background()
	before := fooCount(t, db)

	err := db.Transaction(ctx, func(tx *database.Tx) error {
		if _, err := tx.Execute("INSERT INTO foo(name, age) VALUES (?, ?)", "a", 1); err != nil {
			return err
		}
		panic("mid-transaction panic")
	})
	var panicErr *database.PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("err = %v, want *PanicError", err)
	}
	if got := fooCount(t, db); got != before {
		t.Errorf("count = %d, want %d (writes survived a panicked tx)", got, before)
	}
}

func TestTransactionTypedHelpers(t *testing.T) {
	t.Parallel()
	db := newPool(t, 2, fooSchema)
	ctx := context.Background()

	var (
		bob  *foo
		all  []foo
		gone *foo
	)
	err := db.Transaction(ctx, func(tx *database.Tx) error {
		var err error
		if bob, err = database.TxGet(tx, fooTable, "SELECT * FROM foo WHERE id = ?", 1); err != nil {
			return err
		}
		if all, err = database.TxAll(tx, fooTable, "SELECT * FROM foo ORDER BY id"); err != nil {
			return err
		}
		gone, err = database.TxGet(tx, fooTable, "SELECT * FROM foo WHERE id = ?", 9999)
		return err
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if bob == nil || bob.Name != "bob" {
		t.Errorf("TxGet = %+v, want bob", bob)
	}
	if len(all) != 3 {
		t.Errorf("TxAll len = %d, want 3", len(all))
	}
	if gone != nil {
		t.Errorf("TxGet(missing) = %+v, want nil", gone)
	}
}
