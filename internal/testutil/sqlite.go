// ABOUTME: Test helper that opens a temp-file SQLite database with all
// ABOUTME: migrations applied. Use NewTestDB(t) in tests that need real data.
package testutil

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Rapptz/jimaku/internal/database"
	"github.com/Rapptz/jimaku/internal/store"
	"github.com/Rapptz/jimaku/migrations"
)

// TestDB wraps a Store together with the underlying pool and the database
// file path. It embeds *store.Store so all store methods are directly
// callable.
type TestDB struct {
	*store.Store
	DB   *database.DB
	Path string
}

// NewTestDB creates a SQLite database in t.TempDir(), runs all migrations,
// and opens a three-connection pool over it. Everything is cleaned up via
// t.Cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "jimaku.db")
	if err := Migrate(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := database.File(path).
		Connections(3).
		WithInit(PragmaInit).
		Open()
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(db.Close)

	return &TestDB{Store: store.New(db), DB: db, Path: path}
}

// Migrate applies all embedded migrations to the database at path, using
// the same pattern as cmd/jimaku runMigrate.
func Migrate(path string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	// golang-migrate needs a *sql.DB; the one-shot migration run goes through
	// the modernc driver, the pool itself never does.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// PragmaInit is the per-connection initializer used across tests: foreign
// keys on, 5s busy timeout.
func PragmaInit(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		err := sqlitex.ExecuteTransient(conn, pragma, &sqlitex.ExecOptions{
			ResultFunc: func(*sqlite.Stmt) error { return nil },
		})
		if err != nil {
			return err
		}
	}
	return nil
}
