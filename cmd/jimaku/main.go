// Command jimaku is the subtitle catalog server binary.
//
// Subcommands:
//
//	migrate    — run pending database migrations and exit
//	check      — open the connection pool and verify database integrity
//	storage    — read or write a key in the process-state storage table
//	relocate   — rewrite entry paths after the data directory moved
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	// Automatically sets GOMEMLIMIT from the cgroup memory limit so that
	// the Go GC triggers before the OOM killer fires in containers.
	_ "github.com/KimMachineGun/automemlimit"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Rapptz/jimaku/internal/config"
	"github.com/Rapptz/jimaku/internal/database"
	"github.com/Rapptz/jimaku/internal/store"
	"github.com/Rapptz/jimaku/migrations"
)

func main() {
	root := &cobra.Command{
		Use:   "jimaku",
		Short: "jimaku — Japanese subtitle catalog",
		// Silence default error printing; we print it ourselves with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		migrateCmd(),
		checkCmd(),
		storageCmd(),
		relocateCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// ── migrate ───────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending database migrations and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	slog.Info("running migrations", "path", cfg.DatabasePath)

	// Source: embedded SQL files from the migrations package.
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	// golang-migrate requires a *sql.DB. This is a one-shot run through the
	// modernc driver; the worker pool never touches database/sql.
	db, err := sql.Open("sqlite", cfg.DatabasePath)
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

	version, _, _ := m.Version() //nolint:errcheck
	slog.Info("migrations complete", "version", version)
	return nil
}

// ── check ─────────────────────────────────────────────────────────────────────

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Open the connection pool and verify database integrity",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	db, err := openPool(cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	ctx := cmd.Context()

	result, err := database.GetRow(ctx, db, "PRAGMA integrity_check", nil,
		func(stmt *sqlite.Stmt) (string, error) {
			return stmt.ColumnText(0), nil
		})
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	st := store.New(db)
	entries, err := st.CountEntries(ctx)
	if err != nil {
		return err
	}
	slog.Info("database ok", "entries", entries)
	return nil
}

// ── storage ───────────────────────────────────────────────────────────────────

func storageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Read or write a key in the process-state storage table",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value stored under a key",
			Args:  cobra.ExactArgs(1),
			RunE:  runStorageGet,
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Replace the value stored under a key",
			Args:  cobra.ExactArgs(2),
			RunE:  runStorageSet,
		},
	)
	return cmd
}

func runStorageGet(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	db, err := openPool(cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	value, ok := database.GetFromStorage[string](cmd.Context(), db, args[0])
	if !ok {
		return fmt.Errorf("storage key %q is not set", args[0])
	}
	fmt.Println(value)
	return nil
}

func runStorageSet(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	db, err := openPool(cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := db.UpdateStorage(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("update storage: %w", err)
	}
	return nil
}

// ── relocate ──────────────────────────────────────────────────────────────────

func relocateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relocate <old-prefix> <new-prefix>",
		Short: "Rewrite entry paths after the data directory moved",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelocate,
	}
}

func runRelocate(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	db, err := openPool(cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	ctx := cmd.Context()
	oldPrefix, newPrefix := args[0], args[1]

	entries, err := database.All(ctx, db, store.EntryTable, "SELECT * FROM directory_entry")
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}

	moved := 0
	err = db.Transaction(ctx, func(tx *database.Tx) error {
		query := store.EntryTable.UpdateQuery("path")
		for _, entry := range entries {
			if !strings.HasPrefix(entry.Path, oldPrefix) {
				continue
			}
			path := newPrefix + strings.TrimPrefix(entry.Path, oldPrefix)
			if _, err := tx.Execute(query, path, entry.ID); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("relocate entries: %w", err)
	}
	slog.Info("entries relocated", "moved", moved, "total", len(entries))
	return nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// setup loads configuration and installs the default logger.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(newLogger(cfg))
	return cfg, nil
}

// openPool opens the worker pool over the configured database file, with
// per-connection PRAGMAs applied by the initializer.
func openPool(cfg *config.Config) (*database.DB, error) {
	busyTimeout := fmt.Sprintf("PRAGMA busy_timeout = %d;", cfg.DBBusyTimeoutMS)
	return database.File(cfg.DatabasePath).
		Connections(cfg.DBConnections).
		WithInit(func(conn *sqlite.Conn) error {
			for _, pragma := range []string{"PRAGMA foreign_keys = ON;", busyTimeout} {
				err := sqlitex.ExecuteTransient(conn, pragma, &sqlitex.ExecOptions{
					ResultFunc: func(*sqlite.Stmt) error { return nil },
				})
				if err != nil {
					return err
				}
			}
			return nil
		}).
		Open()
}

// newLogger builds the process-wide slog.Logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
