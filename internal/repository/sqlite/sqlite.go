// Package sqlite implements the repository contract on SQLite.
//
// Each collection is a table with an "id" TEXT primary key and one column
// per field; lists and objects are stored as canonical JSON text, booleans
// as 0/1. Each relation is a table of (parent_id, child_id) with a
// composite primary key. All ids are stored as UUID text.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks (default 5 seconds)
//   - foreign_keys=ON: Enforce referential integrity
//
// The schema version is PRAGMA user_version. Migrate runs pending
// migrations and the version update in a single transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tessera/internal/repository"
)

// Config configures a database.
type Config struct {
	// Path of the database file. ":memory:" opens a private in-memory
	// database.
	Path string

	// BusyTimeout is how long a statement waits for a lock.
	BusyTimeout time.Duration

	// Logger receives migration logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the configuration for a database file at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, BusyTimeout: 5 * time.Second}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("sqlite: path is required")
	}
	if c.BusyTimeout < 0 {
		return errors.New("sqlite: busy timeout must not be negative")
	}
	return nil
}

// DB is a SQLite repository.
type DB struct {
	tables
	db     *sql.DB
	logger *slog.Logger
}

var _ repository.Repository = (*DB)(nil)

// Open creates or opens a database and applies the required pragmas.
// It does not create any table; run Migrate for that.
func Open(cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection also keeps
	// ":memory:" databases alive and shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{tables: tables{q: db}, db: db, logger: logger}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// SQL returns the underlying sql.DB for direct queries.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Transact runs fn in a transaction, committed only if fn succeeds.
func (d *DB) Transact(ctx context.Context, fn func(repository.Tables) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tables{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Version returns PRAGMA user_version.
func (d *DB) Version(ctx context.Context) (int, error) {
	var version int
	if err := d.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// Migrate applies every migration newer than the stored version and stores
// the highest version, all in one transaction.
func (d *DB) Migrate(ctx context.Context, migrations []repository.Migration) (int, error) {
	if err := repository.ValidateMigrations(migrations); err != nil {
		return 0, err
	}
	current, err := d.Version(ctx)
	if err != nil {
		return 0, err
	}
	pending := repository.Pending(migrations, current)
	if len(pending) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, m := range pending {
		for i, stmt := range m.Script {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return 0, fmt.Errorf("migrate to v%d (%s) statement %d: %w", m.Version, m.Name, i+1, err)
			}
		}
		d.logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}
	target := pending[len(pending)-1].Version
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return 0, fmt.Errorf("set user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit migration: %w", err)
	}
	return len(pending), nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, busy time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (d *DB) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := d.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
