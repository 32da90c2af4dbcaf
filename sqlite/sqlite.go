package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/flagbearer/ctfbot"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migration/*.sql
var migrationFS embed.FS

// DB represents the database connection.
type DB struct {
	db     *sql.DB
	ctx    context.Context // background context
	cancel func()          // cancel background context

	// Datasource name.
	DSN string

	// Returns the current time. Defaults to time.Now().
	// Can be mocked for tests.
	Now func() time.Time
}

// NewDB returns a new instance of DB associated with the given datasource name.
func NewDB(dsn string) *DB {
	db := &DB{
		DSN: dsn,
		Now: time.Now,
	}
	db.ctx, db.cancel = context.WithCancel(context.Background())
	return db
}

// Open opens the database connection.
func (db *DB) Open() (err error) {
	// Ensure a DSN is set before attempting to open the database.
	if db.DSN == "" {
		return fmt.Errorf("dsn required")
	}

	// Make the parent directory unless using an in-memory db.
	if db.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(db.DSN), 0700); err != nil {
			return err
		}
	}

	// Connect to the database.
	if db.db, err = sql.Open("sqlite", db.DSN); err != nil {
		return err
	}

	// Every statement is short, so a single connection avoids SQLITE_BUSY
	// between writers and keeps ":memory:" databases coherent.
	db.db.SetMaxOpenConns(1)

	// Enable WAL. SQLite performs better with the WAL because it allows
	// multiple readers to operate while data is being written.
	if _, err := db.db.Exec(`PRAGMA journal_mode = wal;`); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}

	// Enable foreign key checks. For historical reasons, SQLite does not check
	// foreign key constraints by default.
	if _, err := db.db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return fmt.Errorf("foreign keys pragma: %w", err)
	}

	if err := db.CreateSchema(db.ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

// CreateSchema brings the schema up to date. Migrations that already ran are
// skipped, so it is safe to call on every startup.
func (db *DB) CreateSchema(ctx context.Context) error {
	// Ensure the 'migrations' table exists so we don't duplicate migrations.
	if _, err := db.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("cannot create migrations table: %w", err)
	}

	// Read migration files from our embedded file system.
	// This uses Go 1.16's 'embed' package.
	names, err := fs.Glob(migrationFS, "migration/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	// Loop over all migration files and execute them in order.
	for _, name := range names {
		if err := db.migrateFile(ctx, name); err != nil {
			return fmt.Errorf("migration error: name=%q err=%w", name, err)
		}
	}
	return nil
}

// migrateFile runs a single migration file within a transaction. On success,
// the migration file name is saved to the "migrations" table to prevent
// re-running.
func (db *DB) migrateFile(ctx context.Context, name string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Ensure migration has not already been run.
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM migrations WHERE name = ?`, name).Scan(&n); err != nil {
		return err
	} else if n != 0 {
		return nil // already run migration, skip
	}

	// Read and execute migration file.
	if buf, err := fs.ReadFile(migrationFS, name); err != nil {
		return err
	} else if _, err := tx.ExecContext(ctx, string(buf)); err != nil {
		return err
	}

	// Insert record into migrations to prevent re-running migration.
	if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (name) VALUES (?)`, name); err != nil {
		return err
	}

	return tx.Commit()
}

// Close closes the database connection.
func (db *DB) Close() error {
	// Cancel background context.
	db.cancel()

	// Close database.
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// BeginTx starts a transaction and returns a wrapper Tx type. This type
// provides a reference to the database and a fixed timestamp at the start of
// the transaction. The timestamp allows us to mock time during tests as well.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, FormatError(err)
	}

	// Return wrapper Tx that includes the transaction start time.
	return &Tx{
		Tx:  tx,
		db:  db,
		now: db.Now().UTC().Truncate(time.Second),
	}, nil
}

// Tx wraps the SQL Tx object to provide a timestamp at the start of the transaction.
type Tx struct {
	*sql.Tx
	db  *DB
	now time.Time
}

// NullTime represents a helper wrapper for time.Time. It automatically
// converts time fields to/from RFC 3339 format. Also supports NULL for zero
// time. Fixed width UTC strings keep range comparisons in SQL correct.
type NullTime time.Time

// Scan reads a time value from the database.
func (n *NullTime) Scan(value interface{}) error {
	switch value := value.(type) {
	case nil:
		*(*time.Time)(n) = time.Time{}
		return nil
	case string:
		t, err := time.Parse(time.RFC3339, value)
		*(*time.Time)(n) = t.UTC()
		return err
	case time.Time:
		*(*time.Time)(n) = value.UTC()
		return nil
	}
	return fmt.Errorf("NullTime: cannot scan to time.Time: %T", value)
}

// Value formats a time value for the database.
func (n *NullTime) Value() (driver.Value, error) {
	if n == nil || (*time.Time)(n).IsZero() {
		return nil, nil
	}
	return (*time.Time)(n).UTC().Format(time.RFC3339), nil
}

// NullID stores a snowflake as a signed INTEGER, with NULL for zero.
type NullID snowflake.ID

// Scan reads an identifier from the database.
func (n *NullID) Scan(value interface{}) error {
	switch value := value.(type) {
	case nil:
		*n = 0
		return nil
	case int64:
		*n = NullID(uint64(value))
		return nil
	}
	return fmt.Errorf("NullID: cannot scan to snowflake.ID: %T", value)
}

// Value formats an identifier for the database.
func (n *NullID) Value() (driver.Value, error) {
	if n == nil || *n == 0 {
		return nil, nil
	}
	return int64(*n), nil
}

// FormatLimitOffset returns a SQL string for a given limit & offset.
// Clauses are only added if limit and/or offset are greater than zero.
func FormatLimitOffset(limit, offset int) string {
	if limit > 0 && offset > 0 {
		return fmt.Sprintf(`LIMIT %d OFFSET %d`, limit, offset)
	} else if limit > 0 {
		return fmt.Sprintf(`LIMIT %d`, limit)
	} else if offset > 0 {
		return fmt.Sprintf(`LIMIT -1 OFFSET %d`, offset)
	}
	return ""
}

// FormatError converts a driver error into an application error. Unique
// constraint violations become ECONFLICT, anything else EDATABASE.
func FormatError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *ctfbot.Error
	if errors.As(err, &appErr) {
		return err
	}

	var e *msqlite.Error
	if errors.As(err, &e) {
		switch e.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ctfbot.WrapError(err, ctfbot.ECONFLICT, "Already exists.")
		}
	}

	return ctfbot.WrapError(err, ctfbot.EDATABASE, "Database error.")
}
