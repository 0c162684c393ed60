package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteBackend stores state snapshots in a SQLite database. Every Write
// appends a new snapshot row, so earlier state versions remain queryable.
// Locking uses a single-row locks table with a conditional insert.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend creates a backend for the given database path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteBackend{path: path}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (b *SQLiteBackend) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", b.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	b.db = db
	return b.migrate()
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *SQLiteBackend) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(b.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Type returns "sqlite".
func (b *SQLiteBackend) Type() string { return "sqlite" }

// Read returns the most recent state snapshot, or nil if none exists.
func (b *SQLiteBackend) Read(ctx context.Context) ([]byte, error) {
	query := `SELECT data FROM state_snapshots ORDER BY id DESC LIMIT 1`

	var data []byte
	err := b.db.QueryRowContext(ctx, query).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state snapshot: %w", err)
	}
	return data, nil
}

// Write appends a new state snapshot.
func (b *SQLiteBackend) Write(ctx context.Context, data []byte) error {
	query := `INSERT INTO state_snapshots (data, created_at) VALUES (?, ?)`

	_, err := b.db.ExecContext(ctx, query, data, time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("failed to write state snapshot: %w", err)
	}
	return nil
}

// Exists reports whether any snapshot has been written.
func (b *SQLiteBackend) Exists(ctx context.Context) (bool, error) {
	var count int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM state_snapshots`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count state snapshots: %w", err)
	}
	return count > 0, nil
}

// Lock inserts the lock row, failing with *LockError if one exists.
func (b *SQLiteBackend) Lock(ctx context.Context, info *LockInfo) error {
	query := `
		INSERT INTO locks (name, lock_id, who, created, info)
		SELECT 'state', ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM locks WHERE name = 'state')
	`

	result, err := b.db.ExecContext(ctx, query,
		info.ID, info.Who, info.Created.Format(time.RFC3339), info.Info)
	if err != nil {
		return fmt.Errorf("failed to acquire state lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		holder, err := b.readLock(ctx)
		if err != nil {
			return fmt.Errorf("state is locked but holder is unreadable: %w", err)
		}
		return &LockError{Holder: holder}
	}
	return nil
}

// Unlock deletes the lock row if lockID matches.
func (b *SQLiteBackend) Unlock(ctx context.Context, lockID string) error {
	result, err := b.db.ExecContext(ctx,
		`DELETE FROM locks WHERE name = 'state' AND lock_id = ?`, lockID)
	if err != nil {
		return fmt.Errorf("failed to release state lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		holder, readErr := b.readLock(ctx)
		if readErr != nil {
			// No lock at all: treat as already unlocked.
			return nil
		}
		return fmt.Errorf("lock ID mismatch: held by %s with ID %s", holder.Who, holder.ID)
	}
	return nil
}

// ForceUnlock removes the lock row after confirming the lockID matches
// the current holder.
func (b *SQLiteBackend) ForceUnlock(ctx context.Context, lockID string) error {
	holder, err := b.readLock(ctx)
	if err != nil {
		return fmt.Errorf("state is not locked")
	}
	if holder.ID != lockID {
		return fmt.Errorf("lock ID %q does not match current lock %q", lockID, holder.ID)
	}
	_, err = b.db.ExecContext(ctx, `DELETE FROM locks WHERE name = 'state'`)
	if err != nil {
		return fmt.Errorf("failed to force-unlock state: %w", err)
	}
	return nil
}

// SupportsLocking returns true.
func (b *SQLiteBackend) SupportsLocking() bool { return true }

func (b *SQLiteBackend) readLock(ctx context.Context) (*LockInfo, error) {
	query := `SELECT lock_id, who, created, info FROM locks WHERE name = 'state'`

	var info LockInfo
	var created string
	err := b.db.QueryRowContext(ctx, query).Scan(&info.ID, &info.Who, &created, &info.Info)
	if err != nil {
		return nil, err
	}
	if t, parseErr := time.Parse(time.RFC3339, created); parseErr == nil {
		info.Created = t
	}
	return &info, nil
}
