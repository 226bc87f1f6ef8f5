package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultNamespace is the row key the preference blob lives under.
const DefaultNamespace = "stakeclaw.preferences"

// SQLiteBackend stores the blob as one row of a key/value table, so several
// processes can share a preferences database without losing each other's keys.
type SQLiteBackend struct {
	db  *sql.DB
	key string
}

// OpenSQLite opens (or creates) the database at path and stores the blob
// under namespace.
func OpenSQLite(path, namespace string) (*SQLiteBackend, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("prefs: create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open db: %w", err)
	}
	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("prefs: %s: %w", pragma, err)
		}
	}

	b := &SQLiteBackend{db: db, key: namespace}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefs: migrate: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	_, err := b.db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	return err
}

// Load returns the stored blob.
func (b *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	var value string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, b.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// Update runs the read-modify-write inside BEGIN IMMEDIATE, which takes the
// write lock up front so a concurrent writer waits instead of being overwritten.
func (b *SQLiteBackend) Update(ctx context.Context, fn func(old []byte) ([]byte, error)) (err error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.Background(), `ROLLBACK`)
		}
	}()

	var old []byte
	var value string
	switch scanErr := conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, b.key).Scan(&value); {
	case scanErr == nil:
		old = []byte(value)
	case errors.Is(scanErr, sql.ErrNoRows):
	default:
		return scanErr
	}

	next, err := fn(old)
	if err != nil {
		return err
	}

	if _, err = conn.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		b.key, string(next),
	); err != nil {
		return err
	}

	if _, err = conn.ExecContext(ctx, `COMMIT`); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
