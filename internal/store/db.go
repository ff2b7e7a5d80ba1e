package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// DB is a KV stored in a single SQL table, using pgx for Postgres or go-sqlite3 for SQLite.
type DB struct {
	Client  *sql.DB
	dialect Dialect
}

// NewDB creates a Postgres connection with sane defaults and ensures the schema exists.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return initDB(ctx, db, Postgres)
}

// NewSQLite opens (creating if needed) a SQLite database file.
func NewSQLite(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single connection keeps read-modify-write transactions serialized
	db.SetMaxOpenConns(1)
	return initDB(ctx, db, SQLite)
}

func initDB(ctx context.Context, db *sql.DB, dialect Dialect) (*DB, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db, dialect: dialect}, nil
}

// Dialect reports the SQL flavour in use.
func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := d.Client.QueryRowContext(ctx, d.bind(`SELECT value FROM kv_entries WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (d *DB) Put(ctx context.Context, key string, value []byte) error {
	return d.put(ctx, d.Client, key, value)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *DB) put(ctx context.Context, ex execer, key string, value []byte) error {
	_, err := ex.ExecContext(ctx, d.bind(`
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`), key, string(value))
	return err
}

func (d *DB) Delete(ctx context.Context, key string) error {
	_, err := d.Client.ExecContext(ctx, d.bind(`DELETE FROM kv_entries WHERE key = ?`), key)
	return err
}

func (d *DB) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := d.Client.QueryContext(ctx, d.bind(`SELECT key FROM kv_entries WHERE key LIKE ? ORDER BY key`), prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Update reads and writes key inside one transaction. Postgres locks the row with FOR UPDATE;
// SQLite relies on its single-writer lock. A missing key is seeded with an empty value first
// so concurrent first writers queue on the same row; the seed rolls back if fn fails.
func (d *DB) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := d.Client.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, d.bind(`
		INSERT INTO kv_entries (key, value) VALUES (?, '')
		ON CONFLICT (key) DO NOTHING
	`), key); err != nil {
		return err
	}

	query := `SELECT value FROM kv_entries WHERE key = ?`
	if d.dialect == Postgres {
		query += ` FOR UPDATE`
	}
	var current []byte
	var value string
	err = tx.QueryRowContext(ctx, d.bind(query), key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	case value != "":
		current = []byte(value)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if err := d.put(ctx, tx, key, next); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.Client == nil {
		return errors.New("db not configured")
	}
	return d.Client.PingContext(ctx)
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// bind rewrites ? placeholders to $n for Postgres.
func (d *DB) bind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
