package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: not found")

// DB wraps a SQLite database holding one table of namespaced JSON values.
type DB struct {
	sql *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. Use ":memory:" in tests.
func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writers.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("kvstore: pragma: %w", err)
	}
	db := &DB{sql: d, now: time.Now}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("kvstore: migrate: %w", err)
	}
	return db, nil
}

// Close closes the underlying database.
func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
	  namespace  TEXT NOT NULL,
	  key        TEXT NOT NULL,
	  value      TEXT NOT NULL,
	  updated_at INTEGER NOT NULL,
	  PRIMARY KEY (namespace, key)
	);
	`)
	return err
}

// Set stores value under namespace/key, replacing any previous value.
func (d *DB) Set(ctx context.Context, namespace, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("kvstore: set %s/%s: value is not valid JSON", namespace, key)
	}
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO kv(namespace, key, value, updated_at) VALUES(?,?,?,?)
	ON CONFLICT(namespace, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		namespace, key, string(value), d.now().Unix())
	if err != nil {
		return fmt.Errorf("kvstore: set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// SetMany stores every entry of values in one transaction.
func (d *DB) SetMany(ctx context.Context, namespace string, values map[string]json.RawMessage) error {
	for k, v := range values {
		if !json.Valid(v) {
			return fmt.Errorf("kvstore: set %s/%s: value is not valid JSON", namespace, k)
		}
	}

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kvstore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := d.now().Unix()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO kv(namespace, key, value, updated_at) VALUES(?,?,?,?)
		ON CONFLICT(namespace, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
			namespace, k, string(v), now); err != nil {
			return fmt.Errorf("kvstore: set %s/%s: %w", namespace, k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kvstore: commit: %w", err)
	}
	return nil
}

// Get returns the value stored under namespace/key, or ErrNotFound.
func (d *DB) Get(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace=? AND key=?`, namespace, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s/%s: %w", namespace, key, err)
	}
	return json.RawMessage(v), nil
}

// All returns every key/value pair in namespace.
func (d *DB) All(ctx context.Context, namespace string) (map[string]json.RawMessage, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT key, value FROM kv WHERE namespace=?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("kvstore: list %s: %w", namespace, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("kvstore: list %s: %w", namespace, err)
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}

// Delete removes namespace/key. Deleting a missing key is not an error.
func (d *DB) Delete(ctx context.Context, namespace, key string) error {
	if _, err := d.sql.ExecContext(ctx, `DELETE FROM kv WHERE namespace=? AND key=?`, namespace, key); err != nil {
		return fmt.Errorf("kvstore: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Clear removes every key in namespace.
func (d *DB) Clear(ctx context.Context, namespace string) error {
	if _, err := d.sql.ExecContext(ctx, `DELETE FROM kv WHERE namespace=?`, namespace); err != nil {
		return fmt.Errorf("kvstore: clear %s: %w", namespace, err)
	}
	return nil
}
