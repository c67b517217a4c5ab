package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrKeyNotFound is returned by Get when no record exists under the key.
var ErrKeyNotFound = errors.New("key not found")

// KV is a small durable key/value store backed by SQLite. It holds the
// serialized session collection and the active session id under fixed keys.
type KV struct {
	db *sql.DB
}

// Open creates or opens the store at dbPath and initializes the schema.
func Open(ctx context.Context, dbPath string) (*KV, error) {
	// WAL mode and a busy timeout keep concurrent readers from tripping
	// over the single writer.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// SQLite doesn't support multiple writers well.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	kv := &KV{db: db}
	if err := kv.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return kv, nil
}

func (k *KV) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);`
	if _, err := k.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := k.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Put stores value under key, replacing any previous record.
func (k *KV) Put(ctx context.Context, key string, value []byte) error {
	_, err := k.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes the record under key. Missing keys are not an error.
func (k *KV) Delete(ctx context.Context, key string) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (k *KV) Close() error {
	return k.db.Close()
}
