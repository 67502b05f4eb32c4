// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schema is created on every connection; CREATE TABLE IF NOT EXISTS
// makes it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

// Config holds the parameters for opening a store. Path is required.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. The file is created if it does not
	// exist. Use ":memory:" for an in-memory store in tests (pool
	// size is forced to 1 since each in-memory connection is
	// independent).
	Path string

	// PoolSize is the number of connections in the pool. If zero or
	// negative, defaults to 2: the store's workload is a handful of
	// single-row reads and writes, one writer plus one reader covers
	// concurrent session restore and monitor sweeps.
	PoolSize int

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// DB is a durable key-value store backed by SQLite in WAL mode. It is
// safe for concurrent use. Values are opaque byte slices; callers
// handle serialization.
type DB struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the store, applying WAL journaling and a busy timeout
// to every connection. The caller must call Close when done.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("kvstore: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}
	if cfg.Path == ":memory:" {
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening %s: %w", cfg.Path, err)
	}

	logger.Debug("kv store opened", "path", cfg.Path, "pool_size", poolSize)

	return &DB{pool: pool, logger: logger, path: cfg.Path}, nil
}

// Close closes all connections. Blocks until borrowed connections are
// returned.
func (db *DB) Close() error {
	if err := db.pool.Close(); err != nil {
		return fmt.Errorf("kvstore: closing %s: %w", db.path, err)
	}
	return nil
}

// Get returns the value stored under key. The second return is false
// when the key is absent.
func (db *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: take: %w", err)
	}
	defer db.pool.Put(conn)

	var value []byte
	var found bool
	err = sqlitex.Execute(conn, `SELECT value FROM kv WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, value)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	return value, found, nil
}

// PutAll atomically writes every entry in values, overwriting existing
// keys. All writes commit together or not at all: the session store
// relies on this so the authenticated flag and the credential blob can
// never disagree on disk.
func (db *DB) PutAll(ctx context.Context, values map[string][]byte) (err error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("kvstore: take: %w", err)
	}
	defer db.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("kvstore: begin: %w", err)
	}
	defer endFn(&err)

	for key, value := range values {
		err = sqlitex.Execute(conn,
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			&sqlitex.ExecOptions{Args: []any{key, value}})
		if err != nil {
			return fmt.Errorf("kvstore: put %q: %w", key, err)
		}
	}
	return nil
}

// Put writes a single key.
func (db *DB) Put(ctx context.Context, key string, value []byte) error {
	return db.PutAll(ctx, map[string][]byte{key: value})
}

// DeleteAll atomically removes every given key. Deleting an absent key
// is not an error.
func (db *DB) DeleteAll(ctx context.Context, keys ...string) (err error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("kvstore: take: %w", err)
	}
	defer db.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("kvstore: begin: %w", err)
	}
	defer endFn(&err)

	for _, key := range keys {
		err = sqlitex.Execute(conn, `DELETE FROM kv WHERE key = ?`,
			&sqlitex.ExecOptions{Args: []any{key}})
		if err != nil {
			return fmt.Errorf("kvstore: delete %q: %w", key, err)
		}
	}
	return nil
}

// prepareConnection applies standard pragmas and the schema. Runs once
// per connection, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	// WAL for concurrent readers during writes; NORMAL synchronous
	// survives process crashes, which is the durability level session
	// state needs (the server remains the source of truth for the
	// credential itself).
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("kvstore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("kvstore: creating schema: %w", err)
	}
	return nil
}
