// Package sqlite provides a SQLite-backed cache and operation queue for
// the sync engine, suited to clients that already ship a SQLite database
// or need SQL-level inspection of the sync state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/frndly/statesync"
	syncErrors "github.com/frndly/statesync/errors"
	"github.com/frndly/statesync/logging"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// Config holds the store's connection options.
type Config struct {
	// DataSourceName is the SQLite connection string.
	DataSourceName string

	// EnableWAL turns on Write-Ahead Logging for better concurrency.
	// Recommended outside of tests; appends _journal_mode=WAL to the DSN.
	EnableWAL bool

	// Connection pool settings. Zero values fall back to the defaults
	// below.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Logger is an optional store logger. Nil falls back to a
	// component-scoped child of the package default.
	Logger *logging.Logger
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = logging.Default().WithComponent("sqlite")
	}
}

// Store implements statesync.Store and statesync.QueueStore on a SQLite
// database with two tables: cache(key, value) and queue(id, operation).
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// Open opens the database and creates the schema if needed.
func Open(cfg Config) (*Store, error) {
	cfg.setDefaults()

	dsn := cfg.DataSourceName
	if cfg.EnableWAL {
		sep := "?"
		for _, r := range dsn {
			if r == '?' {
				sep = "&"
				break
			}
		}
		dsn += sep + "_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpInit, fmt.Errorf("failed to open sqlite database: %w", err))
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	schema := `
	CREATE TABLE IF NOT EXISTS cache (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS queue (
		id        TEXT PRIMARY KEY,
		operation TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, syncErrors.NewStorageError(syncErrors.OpInit, fmt.Errorf("failed to create schema: %w", err))
	}

	cfg.Logger.Debug("SQLite sync store opened", "wal", cfg.EnableWAL)
	return &Store{db: db, logger: cfg.Logger}, nil
}

// Get returns the cached payload for key, (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key string) (statesync.Payload, error) {
	if s.db == nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, ErrStoreClosed)
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	var p statesync.Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("Corrupt cache entry", "key", key, "error", err)
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, fmt.Errorf("corrupt cache entry %q: %w", key, err))
	}
	return p, nil
}

// Set writes the payload for key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value statesync.Payload) error {
	if s.db == nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, ErrStoreClosed)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(raw))
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	return nil
}

// Delete removes the cached payload for key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.db == nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, ErrStoreClosed)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	return nil
}

// Append persists a queued operation.
func (s *Store) Append(ctx context.Context, op *statesync.Operation) error {
	if s.db == nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, ErrStoreClosed)
	}
	raw, err := json.Marshal(op)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queue (id, operation) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET operation = excluded.operation`,
		op.ID, string(raw))
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return nil
}

// Remove drops a persisted operation by id.
func (s *Store) Remove(ctx context.Context, id string) error {
	if s.db == nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, ErrStoreClosed)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, id); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return nil
}

// List returns every persisted operation.
func (s *Store) List(ctx context.Context) ([]*statesync.Operation, error) {
	if s.db == nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, ErrStoreClosed)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, operation FROM queue`)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	defer rows.Close()

	var ops []*statesync.Operation
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
		}
		var op statesync.Operation
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpLoad, fmt.Errorf("corrupt queued operation %q: %w", id, err))
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	return ops, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close()
}
