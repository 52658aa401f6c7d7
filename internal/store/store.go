// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
)

// DB wraps the DuckDB connection and provides the persistence facade.
type DB struct {
	conn *sql.DB

	// itemLocks serializes update paths per (user_id, key) so at most one
	// component mutates a given watchlist item at a time.
	itemLocks sync.Map
}

// LockItem acquires the logical lock for one (user, key) and returns its
// release function.
func (db *DB) LockItem(userID int, key string) func() {
	k := fmt.Sprintf("%d|%s", userID, key)
	muAny, _ := db.itemLocks.LoadOrStore(k, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Open opens (or creates) the DuckDB database at path and initializes the
// schema. Pass ":memory:" (or "") for an in-memory database in tests.
func Open(path string) (*DB, error) {
	dsn := path
	if dsn == ":memory:" {
		dsn = ""
	}
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open duckdb: %w", err)
	}

	// DuckDB is an embedded single-writer engine; a small pool avoids
	// write-write conflicts between concurrent transactions.
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	db := &DB{conn: conn}
	if err := db.createSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := db.EnsureSystemUser(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logging.Info().Str("component", "store").Str("path", path).Msg("database opened")
	return db, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// querier is the common subset of *sql.DB and *sql.Tx the facade needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// q returns the active transaction from ctx if one is present, else the
// shared connection pool.
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.conn
}

// WithTx runs fn inside a transaction carried through the context. A
// nested call joins the outer transaction rather than opening a second
// one; only the outermost WithTx commits.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Error().Err(rbErr).Msg("store: rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}

// marshalJSON serializes v for a JSON column, mapping empty slices and
// nil to SQL NULL so queries can use IS NULL.
func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: marshal json column: %w", err)
	}
	s := string(b)
	if s == "null" || s == "[]" || s == "{}" {
		return nil, nil
	}
	return s, nil
}

// unmarshalJSON decodes a nullable JSON column into dst; a NULL column
// leaves dst untouched.
func unmarshalJSON(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return fmt.Errorf("store: unmarshal json column: %w", err)
	}
	return nil
}

// nullStr maps a *string to a driver-friendly value.
func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// nullInt maps a *int to a driver-friendly value.
func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

// nullTime maps a *time.Time to a driver-friendly value.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// strPtr converts a NullString back to *string.
func strPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// intPtr converts a NullInt64 back to *int.
func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

// timePtr converts a NullTime back to *time.Time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
