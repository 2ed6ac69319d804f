// Package sqlite provides a durable cache.Store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// ErrNotConfigured is returned when a Store method is called on a closed or zero store.
var ErrNotConfigured = errors.New("sqlite: storage is not configured")

// Store persists named response caches in a single SQLite database.
type Store struct {
	sqlDB *sql.DB
}

var _ cache.Store = (*Store)(nil)

// Open opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	return s.sqlDB.PingContext(ctx)
}

// Names returns every cache name in sorted order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM caches ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan cache name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Open creates the named cache if it does not exist.
func (s *Store) Open(ctx context.Context, name string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return openCache(ctx, s.sqlDB, name)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func openCache(ctx context.Context, db execer, name string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO caches (name, created_at) VALUES (?, ?)`,
		name, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("open cache %s: %w", name, err)
	}
	return nil
}

// Drop deletes the named cache and its entries.
func (s *Store) Drop(ctx context.Context, name string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin drop: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, name); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("drop entries of %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("drop cache %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("drop cache %s: %w", name, err)
	}
	return n > 0, tx.Commit()
}

// Get returns the entry stored under key. Returns (nil, false, nil) on miss.
func (s *Store) Get(ctx context.Context, name, key string) (*cache.Entry, bool, error) {
	if err := s.ready(ctx); err != nil {
		return nil, false, err
	}

	var (
		entry      cache.Entry
		headerJSON []byte
		storedAt   int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT cache_key, method, url, status, header_json, body, stored_at
FROM cache_entries
WHERE cache_name = ? AND cache_key = ?
`, name, key).Scan(
		&entry.Key,
		&entry.Method,
		&entry.URL,
		&entry.Status,
		&headerJSON,
		&entry.Body,
		&storedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s from %s: %w", key, name, err)
	}

	entry.Header = make(http.Header)
	if err := json.Unmarshal(headerJSON, &entry.Header); err != nil {
		return nil, false, fmt.Errorf("decode header for %s: %w", key, err)
	}
	entry.StoredAt = time.UnixMilli(storedAt).UTC()
	return &entry, true, nil
}

// Set stores entry, creating the cache when needed.
func (s *Store) Set(ctx context.Context, name string, entry *cache.Entry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := cache.ValidateKey(entry.Key); err != nil {
		return err
	}
	headerJSON, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header for %s: %w", entry.Key, err)
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set: %w", err)
	}
	if err := openCache(ctx, tx, name); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO cache_entries (
	cache_name,
	cache_key,
	method,
	url,
	status,
	header_json,
	body,
	stored_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(cache_name, cache_key) DO UPDATE SET
	method = excluded.method,
	url = excluded.url,
	status = excluded.status,
	header_json = excluded.header_json,
	body = excluded.body,
	stored_at = excluded.stored_at
`,
		name,
		entry.Key,
		entry.Method,
		entry.URL,
		entry.Status,
		headerJSON,
		body,
		storedAt.UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("set %s in %s: %w", entry.Key, name, err)
	}
	return tx.Commit()
}

// Delete removes an entry. Idempotent.
func (s *Store) Delete(ctx context.Context, name, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_name = ? AND cache_key = ?`, name, key,
	); err != nil {
		return fmt.Errorf("delete %s from %s: %w", key, name, err)
	}
	return nil
}

// Keys returns the keys of the named cache in sorted order.
func (s *Store) Keys(ctx context.Context, name string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var exists int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM caches WHERE name = ?`, name).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrUnknownCache
	}
	if err != nil {
		return nil, fmt.Errorf("lookup cache %s: %w", name, err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT cache_key FROM cache_entries WHERE cache_name = ? ORDER BY cache_key`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", name, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	return nil
}
