package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// SQLite is the durable KV backend. Values live in a kv table with optional
// expiry; lists live in kv_list ordered by insertion, newest first on read.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	// WAL for concurrent reads while the cron run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}
	// Single writer keeps the Incr upsert atomic without busy retries.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("store: sqlite opened")
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS kv_list (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kv_list_key ON kv_list(key, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func expiryUnix(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return time.Now().Add(ttl).Unix()
}

// Get implements KV. Expired rows are removed lazily.
func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var value string
	var expiresAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get %q: %w", key, err)
	}

	if expiresAt.Valid && time.Now().Unix() > expiresAt.Int64 {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return "", ErrNotFound
	}
	return value, nil
}

// Set implements KV.
func (s *SQLite) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiryUnix(ttl))
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

// Incr implements KV as a single transaction: drop the row if expired, then
// upsert-increment and read the new value back.
func (s *SQLite) Incr(ctx context.Context, key string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: incr begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kv WHERE key = ? AND expires_at IS NOT NULL AND expires_at < ?`,
		key, time.Now().Unix()); err != nil {
		return 0, fmt.Errorf("store: incr expire %q: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, '1', NULL)
		 ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)`,
		key); err != nil {
		return 0, fmt.Errorf("store: incr %q: %w", key, err)
	}

	var value string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value); err != nil {
		return 0, fmt.Errorf("store: incr read %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: incr commit: %w", err)
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: incr on non-integer value at %q", key)
	}
	return n, nil
}

// Expire implements KV.
func (s *SQLite) Expire(ctx context.Context, key string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE kv SET expires_at = ? WHERE key = ?`, expiryUnix(ttl), key)
	if err != nil {
		return fmt.Errorf("store: expire %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LPush implements KV.
func (s *SQLite) LPush(ctx context.Context, key string, values ...string) error {
	now := time.Now().Unix()
	for _, v := range values {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO kv_list (key, value, created_at) VALUES (?, ?, ?)`, key, v, now); err != nil {
			return fmt.Errorf("store: lpush %q: %w", key, err)
		}
	}
	return nil
}

// LRange implements KV, newest first.
func (s *SQLite) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if start < 0 {
		start = 0
	}

	limit := int64(-1)
	if stop >= 0 {
		if start > stop {
			return nil, nil
		}
		limit = stop - start + 1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM kv_list WHERE key = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		key, limit, start)
	if err != nil {
		return nil, fmt.Errorf("store: lrange %q: %w", key, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: lrange scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Delete implements KV.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_list WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete list %q: %w", key, err)
	}
	return nil
}

// CleanupExpired removes expired rows eagerly. Called periodically by the
// scheduler; correctness never depends on it thanks to lazy expiry on read.
func (s *SQLite) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close implements KV.
func (s *SQLite) Close() error { return s.db.Close() }
