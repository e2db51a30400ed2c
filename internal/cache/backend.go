package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is a string key/value store with per-key expiry.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// NopBackend never stores anything.
type NopBackend struct{}

func (NopBackend) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (NopBackend) SetEx(context.Context, string, string, time.Duration) error { return nil }

type RedisBackend struct {
	client *redis.Client
}

// NewRedis connects using a redis:// URL and verifies the connection.
func NewRedis(ctx context.Context, url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisBackend{client: client}, nil
}

func NewRedisFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisBackend) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    cache_key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at_ms INTEGER NOT NULL,
    expires_at_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_expiry ON cache_entries(expires_at_ms);
`

type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(db *sql.DB) (*SQLiteBackend, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return &SQLiteBackend{db: db, now: time.Now}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expires int64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at_ms FROM cache_entries WHERE cache_key = ?`, key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cache entry: %w", err)
	}

	if expires <= s.now().UnixMilli() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key)
		return "", false, nil
	}

	return value, true, nil
}

func (s *SQLiteBackend) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, value, created_at_ms, expires_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			value = excluded.value,
			created_at_ms = excluded.created_at_ms,
			expires_at_ms = excluded.expires_at_ms`,
		key, value, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// Purge deletes expired rows and reports how many were removed.
func (s *SQLiteBackend) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at_ms <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}
