package facts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bowerhall/docsage/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS fact_overrides (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL
);
`

var ErrEmptyKey = errors.New("fact key is empty")

type Fact struct {
	Key   string
	Value string
}

// Store holds operator-defined facts that pre-empt retrieval. Reads come
// from an in-memory copy; every mutation is written to SQLite first.
type Store struct {
	db *sql.DB

	mu    sync.RWMutex
	facts map[string]string
	order []string
}

func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate facts: %w", err)
	}

	s := &Store{db: db, facts: map[string]string{}}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM fact_overrides`)
	if err != nil {
		return fmt.Errorf("load facts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scan fact: %w", err)
		}
		s.facts[k] = v
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.reorder()
	logger.Debug("facts loaded", "count", len(s.facts))
	return nil
}

// NormalizeKey upper-cases and trims a key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	key = NormalizeKey(key)
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fact_overrides (key, value, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save fact %s: %w", key, err)
	}

	s.facts[key] = value
	s.reorder()
	logger.Info("fact set", "key", key)
	return nil
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	key = NormalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.facts[key]; !ok {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM fact_overrides WHERE key = ?`, key); err != nil {
		return false, fmt.Errorf("delete fact %s: %w", key, err)
	}

	delete(s.facts, key)
	s.reorder()
	logger.Info("fact deleted", "key", key)
	return true, nil
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.facts[NormalizeKey(key)]
	return v, ok
}

// All returns every fact sorted by key.
func (s *Store) All() []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Fact, 0, len(s.facts))
	for k, v := range s.facts {
		out = append(out, Fact{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// Search returns the first fact whose key occurs in text, case-insensitively,
// formatted for display. Longer keys are tried first so "RATE LIMIT ORDERS"
// wins over "RATE LIMIT".
func (s *Store) Search(text string) (string, bool) {
	upper := strings.ToUpper(text)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.order {
		if strings.Contains(upper, k) {
			return Format(k, s.facts[k]), true
		}
	}
	return "", false
}

func Format(key, value string) string {
	return fmt.Sprintf("**%s**: %s", key, value)
}

// reorder rebuilds the match order. Caller holds the write lock.
func (s *Store) reorder() {
	order := make([]string, 0, len(s.facts))
	for k := range s.facts {
		order = append(order, k)
	}
	sort.Slice(order, func(i, j int) bool {
		if len(order[i]) != len(order[j]) {
			return len(order[i]) > len(order[j])
		}
		return order[i] < order[j]
	})
	s.order = order
}
