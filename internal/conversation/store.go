package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionStore persists whole conversations.
type SessionStore interface {
	Load(ctx context.Context, id string) ([]Turn, error)
	Save(ctx context.Context, id string, turns []Turn) error
	Delete(ctx context.Context, id string) error
	// Sweep removes sessions not written since cutoff.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS conversation_sessions (
    session_id TEXT PRIMARY KEY,
    updated_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_session ON conversation_turns(session_id, position);
`

// SQLStore keeps one row per turn, replaced as a unit on every save.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate conversations: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context, id string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at_ms
		FROM conversation_turns
		WHERE session_id = ?
		ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var createdAt int64
		if err := rows.Scan(&t.Role, &t.Content, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = time.UnixMilli(createdAt)
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

func (s *SQLStore) Save(ctx context.Context, id string, turns []Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_turns WHERE session_id = ?`, id); err != nil {
		return err
	}

	for i, t := range turns {
		created := t.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_turns (session_id, position, role, content, created_at_ms)
			VALUES (?, ?, ?, ?, ?)`,
			id, i, t.Role, t.Content, created.UnixMilli()); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_sessions (session_id, updated_at_ms) VALUES (?, ?)
		ON CONFLICT(session_id) DO UPDATE SET updated_at_ms = excluded.updated_at_ms`,
		id, time.Now().UnixMilli()); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_turns WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE session_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	ms := cutoff.UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conversation_turns WHERE session_id IN (
			SELECT session_id FROM conversation_sessions WHERE updated_at_ms < ?
		)`, ms); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE updated_at_ms < ?`, ms)
	if err != nil {
		return 0, err
	}

	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

// Count returns the number of persisted sessions.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_sessions`).Scan(&n)
	return n, err
}
