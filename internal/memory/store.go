package memory

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/oklog/ulid/v2"

	"github.com/bowerhall/docsage/internal/embedder"
	"github.com/bowerhall/docsage/internal/llm"
	"github.com/bowerhall/docsage/internal/logger"
)

const (
	DefaultMinSimilarity = 0.5

	similarityWeight = 0.7
	importanceWeight = 0.3
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    content TEXT NOT NULL,
    type TEXT NOT NULL,
    importance REAL NOT NULL,
    embedding BLOB NOT NULL,
    created_at_ms INTEGER NOT NULL,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id);
`

// Store keeps per-conversation memories in SQLite. Embeddings are stored as
// sqlite-vec float32 blobs and scored with vec_distance_cosine.
type Store struct {
	db       *sql.DB
	embedder embedder.Embedder
	model    llm.LLM
	now      func() time.Time
}

func NewStore(db *sql.DB, e embedder.Embedder, model llm.LLM) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate memories: %w", err)
	}
	return &Store{db: db, embedder: e, model: model, now: time.Now}, nil
}

func newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// Store embeds content and persists it as a memory of conversationID.
func (s *Store) Store(ctx context.Context, conversationID, content string, typ Type, importance float64) (*Memory, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("memory content is empty")
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("invalid memory type %q", typ)
	}
	importance = clamp(importance)

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed memory: %w", err)
	}
	if isZero(vec) {
		return nil, fmt.Errorf("embed memory: degenerate zero vector")
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize embedding: %w", err)
	}

	now := s.now()
	m := &Memory{
		ID:             newID(now),
		ConversationID: conversationID,
		Content:        content,
		Embedding:      vec,
		Type:           typ,
		Importance:     importance,
		CreatedAt:      now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, conversation_id, content, type, importance, embedding, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Content, string(m.Type), m.Importance, blob, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	logger.Debug("memory stored", "conversation", conversationID, "type", typ, "id", m.ID)
	return m, nil
}

// Retrieve ranks the conversation's memories by 0.7*similarity +
// 0.3*importance among those at least minSimilarity to query. Returned
// memories have their access stats bumped. Failures yield no memories.
func (s *Store) Retrieve(ctx context.Context, conversationID, query string, topK int, minSimilarity float64) []Memory {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("memory query embedding failed", "conversation", conversationID, "error", err)
		return nil
	}
	if isZero(vec) {
		return nil
	}

	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		logger.Warn("memory query serialization failed", "error", err)
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, type, importance, created_at_ms, access_count, last_accessed_ms,
		       1 - vec_distance_cosine(embedding, ?) AS similarity
		FROM memories
		WHERE conversation_id = ?`, blob, conversationID)
	if err != nil {
		logger.Warn("memory query failed", "conversation", conversationID, "error", err)
		return nil
	}

	var scored []Memory
	for rows.Next() {
		var m Memory
		var typ string
		var createdAt, lastAccessed int64
		var sim sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.Content, &typ, &m.Importance, &createdAt, &m.AccessCount, &lastAccessed, &sim); err != nil {
			rows.Close()
			logger.Warn("memory scan failed", "error", err)
			return nil
		}
		if !sim.Valid || sim.Float64 < minSimilarity {
			continue
		}

		m.ConversationID = conversationID
		m.Type = Type(typ)
		m.CreatedAt = time.UnixMilli(createdAt)
		if lastAccessed > 0 {
			m.LastAccessed = time.UnixMilli(lastAccessed)
		}
		m.Similarity = sim.Float64
		m.Score = similarityWeight*m.Similarity + importanceWeight*m.Importance
		scored = append(scored, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		logger.Warn("memory query failed", "conversation", conversationID, "error", err)
		return nil
	}
	rows.Close()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	s.touch(ctx, scored)
	return scored
}

// Recall returns the content of the best memories for query.
func (s *Store) Recall(ctx context.Context, conversationID, query string, limit int) []string {
	memories := s.Retrieve(ctx, conversationID, query, limit, DefaultMinSimilarity)

	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.Content
	}
	return out
}

func (s *Store) touch(ctx context.Context, memories []Memory) {
	now := s.now()
	for i := range memories {
		_, err := s.db.ExecContext(ctx, `
			UPDATE memories SET access_count = access_count + 1, last_accessed_ms = ?
			WHERE id = ?`, now.UnixMilli(), memories[i].ID)
		if err != nil {
			logger.Warn("memory access update failed", "id", memories[i].ID, "error", err)
			continue
		}
		memories[i].AccessCount++
		memories[i].LastAccessed = now
	}
}

func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	var m Memory
	var typ string
	var createdAt, lastAccessed int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, content, type, importance, created_at_ms, access_count, last_accessed_ms
		FROM memories WHERE id = ?`, id,
	).Scan(&m.ID, &m.ConversationID, &m.Content, &typ, &m.Importance, &createdAt, &m.AccessCount, &lastAccessed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.Type = Type(typ)
	m.CreatedAt = time.UnixMilli(createdAt)
	if lastAccessed > 0 {
		m.LastAccessed = time.UnixMilli(lastAccessed)
	}
	return &m, nil
}

// Clear deletes every memory of the conversation and returns how many.
func (s *Store) Clear(ctx context.Context, conversationID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("clear memories: %w", err)
	}
	n, _ := res.RowsAffected()
	logger.Info("memories cleared", "conversation", conversationID, "count", n)
	return int(n), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
