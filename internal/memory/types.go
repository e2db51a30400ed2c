package memory

import (
	"context"
	"time"

	"github.com/bowerhall/docsage/internal/conversation"
)

type Type string

const (
	TypeFact       Type = "fact"
	TypePreference Type = "preference"
	TypeStrategy   Type = "strategy"
	TypeContext    Type = "context"
)

func (t Type) Valid() bool {
	switch t {
	case TypeFact, TypePreference, TypeStrategy, TypeContext:
		return true
	}
	return false
}

type Memory struct {
	ID             string
	ConversationID string
	Content        string
	Embedding      []float32
	Type           Type
	Importance     float64
	CreatedAt      time.Time
	AccessCount    int
	LastAccessed   time.Time

	// Similarity and Score are set on retrieval only.
	Similarity float64
	Score      float64
}

// Service is the long-term memory capability used by the orchestrator.
type Service interface {
	Recall(ctx context.Context, conversationID, query string, limit int) []string
	Extract(ctx context.Context, conversationID string, turns []conversation.Turn) ([]Memory, error)
	Clear(ctx context.Context, conversationID string) (int, error)
}

// Nop remembers nothing.
type Nop struct{}

func (Nop) Recall(context.Context, string, string, int) []string { return nil }

func (Nop) Extract(context.Context, string, []conversation.Turn) ([]Memory, error) {
	return nil, nil
}

func (Nop) Clear(context.Context, string) (int, error) { return 0, nil }
