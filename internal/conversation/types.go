package conversation

import (
	"context"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	summaryPrefix = "[Previous conversation summary]: "
)

type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// IsSummary reports whether t is the synthetic turn produced by a trim.
func (t Turn) IsSummary() bool {
	return t.Role == RoleSystem && strings.HasPrefix(t.Content, summaryPrefix)
}

func summaryTurn(summary string) Turn {
	return Turn{Role: RoleSystem, Content: summaryPrefix + summary, CreatedAt: time.Now()}
}

// Bundle is the bounded view of a conversation handed to answer generation.
type Bundle struct {
	Recent        []Turn
	Summary       string
	Memories      []string
	Compressed    bool
	TotalMessages int
}

func (b Bundle) Empty() bool {
	return len(b.Recent) == 0 && b.Summary == "" && len(b.Memories) == 0
}

// Service is the conversation capability the orchestrator depends on.
type Service interface {
	AddMessage(ctx context.Context, id, role, content string) error
	GetContext(ctx context.Context, id, query string) Bundle
	History(ctx context.Context, id string) []Turn
	Clear(ctx context.Context, id string) error
}

// Recaller supplies long-term memories relevant to a query.
type Recaller interface {
	Recall(ctx context.Context, conversationID, query string, limit int) []string
}

// Nop keeps no history.
type Nop struct{}

func (Nop) AddMessage(context.Context, string, string, string) error { return nil }

func (Nop) GetContext(context.Context, string, string) Bundle { return Bundle{} }

func (Nop) History(context.Context, string) []Turn { return nil }

func (Nop) Clear(context.Context, string) error { return nil }
