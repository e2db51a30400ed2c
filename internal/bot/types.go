package bot

import (
	"context"

	"github.com/bowerhall/docsage/internal/retrieval"
)

// Bot is a chat transport delivering user messages to a Handler.
type Bot interface {
	Start(ctx context.Context) error
	Send(chatID string, message string) error
}

// Answerer produces a reply for one message.
type Answerer interface {
	Answer(ctx context.Context, q retrieval.Query) retrieval.Result
}

// Resetter forgets a conversation's history.
type Resetter interface {
	Clear(ctx context.Context, conversationID string) error
}

type Config struct {
	Provider string
	Token    string

	// Telegram: when set, only these chats are served.
	AllowedChats []int64
	// Discord: when set, only this guild is served.
	GuildID string
}
