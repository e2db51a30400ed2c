package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/retrieval"
	"github.com/bowerhall/docsage/internal/session"
)

const (
	defaultMaxSources = 3

	stillWorking = "Still working on your previous question. I'll answer this one right after."
	tooBusy      = "Still working on your earlier questions. Please wait for those answers before sending more."
	resetDone    = "Conversation history cleared."
	helpText     = `Ask me anything about the API documentation: endpoints, authentication, rate limits, error codes.

/reset clears our conversation history.`
)

// ReplyFunc sends one message back to the chat a message came from.
type ReplyFunc func(text string) error

// Handler is the transport-independent message flow shared by all bots:
// commands, the per-conversation gate and reply formatting.
type Handler struct {
	answerer   Answerer
	resetter   Resetter
	gate       *session.Store
	limiter    *RateLimiter
	maxSources int
}

func NewHandler(answerer Answerer, resetter Resetter, gate *session.Store, maxSources int) *Handler {
	if gate == nil {
		gate = session.NewStore(0)
	}
	if maxSources <= 0 {
		maxSources = defaultMaxSources
	}
	return &Handler{answerer: answerer, resetter: resetter, gate: gate, maxSources: maxSources}
}

// SetRateLimiter caps questions per conversation. Commands are not counted.
// A nil limiter disables limiting.
func (h *Handler) SetRateLimiter(l *RateLimiter) {
	h.limiter = l
}

// Handle processes one inbound message. Messages for a conversation that is
// already being answered are queued and answered in order.
func (h *Handler) Handle(ctx context.Context, conversationID, text string, reply ReplyFunc) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if h.command(ctx, conversationID, text, reply) {
		return
	}

	if !h.limiter.Allow(conversationID) {
		logger.Warn("rate limited", "conversation", conversationID)
		send(reply, conversationID, slowDown)
		return
	}

	sess, acquired, queued := h.gate.Offer(conversationID, text)
	if !acquired {
		msg := stillWorking
		if !queued {
			msg = tooBusy
		}
		send(reply, conversationID, msg)
		return
	}

	// Next keeps the session while it hands over a queued message and
	// releases it in the same step when the queue is empty.
	for {
		h.answer(ctx, conversationID, text, reply)

		p := sess.Next()
		if p == nil {
			return
		}
		text = p.Text
	}
}

func (h *Handler) answer(ctx context.Context, conversationID, text string, reply ReplyFunc) {
	res := h.answerer.Answer(ctx, retrieval.Query{ConversationID: conversationID, Text: text})
	send(reply, conversationID, FormatReply(res, h.maxSources))
}

func (h *Handler) command(ctx context.Context, conversationID, text string, reply ReplyFunc) bool {
	if !strings.HasPrefix(text, "/") {
		return false
	}

	cmd, _, _ := strings.Cut(text, " ")
	// telegram appends the bot name in groups: /help@docsage_bot
	cmd, _, _ = strings.Cut(strings.ToLower(cmd), "@")

	switch cmd {
	case "/start", "/help":
		send(reply, conversationID, helpText)
	case "/reset":
		if h.resetter != nil {
			if err := h.resetter.Clear(ctx, conversationID); err != nil {
				logger.Error("reset failed", "conversation", conversationID, "error", err)
				send(reply, conversationID, "Couldn't clear the history, please try again.")
				return true
			}
		}
		send(reply, conversationID, resetDone)
	default:
		return false
	}
	return true
}

func send(reply ReplyFunc, conversationID, text string) {
	if err := reply(text); err != nil {
		logger.Error("reply failed", "conversation", conversationID, "error", err)
		return
	}
	logger.Debug("reply sent", "conversation", conversationID, "chars", len(text))
}

// FormatReply renders an answer with a footer naming up to maxSources
// documents, each listed once with its best similarity.
func FormatReply(res retrieval.Result, maxSources int) string {
	if len(res.Sources) == 0 || maxSources <= 0 {
		return res.Answer
	}

	type entry struct {
		name string
		sim  float64
		weak bool
	}

	var entries []entry
	seen := map[string]int{}
	for _, s := range res.Sources {
		if i, ok := seen[s.Name]; ok {
			if s.Similarity > entries[i].sim {
				entries[i].sim = s.Similarity
			}
			entries[i].weak = entries[i].weak && s.Weak
			continue
		}
		seen[s.Name] = len(entries)
		entries = append(entries, entry{name: s.Name, sim: s.Similarity, weak: s.Weak})
	}

	if len(entries) > maxSources {
		entries = entries[:maxSources]
	}

	var sb strings.Builder
	sb.WriteString(res.Answer)
	sb.WriteString("\n\nSources:")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n- %s (%.0f%%", e.name, e.sim*100)
		if e.weak {
			sb.WriteString(", related")
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// splitMessage cuts text into pieces of at most limit runes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	r := []rune(text)
	if len(r) <= limit {
		return []string{text}
	}

	var parts []string
	for len(r) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if r[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(r[:cut]), "\n"))
		r = r[cut:]
	}
	if len(r) > 0 {
		parts = append(parts, strings.TrimRight(string(r), "\n"))
	}
	return parts
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}

	return string(r[:max]) + "..."
}
