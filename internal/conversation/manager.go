package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bowerhall/docsage/internal/llm"
	"github.com/bowerhall/docsage/internal/logger"
)

const (
	defaultMaxHistory    = 15
	minMaxHistory        = 2
	defaultIncludeRecent = 5
	defaultMemoryLimit   = 3
	defaultSessionTTL    = 30 * 24 * time.Hour
	summaryMaxTokens     = 150
	summaryTemperature   = 0.3
)

type Options struct {
	MaxHistory    int
	IncludeRecent int
	MemoryLimit   int
	SessionTTL    time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxHistory <= 0 {
		o.MaxHistory = defaultMaxHistory
	}
	if o.MaxHistory < minMaxHistory {
		o.MaxHistory = minMaxHistory
	}
	if o.IncludeRecent <= 0 {
		o.IncludeRecent = defaultIncludeRecent
	}
	if o.MemoryLimit <= 0 {
		o.MemoryLimit = defaultMemoryLimit
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = defaultSessionTTL
	}
}

type session struct {
	turns    []Turn
	loaded   bool
	lastSeen time.Time
}

// Manager tracks per-conversation history, trimming it through model
// summaries and persisting it to a SessionStore. Persistence failures are
// logged and the conversation carries on from memory.
type Manager struct {
	store    SessionStore
	model    llm.LLM
	recaller Recaller
	opts     Options
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(store SessionStore, model llm.LLM, recaller Recaller, opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		store:    store,
		model:    model,
		recaller: recaller,
		opts:     opts,
		now:      time.Now,
		sessions: map[string]*session{},
	}
}

func (m *Manager) Options() Options {
	return m.opts
}

// session returns the cached session for id, loading it from the store on
// first use. Caller holds m.mu.
func (m *Manager) session(ctx context.Context, id string) *session {
	s, ok := m.sessions[id]
	if ok && s.loaded {
		return s
	}
	if !ok {
		s = &session{}
		m.sessions[id] = s
	}

	if m.store != nil {
		turns, err := m.store.Load(ctx, id)
		if err != nil {
			logger.Warn("session load failed", "conversation", id, "error", err)
		} else {
			s.turns = turns
		}
	}
	s.loaded = true
	s.lastSeen = m.now()
	return s
}

func (m *Manager) persist(ctx context.Context, id string, turns []Turn) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, id, turns); err != nil {
		logger.Warn("session save failed", "conversation", id, "error", err)
	}
}

// AddMessage appends a turn and trims the history once it exceeds MaxHistory.
func (m *Manager) AddMessage(ctx context.Context, id, role, content string) error {
	m.mu.Lock()
	s := m.session(ctx, id)
	s.turns = append(s.turns, Turn{Role: role, Content: content, CreatedAt: m.now()})
	s.lastSeen = m.now()
	turns := append([]Turn(nil), s.turns...)
	m.mu.Unlock()

	if len(turns) > m.opts.MaxHistory {
		trimmed := m.Trim(ctx, turns)

		before := len(turns)

		m.mu.Lock()
		// turns appended while summarizing stay after the trimmed prefix
		var extra []Turn
		if len(s.turns) > before {
			extra = s.turns[before:]
		}
		s.turns = append(trimmed, extra...)
		turns = append([]Turn(nil), s.turns...)
		m.mu.Unlock()

		logger.Debug("conversation trimmed", "conversation", id, "from", before, "to", len(turns))
	}

	m.persist(ctx, id, turns)
	return nil
}

// Trim keeps the most recent MaxHistory/2 turns and folds everything older
// into one synthetic summary turn. When summarizing fails the older turns
// are dropped.
func (m *Manager) Trim(ctx context.Context, turns []Turn) []Turn {
	if len(turns) <= m.opts.MaxHistory {
		return turns
	}

	keep := m.opts.MaxHistory / 2
	older := turns[:len(turns)-keep]
	recent := append([]Turn(nil), turns[len(turns)-keep:]...)

	summary, err := m.summarize(ctx, older, "")
	if err != nil {
		logger.Warn("conversation summary failed, dropping older turns", "turns", len(older), "error", err)
		return recent
	}

	return append([]Turn{summaryTurn(summary)}, recent...)
}

// GetContext returns the recent turns verbatim, a summary of anything older
// and relevant long-term memories.
func (m *Manager) GetContext(ctx context.Context, id, query string) Bundle {
	turns := m.History(ctx, id)

	b := Bundle{TotalMessages: len(turns)}

	recentStart := 0
	if len(turns) > m.opts.IncludeRecent {
		recentStart = len(turns) - m.opts.IncludeRecent
	}
	b.Recent = turns[recentStart:]
	older := turns[:recentStart]

	switch {
	case len(older) == 1 && older[0].IsSummary():
		b.Summary = strings.TrimPrefix(older[0].Content, summaryPrefix)
		b.Compressed = true
	case len(older) > 0:
		summary, err := m.summarize(ctx, older, query)
		if err != nil {
			logger.Warn("context summary failed", "conversation", id, "error", err)
		} else {
			b.Summary = summary
			b.Compressed = true
		}
	}

	if m.recaller != nil {
		b.Memories = m.recaller.Recall(ctx, id, query, m.opts.MemoryLimit)
	}

	return b
}

func (m *Manager) History(ctx context.Context, id string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session(ctx, id)
	return append([]Turn(nil), s.turns...)
}

func (m *Manager) Clear(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("clear session %s: %w", id, err)
	}
	return nil
}

// Sweep forgets sessions idle for longer than SessionTTL, both in memory
// and in the store.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.opts.SessionTTL)

	m.mu.Lock()
	dropped := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			dropped++
		}
	}
	m.mu.Unlock()

	if m.store == nil {
		return dropped, nil
	}

	n, err := m.store.Sweep(ctx, cutoff)
	if err != nil {
		return dropped, fmt.Errorf("sweep sessions: %w", err)
	}
	if n > dropped {
		dropped = n
	}
	return dropped, nil
}

func (m *Manager) summarize(ctx context.Context, turns []Turn, query string) (string, error) {
	if m.model == nil {
		return "", fmt.Errorf("no model configured for summaries")
	}

	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Role)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Summarize the following conversation in 2-3 sentences. Keep:
- key facts and information discussed
- user preferences or strategies mentioned
- context that matters for future answers

Conversation:
%s
Summary:`, sb.String())

	if query != "" {
		prompt += "\n\nCurrent question: " + query
	}

	summary, err := m.model.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", llm.ErrEmptyResponse
	}
	return summary, nil
}
