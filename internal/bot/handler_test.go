package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/docsage/internal/retrieval"
	"github.com/bowerhall/docsage/internal/session"
)

type echoAnswerer struct {
	mu      sync.Mutex
	queries []retrieval.Query
	started chan struct{}
	release chan struct{}
}

func (e *echoAnswerer) Answer(ctx context.Context, q retrieval.Query) retrieval.Result {
	e.mu.Lock()
	e.queries = append(e.queries, q)
	first := len(e.queries) == 1
	e.mu.Unlock()

	if first && e.started != nil {
		close(e.started)
		<-e.release
	}
	return retrieval.Result{Answer: "answer: " + q.Text}
}

type replies struct {
	mu   sync.Mutex
	msgs []string
}

func (r *replies) fn(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return nil
}

func (r *replies) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

type fakeResetter struct {
	cleared []string
	err     error
}

func (f *fakeResetter) Clear(ctx context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return f.err
}

func TestHandleAnswers(t *testing.T) {
	a := &echoAnswerer{}
	h := NewHandler(a, nil, nil, 0)
	r := &replies{}

	h.Handle(context.Background(), "telegram:1", "  what is the rate limit?  ", r.fn)
	h.Handle(context.Background(), "telegram:1", "   ", r.fn)

	assert.Equal(t, []string{"answer: what is the rate limit?"}, r.all())
	require.Len(t, a.queries, 1)
	assert.Equal(t, "telegram:1", a.queries[0].ConversationID)
}

func TestHandleQueuesBusyConversation(t *testing.T) {
	a := &echoAnswerer{started: make(chan struct{}), release: make(chan struct{})}
	h := NewHandler(a, nil, session.NewStore(1), 0)
	r := &replies{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Handle(context.Background(), "c1", "first", r.fn)
	}()
	<-a.started

	h.Handle(context.Background(), "c1", "second", r.fn)
	h.Handle(context.Background(), "c1", "third", r.fn)

	close(a.release)
	<-done

	assert.Equal(t, []string{stillWorking, tooBusy, "answer: first", "answer: second"}, r.all())
}

type countingAnswerer struct {
	mu    sync.Mutex
	texts []string
}

func (c *countingAnswerer) Answer(ctx context.Context, q retrieval.Query) retrieval.Result {
	c.mu.Lock()
	c.texts = append(c.texts, q.Text)
	c.mu.Unlock()
	return retrieval.Result{Answer: "answer: " + q.Text}
}

func TestHandleAnswersEveryAcceptedMessage(t *testing.T) {
	for round := range 50 {
		a := &countingAnswerer{}
		h := NewHandler(a, nil, session.NewStore(100), 0)
		r := &replies{}

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.Handle(context.Background(), "c1", fmt.Sprintf("q%d-%d", round, i), r.fn)
			}()
		}
		wg.Wait()

		answered := 0
		for _, m := range r.all() {
			if strings.HasPrefix(m, "answer: ") {
				answered++
			}
		}
		require.Equal(t, 20, answered, "round %d: every message must be answered", round)
		assert.Len(t, a.texts, 20)
	}
}

func TestHandleRateLimits(t *testing.T) {
	a := &countingAnswerer{}
	h := NewHandler(a, nil, nil, 0)
	lim := NewRateLimiter(2, time.Minute)
	now := time.Now()
	lim.now = func() time.Time { return now }
	h.SetRateLimiter(lim)
	r := &replies{}

	h.Handle(context.Background(), "c1", "one", r.fn)
	h.Handle(context.Background(), "c1", "two", r.fn)
	h.Handle(context.Background(), "c1", "three", r.fn)
	h.Handle(context.Background(), "c1", "/help", r.fn)
	h.Handle(context.Background(), "c2", "other chat", r.fn)

	got := r.all()
	require.Len(t, got, 5)
	assert.Equal(t, slowDown, got[2])
	assert.Equal(t, helpText, got[3])
	assert.Equal(t, "answer: other chat", got[4])
	assert.Equal(t, []string{"one", "two", "other chat"}, a.texts)

	now = now.Add(time.Minute)
	h.Handle(context.Background(), "c1", "four", r.fn)
	assert.Equal(t, "answer: four", r.all()[5])
}

func TestHandleCommands(t *testing.T) {
	a := &echoAnswerer{}
	reset := &fakeResetter{}
	h := NewHandler(a, reset, nil, 0)
	r := &replies{}

	h.Handle(context.Background(), "c1", "/help@docsage_bot", r.fn)
	h.Handle(context.Background(), "c1", "/reset", r.fn)
	h.Handle(context.Background(), "c1", "/unknown thing", r.fn)

	got := r.all()
	require.Len(t, got, 3)
	assert.Equal(t, helpText, got[0])
	assert.Equal(t, resetDone, got[1])
	assert.Equal(t, "answer: /unknown thing", got[2])
	assert.Equal(t, []string{"c1"}, reset.cleared)

	reset.err = errors.New("db locked")
	h.Handle(context.Background(), "c1", "/reset", r.fn)
	assert.Contains(t, r.all()[3], "Couldn't clear")
}

func TestFormatReply(t *testing.T) {
	res := retrieval.Result{
		Answer: "Use the X-API-KEY header.",
		Sources: []retrieval.Source{
			{Name: "auth.md", Similarity: 0.82},
			{Name: "auth.md", Similarity: 0.91},
			{Name: "errors.md", Similarity: 0.7, Weak: true},
			{Name: "limits.md", Similarity: 0.65},
			{Name: "orders.md", Similarity: 0.61},
		},
	}

	out := FormatReply(res, 3)

	assert.Equal(t, "Use the X-API-KEY header.\n\nSources:\n- auth.md (91%)\n- errors.md (70%, related)\n- limits.md (65%)", out)
	assert.Equal(t, "plain", FormatReply(retrieval.Result{Answer: "plain"}, 3))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	text := strings.Repeat("line of text\n", 10)
	parts := splitMessage(text, 40)
	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 40)
	}
	assert.Equal(t, strings.TrimRight(text, "\n"), strings.Join(parts, "\n"))

	parts = splitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, parts)
}
