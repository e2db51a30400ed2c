package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/docsage/internal/cache"
	"github.com/bowerhall/docsage/internal/database"
	"github.com/bowerhall/docsage/internal/testutil"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLStore(db)
	require.NoError(t, err)
	return s
}

type staticRecaller []string

func (r staticRecaller) Recall(ctx context.Context, id, query string, limit int) []string {
	if len(r) > limit {
		return r[:limit]
	}
	return r
}

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) ([]Turn, error) { return nil, errors.New("db down") }
func (brokenStore) Save(context.Context, string, []Turn) error  { return errors.New("db down") }
func (brokenStore) Delete(context.Context, string) error         { return errors.New("db down") }
func (brokenStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func TestTrimKeepsHalfAndSummarizes(t *testing.T) {
	ctx := context.Background()
	model := testutil.NewScriptedLLM("they talked about limits")
	m := NewManager(newSQLStore(t), model, nil, Options{MaxHistory: 6})

	for i := range 7 {
		require.NoError(t, m.AddMessage(ctx, "c1", RoleUser, fmt.Sprintf("message %d", i)))
	}

	history := m.History(ctx, "c1")
	require.Len(t, history, 4)
	assert.True(t, history[0].IsSummary())
	assert.Equal(t, "[Previous conversation summary]: they talked about limits", history[0].Content)
	assert.Equal(t, "message 4", history[1].Content)
	assert.Equal(t, "message 6", history[3].Content)
}

func TestTrimFailureDropsOlderTurns(t *testing.T) {
	ctx := context.Background()
	model := testutil.NewScriptedLLM("").Fail("Summarize", errors.New("503 unavailable"))
	m := NewManager(nil, model, nil, Options{MaxHistory: 4})

	for i := range 5 {
		require.NoError(t, m.AddMessage(ctx, "c1", RoleUser, fmt.Sprintf("m%d", i)))
	}

	history := m.History(ctx, "c1")
	require.Len(t, history, 2)
	assert.Equal(t, "m3", history[0].Content)
	assert.Equal(t, "m4", history[1].Content)
}

func TestHistoryNeverExceedsMax(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, testutil.NewScriptedLLM("summary"), nil, Options{MaxHistory: 5})

	for i := range 40 {
		require.NoError(t, m.AddMessage(ctx, "c1", RoleUser, fmt.Sprintf("m%d", i)))
		assert.LessOrEqual(t, len(m.History(ctx, "c1")), 5)
	}
}

func TestMaxHistoryFloor(t *testing.T) {
	m := NewManager(nil, nil, nil, Options{MaxHistory: 1})
	assert.Equal(t, 2, m.Options().MaxHistory)
}

func TestGetContextBundle(t *testing.T) {
	ctx := context.Background()
	model := testutil.NewScriptedLLM("earlier summary")
	m := NewManager(nil, model, staticRecaller{"likes python", "trades futures", "uses testnet", "extra"}, Options{MaxHistory: 20})

	for i := range 8 {
		require.NoError(t, m.AddMessage(ctx, "c1", RoleUser, fmt.Sprintf("m%d", i)))
	}

	b := m.GetContext(ctx, "c1", "what now")
	assert.Equal(t, 8, b.TotalMessages)
	require.Len(t, b.Recent, 5)
	assert.Equal(t, "m3", b.Recent[0].Content)
	assert.Equal(t, "earlier summary", b.Summary)
	assert.True(t, b.Compressed)
	assert.Len(t, b.Memories, 3)
	assert.Equal(t, 1, model.CallsMatching("Current question: what now"))
}

func TestGetContextReusesStoredSummary(t *testing.T) {
	ctx := context.Background()
	model := testutil.NewScriptedLLM("folded")
	m := NewManager(nil, model, nil, Options{MaxHistory: 10, IncludeRecent: 5})

	for i := range 11 {
		require.NoError(t, m.AddMessage(ctx, "c1", RoleUser, fmt.Sprintf("m%d", i)))
	}
	require.Len(t, m.History(ctx, "c1"), 6)
	model.Reset()

	b := m.GetContext(ctx, "c1", "q")
	assert.Equal(t, "folded", b.Summary)
	assert.Equal(t, 0, model.Calls())
}

func TestGetContextSummaryFailureIsNil(t *testing.T) {
	ctx := context.Background()
	model := testutil.NewScriptedLLM("").Fail("Summarize", errors.New("boom"))
	m := NewManager(nil, model, nil, Options{MaxHistory: 20, IncludeRecent: 2})

	for i := range 4 {
		require.NoError(t, m.AddMessage(ctx, "c1", RoleUser, fmt.Sprintf("m%d", i)))
	}

	b := m.GetContext(ctx, "c1", "q")
	assert.Empty(t, b.Summary)
	assert.False(t, b.Compressed)
	assert.Len(t, b.Recent, 2)
}

func TestHistoryPersistsAcrossManagers(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)

	m := NewManager(store, nil, nil, Options{})
	require.NoError(t, m.AddMessage(ctx, "telegram:1", RoleUser, "hello"))
	require.NoError(t, m.AddMessage(ctx, "telegram:1", RoleAssistant, "hi there"))

	fresh := NewManager(store, nil, nil, Options{})
	history := fresh.History(ctx, "telegram:1")
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "hi there", history[1].Content)

	require.NoError(t, fresh.Clear(ctx, "telegram:1"))
	assert.Empty(t, NewManager(store, nil, nil, Options{}).History(ctx, "telegram:1"))
}

func TestPersistenceFailureContinuesInMemory(t *testing.T) {
	ctx := context.Background()
	m := NewManager(brokenStore{}, nil, nil, Options{})

	require.NoError(t, m.AddMessage(ctx, "c1", RoleUser, "hello"))
	assert.Len(t, m.History(ctx, "c1"), 1)
}

func TestSweepDropsIdleSessions(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	m := NewManager(store, nil, nil, Options{SessionTTL: time.Hour})

	require.NoError(t, m.AddMessage(ctx, "old", RoleUser, "hi"))

	later := time.Now().Add(2 * time.Hour)
	m.now = func() time.Time { return later }

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestKVStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	backend, err := cache.NewSQLite(db)
	require.NoError(t, err)

	kv := NewKVStore(backend, time.Hour)
	require.NoError(t, kv.Save(ctx, "c1", []Turn{{Role: RoleUser, Content: "hi"}}))

	turns, err := kv.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "hi", turns[0].Content)

	require.NoError(t, kv.Delete(ctx, "c1"))
	turns, err = kv.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	missing, err := kv.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNop(t *testing.T) {
	var s Service = Nop{}
	require.NoError(t, s.AddMessage(context.Background(), "c", RoleUser, "x"))
	assert.True(t, s.GetContext(context.Background(), "c", "x").Empty())
}
