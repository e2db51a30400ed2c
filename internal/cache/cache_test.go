package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/docsage/internal/database"
)

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (failingBackend) SetEx(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

type mapBackend map[string]string

func (m mapBackend) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapBackend) SetEx(_ context.Context, key, value string, _ time.Duration) error {
	m[key] = value
	return nil
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "what is the rate limit", Normalize("  What is the RATE   limit?! "))
	assert.Equal(t, Hash("What is the rate limit?"), Hash("what is the rate limit"))
	assert.NotEqual(t, Hash("rate limit"), Hash("rate limits"))
}

func TestResponseKeyDependsOnContext(t *testing.T) {
	base := ResponseKey("How do I authenticate?", nil, "")
	assert.Equal(t, base, ResponseKey("how do i authenticate", nil, ""))

	history := []Turn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}
	withHistory := ResponseKey("how do i authenticate", history, "")
	assert.NotEqual(t, base, withHistory)

	older := append([]Turn{{Role: "user", Content: "ignored"}}, history...)
	assert.Equal(t, withHistory, ResponseKey("how do i authenticate", older, ""), "only the last two turns count")

	assert.NotEqual(t, base, ResponseKey("how do i authenticate", nil, "live data"))
}

func TestDocSetHashOrderIndependent(t *testing.T) {
	assert.Equal(t, DocSetHash([]string{"a doc", "b doc"}), DocSetHash([]string{"b doc", "a doc"}))
	assert.Equal(t, RerankKey("q", []string{"x", "y"}), RerankKey("Q", []string{"y", "x"}))
}

func TestTransformKeyVariant(t *testing.T) {
	assert.Equal(t, "transform:"+Hash("q"), TransformKey("q", ""))
	assert.Equal(t, "transform:"+Hash("q")+":decompose", TransformKey("q", "decompose"))
}

func TestCacheRoundTrips(t *testing.T) {
	ctx := context.Background()
	c := New(mapBackend{}, nil)

	c.SetRelevancy(ctx, "q", "doc", 0.75)
	score, ok := c.GetRelevancy(ctx, "Q?", "doc")
	require.True(t, ok)
	assert.Equal(t, 0.75, score)

	c.SetTransform(ctx, "q", "", "rewritten q")
	rewritten, ok := c.GetTransform(ctx, "q", "")
	require.True(t, ok)
	assert.Equal(t, "rewritten q", rewritten)

	c.SetRerank(ctx, "q", []string{"a", "b"}, []string{DocHash("b"), DocHash("a")})
	order, ok := c.GetRerank(ctx, "q", []string{"b", "a"})
	require.True(t, ok)
	assert.Equal(t, []string{DocHash("b"), DocHash("a")}, order)

	c.SetEmbedding(ctx, "text", []float32{1, 2})
	vec, ok := c.GetEmbedding(ctx, "text")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, vec)

	type answer struct{ Text string }
	c.SetResponse(ctx, "q", nil, "", answer{Text: "a"})
	var got answer
	require.True(t, c.GetResponse(ctx, "q", nil, "", &got))
	assert.Equal(t, "a", got.Text)

	stats := c.Stats()
	assert.Equal(t, int64(5), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
}

func TestCacheFailsOpen(t *testing.T) {
	ctx := context.Background()
	c := New(failingBackend{}, nil)

	c.SetTransform(ctx, "q", "", "x")
	_, ok := c.GetTransform(ctx, "q", "")
	assert.False(t, ok)

	_, ok = c.GetRelevancy(ctx, "q", "d")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(3), stats.Errors)
}

func TestNopAlwaysMisses(t *testing.T) {
	c := Nop()
	c.SetTransform(context.Background(), "q", "", "x")
	_, ok := c.GetTransform(context.Background(), "q", "")
	assert.False(t, ok)
}

func TestDefaultTTLsOverride(t *testing.T) {
	c := New(nil, TTLs{Response: time.Minute})
	assert.Equal(t, time.Minute, c.TTL(Response))
	assert.Equal(t, 7*24*time.Hour, c.TTL(Embedding))
}

func TestSQLiteBackendExpiry(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	b, err := NewSQLite(db)
	require.NoError(t, err)

	now := time.Now()
	b.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, b.SetEx(ctx, "k", "v", time.Minute))

	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, b.SetEx(ctx, "k", "v2", time.Minute))
	v, _, _ = b.Get(ctx, "k")
	assert.Equal(t, "v2", v)

	b.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.SetEx(ctx, "gone", "x", time.Second))
	b.now = func() time.Time { return now.Add(time.Hour) }
	n, err := b.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
