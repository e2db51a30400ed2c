package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/docsage/internal/cache"
	"github.com/bowerhall/docsage/internal/config"
)

func TestOptionsDisablesZeroStages(t *testing.T) {
	tu := config.DefaultTuning()
	tu.MaxRewrites = 0
	tu.ExtractEvery = 0

	opts := Options(tu)
	assert.Equal(t, -1, opts.MaxRewrites)
	assert.Equal(t, -1, opts.ExtractEvery)
	assert.Equal(t, tu.SimilarityThreshold, opts.SimilarityThreshold)
	assert.Equal(t, tu.TopK, opts.TopK)
}

func TestOptionsKeepsPositiveStages(t *testing.T) {
	tu := config.DefaultTuning()
	opts := Options(tu)
	assert.Equal(t, 2, opts.MaxRewrites)
	assert.Equal(t, 6, opts.ExtractEvery)
}

func TestOptionsKeepsExplicitZeroes(t *testing.T) {
	tu := config.DefaultTuning()
	tu.Temperature = 0
	tu.MinRelevancy = 0

	opts := Options(tu)
	require.NotNil(t, opts.Temperature)
	require.NotNil(t, opts.MinRelevancy)
	assert.Zero(t, *opts.Temperature)
	assert.Zero(t, *opts.MinRelevancy)
}

func TestTTLs(t *testing.T) {
	tu := config.DefaultTuning()
	tu.ResponseTTL = 5 * time.Minute

	ttls := TTLs(tu)
	assert.Equal(t, 5*time.Minute, ttls[cache.Response])
	assert.Equal(t, tu.EmbeddingTTL, ttls[cache.Embedding])
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:      dir,
		DBPath:       filepath.Join(dir, "docsage.db"),
		SnapshotPath: filepath.Join(dir, "vectors.json"),
		LLM:          config.LLMConfig{Provider: "ollama", APIKey: "ollama"},
		Embedder:     config.EmbedderConfig{Provider: "ollama"},
		Cache:        config.CacheConfig{Backend: "sqlite"},
		Alerts:       config.AlertsConfig{Cooldown: time.Minute},
		Tuning:       config.DefaultTuning(),
	}
}

func TestNewWiresLocalPipeline(t *testing.T) {
	cfg := localConfig(t)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Orchestrator)
	assert.Equal(t, 0, a.Index.Count())

	_, ok := a.Purger()
	assert.True(t, ok, "sqlite cache should expose purge")

	require.NoError(t, a.Facts.Set(context.Background(), "support email", "help@example.com"))
	report := a.StatsSources()
	n, err := report.Facts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Len(t, a.Artifacts(), 1, "no snapshot before the first index")

	_, err = a.Backups(context.Background())
	assert.Error(t, err, "storage disabled")
}

func TestNewFallsBackWhenRedisIsDown(t *testing.T) {
	cfg := localConfig(t)
	cfg.Cache = config.CacheConfig{Backend: "redis", RedisURL: "redis://127.0.0.1:1/0"}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err, "an unreachable cache must not stop startup")
	defer a.Close()

	assert.IsType(t, cache.NopBackend{}, a.Cache.Backend())
	assert.NotNil(t, a.sessions, "sessions fall back to sqlite")
	require.Len(t, a.issues, 1)
	assert.Equal(t, "cache", a.issues[0].component)

	var sent []string
	a.Alerts.SetNotify(func(msg string) { sent = append(sent, msg) })
	a.AlertStartupIssues()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "redis unavailable")
}
