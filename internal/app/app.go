// Package app assembles the retrieval engine and its stores from
// configuration. Both the chat service and the admin CLI build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/bowerhall/docsage/internal/alerts"
	"github.com/bowerhall/docsage/internal/cache"
	"github.com/bowerhall/docsage/internal/config"
	"github.com/bowerhall/docsage/internal/conversation"
	"github.com/bowerhall/docsage/internal/database"
	"github.com/bowerhall/docsage/internal/embedder"
	"github.com/bowerhall/docsage/internal/facts"
	"github.com/bowerhall/docsage/internal/livecontext"
	"github.com/bowerhall/docsage/internal/llm"
	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/memory"
	"github.com/bowerhall/docsage/internal/retrieval"
	"github.com/bowerhall/docsage/internal/retry"
	"github.com/bowerhall/docsage/internal/stats"
	"github.com/bowerhall/docsage/internal/storage"
	"github.com/bowerhall/docsage/internal/vectorstore"
)

// App holds every long-lived component. Close releases them.
type App struct {
	Config        *config.Config
	DB            *sql.DB
	Model         llm.LLM
	Embedder      embedder.Embedder
	Index         *vectorstore.Store
	Facts         *facts.Store
	Cache         *cache.Cache
	Conversations *conversation.Manager
	Memory        *memory.Store
	Live          livecontext.Provider
	Alerts        *alerts.Alerter
	Orchestrator  *retrieval.Orchestrator

	sessions *conversation.SQLStore
	closers  []func() error
	issues   []issue
}

// issue is a startup degradation reported once a notifier exists.
type issue struct {
	component string
	message   string
	err       error
}

// New opens the database and wires the pipeline. Live context is optional:
// a failed connection is logged and the pipeline runs without it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	t := cfg.Tuning

	a.Alerts = alerts.New(nil, cfg.Alerts.Cooldown)

	backend, err := a.cacheBackend(ctx)
	if err != nil {
		return err
	}
	a.Cache = cache.New(backend, TTLs(t))

	model, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("create llm: %w", err)
	}
	policy := retry.Default()
	policy.MaxAttempts = t.RetryAttempts
	a.Model = llm.WithRetry(model, policy)

	emb, err := embedder.New(embedder.Config{
		Provider: cfg.Embedder.Provider,
		BaseURL:  cfg.Embedder.BaseURL,
		Model:    cfg.Embedder.Model,
		APIKey:   cfg.Embedder.APIKey,
	})
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	a.Embedder = embedder.Cached(emb, a.Cache)

	a.Index, err = vectorstore.New(ctx, a.Embedder, vectorstore.NewFilePersister(cfg.SnapshotPath), vectorstore.Options{
		BroadThreshold: t.BroadThreshold,
		BroadTopK:      t.BroadTopK,
	})
	if err != nil {
		return fmt.Errorf("load vector store: %w", err)
	}

	a.Facts, err = facts.NewStore(ctx, a.DB)
	if err != nil {
		return fmt.Errorf("load facts: %w", err)
	}

	a.Memory, err = memory.NewStore(a.DB, a.Embedder, a.Model)
	if err != nil {
		return fmt.Errorf("create memory store: %w", err)
	}

	sessions, err := a.sessionStore(backend)
	if err != nil {
		return err
	}
	a.Conversations = conversation.NewManager(sessions, a.Model, a.Memory, conversation.Options{
		MaxHistory:    t.MaxHistory,
		IncludeRecent: t.IncludeRecent,
		MemoryLimit:   t.MemoryLimit,
		SessionTTL:    t.SessionTTL,
	})

	a.Live = a.liveContext(ctx)

	a.Orchestrator = retrieval.New(Options(t), retrieval.Deps{
		Index:         a.Index,
		Facts:         a.Facts,
		Cache:         a.Cache,
		Conversations: a.Conversations,
		Memory:        a.Memory,
		Model:         a.Model,
		Live:          a.Live,
		Alerts:        a.Alerts,
	})

	logger.Info("pipeline ready",
		"llm", cfg.LLM.Provider,
		"embedder", cfg.Embedder.Provider,
		"cache", cfg.Cache.Backend,
		"chunks", a.Index.Count(),
		"facts", a.Facts.Count(),
	)
	return nil
}

func (a *App) cacheBackend(ctx context.Context) (cache.Backend, error) {
	switch a.Config.Cache.Backend {
	case "redis":
		r, err := cache.NewRedis(ctx, a.Config.Cache.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", "error", err)
			a.degrade("cache", "redis unavailable, running without cache", err)
			return cache.NopBackend{}, nil
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	case "none":
		return cache.NopBackend{}, nil
	default:
		s, err := cache.NewSQLite(a.DB)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		return s, nil
	}
}

// sessionStore keeps conversations next to the cache when it is shared,
// so several replicas see the same history.
func (a *App) sessionStore(backend cache.Backend) (conversation.SessionStore, error) {
	if _, ok := backend.(*cache.RedisBackend); ok {
		return conversation.NewKVStore(backend, a.Config.Tuning.SessionTTL), nil
	}

	s, err := conversation.NewSQLStore(a.DB)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	a.sessions = s
	return s, nil
}

func (a *App) liveContext(ctx context.Context) livecontext.Provider {
	lc := a.Config.Live
	if !lc.Enabled {
		return livecontext.None{}
	}

	m, err := livecontext.Connect(ctx, livecontext.Config{
		Command:  lc.Command,
		Args:     lc.Args,
		URL:      lc.URL,
		Tool:     lc.Tool,
		Argument: lc.Argument,
		Timeout:  lc.Timeout,
	})
	if err != nil {
		logger.Warn("live context unavailable", "error", err)
		a.degrade("livecontext", "live context unavailable", err)
		return livecontext.None{}
	}

	a.closers = append(a.closers, m.Close)
	return m
}

func (a *App) degrade(component, message string, err error) {
	a.issues = append(a.issues, issue{component: component, message: message, err: err})
	a.Alerts.Warn(component, message, err)
}

// AlertStartupIssues re-sends startup degradations, for use once the
// alerter has a notifier.
func (a *App) AlertStartupIssues() {
	for _, i := range a.issues {
		a.Alerts.Warn(i.component, i.message, i.err)
	}
}

// Purger returns the cache backend's purge hook, if it has one.
func (a *App) Purger() (*cache.SQLiteBackend, bool) {
	s, ok := a.Cache.Backend().(*cache.SQLiteBackend)
	return s, ok
}

// StatsSources describes the stores for stats.Collect.
func (a *App) StatsSources() stats.Sources {
	src := stats.Sources{
		Chunks:     func(context.Context) (int, error) { return a.Index.Count(), nil },
		Facts:      func(context.Context) (int, error) { return a.Facts.Count(), nil },
		Memories:   a.Memory.Count,
		Cache:      a.Cache,
		ChatModel:  a.Config.LLM.Provider + "/" + a.Config.LLM.Model,
		EmbedModel: a.Config.Embedder.Provider + "/" + a.Config.Embedder.Model,
		DataDir:    a.Config.DataDir,
	}
	if a.sessions != nil {
		src.Sessions = a.sessions.Count
	}
	return src
}

// Backups returns the backup runner when object storage is configured.
func (a *App) Backups(ctx context.Context) (*storage.Backups, error) {
	sc := a.Config.Storage
	if !sc.Enabled {
		return nil, errors.New("object storage is not configured")
	}

	client, err := storage.NewClient(storage.Config{
		Endpoint:  sc.Endpoint,
		AccessKey: sc.AccessKey,
		SecretKey: sc.SecretKey,
		UseSSL:    sc.UseSSL,
		Bucket:    sc.Bucket,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		return nil, err
	}

	return storage.NewBackups(client, sc.BackupPrefix, sc.BackupKeep), nil
}

// Artifacts lists what a backup run uploads. The snapshot is skipped until
// something has been indexed.
func (a *App) Artifacts() []storage.Artifact {
	out := []storage.Artifact{storage.SQLiteArtifact("docsage.db", a.DB)}
	if _, err := os.Stat(a.Config.SnapshotPath); err == nil {
		out = append(out, storage.FileArtifact("vectors.json", a.Config.SnapshotPath, "application/json"))
	}
	return out
}

func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}
