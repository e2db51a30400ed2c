package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/metrics"
)

type Namespace string

const (
	Response  Namespace = "response"
	Relevancy Namespace = "relevancy"
	Rerank    Namespace = "rerank"
	Transform Namespace = "transform"
	Embedding Namespace = "embedding"
)

// TTLs maps each namespace to its expiry. Missing entries use the defaults.
type TTLs map[Namespace]time.Duration

func DefaultTTLs() TTLs {
	return TTLs{
		Response:  time.Hour,
		Relevancy: 24 * time.Hour,
		Rerank:    24 * time.Hour,
		Transform: 24 * time.Hour,
		Embedding: 7 * 24 * time.Hour,
	}
}

type Stats struct {
	Hits    int64
	Misses  int64
	Errors  int64
	HitRate float64
}

// Cache is the computation cache in front of model calls. No method returns
// an error: backend failures are logged and behave as misses.
type Cache struct {
	backend Backend
	ttls    TTLs

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

func New(backend Backend, ttls TTLs) *Cache {
	if backend == nil {
		backend = NopBackend{}
	}

	merged := DefaultTTLs()
	for ns, ttl := range ttls {
		if ttl > 0 {
			merged[ns] = ttl
		}
	}

	return &Cache{backend: backend, ttls: merged}
}

// Nop returns a cache that always misses.
func Nop() *Cache {
	return New(NopBackend{}, nil)
}

func (c *Cache) Backend() Backend {
	return c.backend
}

func (c *Cache) TTL(ns Namespace) time.Duration {
	return c.ttls[ns]
}

func (c *Cache) Stats() Stats {
	s := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *Cache) get(ctx context.Context, ns Namespace, key string) (string, bool) {
	val, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.errors.Add(1)
		metrics.CacheErrors.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", "key", truncateKey(key), "error", err)
		ok = false
	}

	if ok {
		c.hits.Add(1)
		metrics.CacheLookups.WithLabelValues(string(ns), "hit").Inc()
		return val, true
	}

	c.misses.Add(1)
	metrics.CacheLookups.WithLabelValues(string(ns), "miss").Inc()
	return "", false
}

func (c *Cache) set(ctx context.Context, ns Namespace, key, value string) {
	if err := c.backend.SetEx(ctx, key, value, c.ttls[ns]); err != nil {
		c.errors.Add(1)
		metrics.CacheErrors.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", "key", truncateKey(key), "error", err)
	}
}

func (c *Cache) getJSON(ctx context.Context, ns Namespace, key string, v any) bool {
	raw, ok := c.get(ctx, ns, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logger.Warn("cache entry undecodable", "key", truncateKey(key), "error", err)
		return false
	}
	return true
}

func (c *Cache) setJSON(ctx context.Context, ns Namespace, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("cache entry unencodable", "key", truncateKey(key), "error", err)
		return
	}
	c.set(ctx, ns, key, string(data))
}

// GetResponse decodes a cached answer for query in the given context into v.
func (c *Cache) GetResponse(ctx context.Context, query string, history []Turn, live string, v any) bool {
	return c.getJSON(ctx, Response, ResponseKey(query, history, live), v)
}

func (c *Cache) SetResponse(ctx context.Context, query string, history []Turn, live string, v any) {
	c.setJSON(ctx, Response, ResponseKey(query, history, live), v)
}

func (c *Cache) GetRelevancy(ctx context.Context, query, doc string) (float64, bool) {
	raw, ok := c.get(ctx, Relevancy, RelevancyKey(query, doc))
	if !ok {
		return 0, false
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

func (c *Cache) SetRelevancy(ctx context.Context, query, doc string, score float64) {
	c.set(ctx, Relevancy, RelevancyKey(query, doc), strconv.FormatFloat(score, 'f', -1, 64))
}

// GetRerank returns the cached order of docs as document hashes.
func (c *Cache) GetRerank(ctx context.Context, query string, docs []string) ([]string, bool) {
	var order []string
	if !c.getJSON(ctx, Rerank, RerankKey(query, docs), &order) {
		return nil, false
	}
	return order, len(order) > 0
}

func (c *Cache) SetRerank(ctx context.Context, query string, docs []string, order []string) {
	c.setJSON(ctx, Rerank, RerankKey(query, docs), order)
}

func (c *Cache) GetTransform(ctx context.Context, query, variant string) (string, bool) {
	return c.get(ctx, Transform, TransformKey(query, variant))
}

func (c *Cache) SetTransform(ctx context.Context, query, variant, rewritten string) {
	c.set(ctx, Transform, TransformKey(query, variant), rewritten)
}

func (c *Cache) GetEmbedding(ctx context.Context, text string) ([]float32, bool) {
	var vec []float32
	if !c.getJSON(ctx, Embedding, EmbeddingKey(text), &vec) {
		return nil, false
	}
	return vec, len(vec) > 0
}

func (c *Cache) SetEmbedding(ctx context.Context, text string, vec []float32) {
	c.setJSON(ctx, Embedding, EmbeddingKey(text), vec)
}

func truncateKey(key string) string {
	if len(key) > 50 {
		return key[:50]
	}
	return key
}
