package app

import (
	"github.com/bowerhall/docsage/internal/cache"
	"github.com/bowerhall/docsage/internal/config"
	"github.com/bowerhall/docsage/internal/retrieval"
)

// Options maps tuning onto retrieval options. Zero rewrites or extraction
// interval means disabled here, while retrieval reads zero as "default".
func Options(t config.Tuning) retrieval.Options {
	return retrieval.Options{
		SimilarityThreshold: t.SimilarityThreshold,
		TopK:                t.TopK,
		MaxRewrites:         disabledIfZero(t.MaxRewrites),
		DecomposeMinWords:   t.DecomposeMinWords,
		MinRelevancy:        retrieval.Float(t.MinRelevancy),
		RerankTarget:        t.RerankTarget,
		ExtractEvery:        disabledIfZero(t.ExtractEvery),
		Temperature:         retrieval.Float(t.Temperature),
		MaxTokens:           t.MaxTokens,
		MaxResponseLength:   t.MaxResponseLength,
		ValidationWorkers:   t.ValidationWorkers,
		Keywords:            t.Keywords,
	}
}

func TTLs(t config.Tuning) cache.TTLs {
	return cache.TTLs{
		cache.Response:  t.ResponseTTL,
		cache.Relevancy: t.RelevancyTTL,
		cache.Rerank:    t.RerankTTL,
		cache.Transform: t.TransformTTL,
		cache.Embedding: t.EmbeddingTTL,
	}
}

func disabledIfZero(n int) int {
	if n == 0 {
		return -1
	}
	return n
}
