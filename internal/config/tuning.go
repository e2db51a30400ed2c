package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DOCSAGE_"

func DefaultTuning() Tuning {
	return Tuning{
		SimilarityThreshold: 0.6,
		TopK:                5,
		BroadThreshold:      0.35,
		BroadTopK:           10,
		MaxRewrites:         2,
		DecomposeMinWords:   12,
		MinRelevancy:        0.5,
		RerankTarget:        5,
		ValidationWorkers:   5,
		Temperature:         0.3,
		MaxTokens:           1024,
		MaxResponseLength:   4000,
		MaxSources:          3,

		MaxHistory:    15,
		IncludeRecent: 5,
		MemoryLimit:   3,
		ExtractEvery:  6,
		SessionTTL:    30 * 24 * time.Hour,

		ChunkSize:    1000,
		ChunkOverlap: 200,

		ResponseTTL:  time.Hour,
		RelevancyTTL: 24 * time.Hour,
		RerankTTL:    24 * time.Hour,
		TransformTTL: 24 * time.Hour,
		EmbeddingTTL: 7 * 24 * time.Hour,

		RetryAttempts: 3,

		RateLimitMessages: 50,
		RateLimitWindow:   60 * time.Second,
	}
}

func DefaultSchedules() Schedules {
	return Schedules{
		SessionSweep: "0 4 * * *",
		CachePurge:   "@hourly",
		Backup:       "0 3 * * *",
		StatsLog:     "@hourly",
	}
}

// fileConfig is the shape of the optional YAML file.
type fileConfig struct {
	Tuning    *Tuning    `yaml:"tuning"`
	Schedules *Schedules `yaml:"schedules"`
}

// loadTuning applies defaults, then the YAML file at path (if any), then
// the environment.
func loadTuning(path string) (Tuning, Schedules, error) {
	tuning := DefaultTuning()
	schedules := DefaultSchedules()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Tuning{}, Schedules{}, fmt.Errorf("read config file: %w", err)
		}

		fc := fileConfig{Tuning: &tuning, Schedules: &schedules}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Tuning{}, Schedules{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: envPrefix}
	if err := env.ParseWithOptions(&tuning, opts); err != nil {
		return Tuning{}, Schedules{}, fmt.Errorf("tuning env: %w", err)
	}

	opts.Prefix = envPrefix + "SCHEDULE_"
	if err := env.ParseWithOptions(&schedules, opts); err != nil {
		return Tuning{}, Schedules{}, fmt.Errorf("schedule env: %w", err)
	}

	return tuning, schedules, nil
}

// Validate rejects settings the pipeline cannot work with.
func (t Tuning) Validate() error {
	var errs []error

	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", name, v))
		}
	}
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}

	unit("similarity_threshold", t.SimilarityThreshold)
	unit("broad_threshold", t.BroadThreshold)
	unit("min_relevancy", t.MinRelevancy)
	if t.BroadThreshold > t.SimilarityThreshold {
		errs = append(errs, fmt.Errorf("broad_threshold %v is above similarity_threshold %v", t.BroadThreshold, t.SimilarityThreshold))
	}
	if t.Temperature < 0 || t.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %v", t.Temperature))
	}

	positive("top_k", t.TopK)
	positive("broad_top_k", t.BroadTopK)
	positive("rerank_target", t.RerankTarget)
	positive("validation_workers", t.ValidationWorkers)
	positive("max_tokens", t.MaxTokens)
	positive("max_response_length", t.MaxResponseLength)
	positive("max_history", t.MaxHistory)
	positive("chunk_size", t.ChunkSize)
	positive("retry_attempts", t.RetryAttempts)

	if t.MaxRewrites < 0 {
		errs = append(errs, fmt.Errorf("max_rewrites must not be negative, got %d", t.MaxRewrites))
	}
	if t.ExtractEvery < 0 {
		errs = append(errs, fmt.Errorf("extract_every must not be negative, got %d", t.ExtractEvery))
	}
	if t.ChunkOverlap < 0 || t.ChunkOverlap >= t.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap must be within [0, chunk_size), got %d", t.ChunkOverlap))
	}

	if t.RateLimitMessages < 0 {
		errs = append(errs, fmt.Errorf("rate_limit_messages must not be negative, got %d", t.RateLimitMessages))
	}
	if t.RateLimitMessages > 0 && t.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit_window must be positive when rate limiting is on, got %v", t.RateLimitWindow))
	}

	return errors.Join(errs...)
}
