package embedder

import (
	"context"
	"fmt"
)

type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "ollama", "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return newOllama(baseURL, model), nil
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		return newOpenAICompatible(cfg.APIKey, baseURL, model), nil
	case "gemini":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-004"
		}
		return newOpenAICompatible(cfg.APIKey, baseURL, model), nil
	default:
		return nil, fmt.Errorf("unknown embedder provider: %s", cfg.Provider)
	}
}
