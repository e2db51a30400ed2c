package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from model")

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// Request is a single-turn completion request.
type Request struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

type LLM interface {
	Generate(ctx context.Context, req Request) (string, error)
}
