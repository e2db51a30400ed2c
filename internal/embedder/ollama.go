package embedder

import (
	"context"
	"fmt"
	"strings"
)

// ollama talks to the /api/embed endpoint of a local Ollama server.
type ollama struct {
	endpoint
	model string
}

type ollamaRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func newOllama(baseURL, model string) *ollama {
	return &ollama{
		endpoint: endpoint{api: "ollama", url: strings.TrimRight(baseURL, "/") + "/api/embed"},
		model:    model,
	}
}

func (o *ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaResponse
	if err := o.post(ctx, ollamaRequest{Model: o.model, Input: text}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return resp.Embeddings[0], nil
}
