package embedder

import (
	"context"
	"fmt"
	"strings"
)

// openaiCompatible serves OpenAI and the OpenAI-compatible Gemini endpoint.
type openaiCompatible struct {
	endpoint
	model string
}

type openaiRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func newOpenAICompatible(apiKey, baseURL, model string) *openaiCompatible {
	return &openaiCompatible{
		endpoint: endpoint{api: "embeddings", url: strings.TrimRight(baseURL, "/") + "/embeddings", apiKey: apiKey},
		model:    model,
	}
}

func (o *openaiCompatible) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp openaiResponse
	if err := o.post(ctx, openaiRequest{Model: o.model, Input: text}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}
	return resp.Data[0].Embedding, nil
}
