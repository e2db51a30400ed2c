package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bowerhall/docsage/internal/retry"
)

type openaiCompatible struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newOpenAICompatible(apiKey, baseURL, model string) LLM {
	return &openaiCompatible{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  http.DefaultClient,
	}
}

func (o *openaiCompatible) Generate(ctx context.Context, r Request) (string, error) {
	var messages []openaiMessage

	if r.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: r.System})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: r.Prompt})

	reqBody := openaiRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: r.Temperature,
		MaxTokens:   maxTokens(r),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", &retry.StatusError{API: "api", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(body, &oaiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if oaiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", oaiResp.Error.Message)
	}

	if len(oaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response: %w", ErrEmptyResponse)
	}

	text := strings.TrimSpace(oaiResp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}
