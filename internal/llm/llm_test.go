package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bowerhall/docsage/internal/retry"
)

func TestNewKnownProviders(t *testing.T) {
	for _, p := range KnownProviders() {
		if p == "claude" {
			continue
		}
		if _, err := New(Config{Provider: p, APIKey: "k"}); err != nil {
			t.Errorf("provider %s: %v", p, err)
		}
	}

	if _, err := New(Config{Provider: "nope"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestIsKnownProvider(t *testing.T) {
	if !IsKnownProvider("gemini") {
		t.Error("gemini should be known")
	}
	if IsKnownProvider("bogus") {
		t.Error("bogus should not be known")
	}
}

func TestOpenAICompatibleGenerate(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	l, err := New(Config{Provider: "openai", APIKey: "secret", BaseURL: srv.URL, Model: "m"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := l.Generate(context.Background(), Request{Prompt: "hi", System: "sys", Temperature: 0.3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected trimmed output, got %q", out)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
	if got.MaxTokens != defaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", got.MaxTokens)
	}
	if got.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", got.Temperature)
	}
}

func TestOpenAICompatibleErrors(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"busy"}}`))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer srv.Close()

	l := newOpenAICompatible("k", srv.URL, "m")

	_, err := l.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil || !retry.IsOverloaded(err) {
		t.Fatalf("expected retryable 503 error, got %v", err)
	}

	status = http.StatusOK
	_, err = l.Generate(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

type flaky struct {
	failures int
	calls    int
}

func (f *flaky) Generate(ctx context.Context, req Request) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("529 overloaded")
	}
	return "ok", nil
}

func TestWithRetry(t *testing.T) {
	f := &flaky{failures: 2}
	policy := retry.Policy{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return 0 },
		Retryable:   retry.IsOverloaded,
	}

	out, err := WithRetry(f, policy).Generate(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "ok" || f.calls != 3 {
		t.Errorf("expected ok after 3 calls, got %q after %d", out, f.calls)
	}

	f = &flaky{failures: 5}
	if _, err := WithRetry(f, policy).Generate(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Error("expected error after exhausting retries")
	}
	if f.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", f.calls)
	}
}
