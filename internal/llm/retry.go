package llm

import (
	"context"

	"github.com/bowerhall/docsage/internal/retry"
)

type retrying struct {
	next   LLM
	policy retry.Policy
}

// WithRetry wraps l so every Generate call follows policy.
func WithRetry(l LLM, policy retry.Policy) LLM {
	return &retrying{next: l, policy: policy}
}

func (r *retrying) Generate(ctx context.Context, req Request) (string, error) {
	var out string
	err := r.policy.Do(ctx, "llm.generate", func(ctx context.Context) error {
		text, err := r.next.Generate(ctx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}
