package embedder

import "context"

// Store is the slice of the computation cache used for embeddings.
type Store interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, bool)
	SetEmbedding(ctx context.Context, text string, vec []float32)
}

type cached struct {
	next  Embedder
	store Store
}

// Cached consults store before calling next and writes successful results
// back. Cache failures are the store's concern and never surface here.
func Cached(next Embedder, store Store) Embedder {
	if store == nil {
		return next
	}
	return &cached{next: next, store: store}
}

func (c *cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.store.GetEmbedding(ctx, text); ok {
		return vec, nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.store.SetEmbedding(ctx, text, vec)
	return vec, nil
}
