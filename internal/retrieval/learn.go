package retrieval

import (
	"context"
	"errors"
	"strings"

	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/vectorstore"
)

var ErrEmptyText = errors.New("nothing to learn")

// Learn adds one operator-supplied snippet to the index and returns its
// chunk id.
func (o *Orchestrator) Learn(ctx context.Context, text, source string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if source == "" {
		source = "learned"
	}

	id := vectorstore.ChunkID(text)
	meta := map[string]any{"source": source, "learned": true}
	if err := o.index.Add(ctx, []string{text}, []map[string]any{meta}, []string{id}); err != nil {
		return "", err
	}

	logger.Info("learned snippet", "id", id, "source", source, "chunks", o.index.Count())
	return id, nil
}
