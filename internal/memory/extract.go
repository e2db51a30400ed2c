package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bowerhall/docsage/internal/conversation"
	"github.com/bowerhall/docsage/internal/llm"
	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/metrics"
)

const (
	extractWindow      = 5
	defaultImportance  = 0.5
	extractTemperature = 0.2
	extractMaxTokens   = 500
)

type extractedMemory struct {
	Content    string   `json:"content"`
	Type       Type     `json:"type"`
	Importance *float64 `json:"importance"`
}

// Extract asks the model for durable facts, preferences and strategies in
// the last few turns and stores them. One malformed record discards the
// whole batch.
func (s *Store) Extract(ctx context.Context, conversationID string, turns []conversation.Turn) ([]Memory, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	if s.model == nil {
		return nil, fmt.Errorf("no model configured for extraction")
	}

	if len(turns) > extractWindow {
		turns = turns[len(turns)-extractWindow:]
	}

	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Role)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Extract key facts, preferences, and strategies from this conversation.
Return a JSON array of objects, each with:
- "content": the fact, preference or strategy
- "type": "fact", "preference", "strategy", or "context"
- "importance": 0.0-1.0

Return [] when nothing is worth remembering.

Conversation:
%s
JSON array:`, sb.String())

	response, err := s.model.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: extractTemperature,
		MaxTokens:   extractMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	records, err := parseExtracted(response)
	if err != nil {
		return nil, err
	}

	var stored []Memory
	for _, r := range records {
		m, err := s.Store(ctx, conversationID, r.Content, r.Type, *r.Importance)
		if err != nil {
			logger.Warn("extracted memory not stored", "conversation", conversationID, "error", err)
			continue
		}
		stored = append(stored, *m)
	}

	metrics.MemoriesExtracted.Add(float64(len(stored)))
	logger.Info("memories extracted", "conversation", conversationID, "count", len(stored))
	return stored, nil
}

// parseExtracted decodes the JSON array embedded in response, filling
// defaults and rejecting the batch on any invalid record.
func parseExtracted(response string) ([]extractedMemory, error) {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")

	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found")
	}

	var records []extractedMemory
	if err := json.Unmarshal([]byte(response[start:end+1]), &records); err != nil {
		return nil, fmt.Errorf("decode extracted memories: %w", err)
	}

	for i := range records {
		r := &records[i]
		if strings.TrimSpace(r.Content) == "" {
			return nil, fmt.Errorf("record %d has no content", i)
		}
		if r.Type == "" {
			r.Type = TypeFact
		}
		if !r.Type.Valid() {
			return nil, fmt.Errorf("record %d has invalid type %q", i, r.Type)
		}
		if r.Importance == nil {
			v := defaultImportance
			r.Importance = &v
		}
		if *r.Importance < 0 || *r.Importance > 1 {
			return nil, fmt.Errorf("record %d importance %v out of range", i, *r.Importance)
		}
	}

	return records, nil
}
