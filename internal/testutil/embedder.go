package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

const vocabDims = 256

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"what": true, "how": true, "do": true, "does": true, "i": true, "to": true,
	"of": true, "for": true, "in": true, "on": true, "and": true, "or": true,
	"my": true, "me": true, "can": true, "you": true, "it": true, "with": true,
	"be": true, "at": true, "by": true, "this": true, "that": true, "there": true,
}

// VocabEmbedder maps each distinct non-stopword token to its own dimension
// in first-seen order, so cosine similarity is plain bag-of-words overlap.
type VocabEmbedder struct {
	mu    sync.Mutex
	index map[string]int
	Calls int
}

func NewVocabEmbedder() *VocabEmbedder {
	return &VocabEmbedder{index: map[string]int{}}
}

func (v *VocabEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.Calls++
	vec := make([]float32, vocabDims)

	for _, tok := range Tokens(text) {
		idx, ok := v.index[tok]
		if !ok {
			if len(v.index) >= vocabDims {
				return nil, fmt.Errorf("vocabulary exceeds %d tokens", vocabDims)
			}
			idx = len(v.index)
			v.index[tok] = idx
		}
		vec[idx]++
	}

	return vec, nil
}

// Tokens lower-cases text, splits on anything but letters and digits and
// drops stopwords.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// FailingEmbedder always errors.
type FailingEmbedder struct {
	Err error
}

func (f FailingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, errors.New("embedder unavailable")
}
