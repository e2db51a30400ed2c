package vectorstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/bowerhall/docsage/internal/embedder"
	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/metrics"
)

const (
	defaultBroadThreshold = 0.35
	defaultBroadTopK      = 10
)

// ErrLengthMismatch is returned when parallel inputs or snapshot arrays
// have different lengths.
var ErrLengthMismatch = errors.New("length mismatch")

type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Source returns the "source" metadata value, if any.
func (c Chunk) Source() string {
	s, _ := c.Metadata["source"].(string)
	return s
}

type Match struct {
	Chunk
	Similarity float64
}

type Options struct {
	BroadThreshold float64
	BroadTopK      int
}

// Store is an in-memory brute-force embedding index with whole-snapshot
// persistence. Searches run concurrently; adds are serialized.
type Store struct {
	embedder  embedder.Embedder
	persister Persister
	opts      Options

	mu   sync.RWMutex
	snap *Snapshot
}

func New(ctx context.Context, e embedder.Embedder, p Persister, opts Options) (*Store, error) {
	if opts.BroadThreshold <= 0 {
		opts.BroadThreshold = defaultBroadThreshold
	}
	if opts.BroadTopK <= 0 {
		opts.BroadTopK = defaultBroadTopK
	}

	snap, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}

	metrics.VectorChunks.Set(float64(snap.Len()))
	logger.Debug("vector store loaded", "chunks", snap.Len())

	return &Store{embedder: e, persister: p, opts: opts, snap: snap}, nil
}

// ChunkID is the default id for a chunk: hex md5 of its text.
func ChunkID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Add embeds every text and appends them with their metadata and ids.
// metadatas and ids may be nil; otherwise they must match texts in length.
// Any embedding failure aborts the add and nothing is stored.
func (s *Store) Add(ctx context.Context, texts []string, metadatas []map[string]any, ids []string) error {
	if len(texts) == 0 {
		return nil
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return fmt.Errorf("metadatas has %d entries for %d texts: %w", len(metadatas), len(texts), ErrLengthMismatch)
	}
	if ids != nil && len(ids) != len(texts) {
		return fmt.Errorf("ids has %d entries for %d texts: %w", len(ids), len(texts), ErrLengthMismatch)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if len(vec) == 0 {
			return fmt.Errorf("embed chunk %d: empty vector", i)
		}
		vectors[i] = vec
	}

	newIDs := make([]string, len(texts))
	newMetas := make([]map[string]any, len(texts))
	for i, text := range texts {
		if ids != nil && ids[i] != "" {
			newIDs[i] = ids[i]
		} else {
			newIDs[i] = ChunkID(text)
		}
		if metadatas != nil && metadatas[i] != nil {
			newMetas[i] = metadatas[i]
		} else {
			newMetas[i] = map[string]any{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := &Snapshot{
		IDs:        append(append([]string(nil), s.snap.IDs...), newIDs...),
		Texts:      append(append([]string(nil), s.snap.Texts...), texts...),
		Metadatas:  append(append([]map[string]any(nil), s.snap.Metadatas...), newMetas...),
		Embeddings: append(append([][]float32(nil), s.snap.Embeddings...), vectors...),
	}

	if err := s.persister.Save(ctx, next); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	s.snap = next
	metrics.VectorChunks.Set(float64(next.Len()))
	logger.Info("chunks added", "added", len(texts), "total", next.Len())
	return nil
}

// Clear removes every chunk and persists the empty snapshot.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	empty := &Snapshot{}
	if err := s.persister.Save(ctx, empty); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	s.snap = empty
	metrics.VectorChunks.Set(0)
	return nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Len()
}

// Search returns up to topK chunks whose cosine similarity to query is at
// least minSimilarity, best first. topK <= 0 means no limit.
func (s *Store) Search(ctx context.Context, query string, topK int, minSimilarity float64) ([]Match, error) {
	if s.Count() == 0 {
		return nil, nil
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()

	matches := make([]Match, 0, snap.Len())
	for i, vec := range snap.Embeddings {
		sim := Cosine(qvec, vec)
		if sim < minSimilarity {
			continue
		}
		matches = append(matches, Match{
			Chunk: Chunk{
				ID:       snap.IDs[i],
				Text:     snap.Texts[i],
				Metadata: snap.Metadatas[i],
			},
			Similarity: sim,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// BroadSearch is Search with the configured low threshold and wide K.
func (s *Store) BroadSearch(ctx context.Context, query string) ([]Match, error) {
	return s.Search(ctx, query, s.opts.BroadTopK, s.opts.BroadThreshold)
}

// Snapshot returns the current snapshot. Callers must not modify it.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Cosine returns the cosine similarity of a and b, 0 when either is empty
// or they differ in length.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}

	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
