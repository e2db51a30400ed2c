package retrieval

import (
	"context"

	"github.com/bowerhall/docsage/internal/vectorstore"
)

// Path names the stage that produced an answer.
type Path string

const (
	PathFact      Path = "fact"
	PathGeneric   Path = "generic"
	PathPrimary   Path = "primary"
	PathRewrite   Path = "rewrite"
	PathBroad     Path = "broad"
	PathDecompose Path = "decompose"
	PathDegraded  Path = "degraded"
	PathFailed    Path = "failed"
)

type Query struct {
	ConversationID string
	Text           string
}

// Source is a document an answer was grounded on.
type Source struct {
	Name       string  `json:"name"`
	ChunkID    string  `json:"chunk_id"`
	Similarity float64 `json:"similarity"`
	// Weak marks broad-fallback candidates, suitable for reasoning rather
	// than citation.
	Weak bool `json:"weak,omitempty"`
}

type Result struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	IsRelevant bool     `json:"is_relevant"`
	Grounded   bool     `json:"grounded"`
	Path       Path     `json:"path"`
	FromCache  bool     `json:"-"`
}

// Index is the embedding store surface used by the orchestrator.
type Index interface {
	Search(ctx context.Context, query string, topK int, minSimilarity float64) ([]vectorstore.Match, error)
	BroadSearch(ctx context.Context, query string) ([]vectorstore.Match, error)
	Add(ctx context.Context, texts []string, metadatas []map[string]any, ids []string) error
	Count() int
}

// FactLookup finds an operator fact mentioned in a query.
type FactLookup interface {
	Search(text string) (string, bool)
}

// Notifier raises operator alerts.
type Notifier interface {
	Warn(component, message string, err error)
}

type noFacts struct{}

func (noFacts) Search(string) (string, bool) { return "", false }

type noAlerts struct{}

func (noAlerts) Warn(string, string, error) {}

// candidate is a document moving through validation and reranking.
type candidate struct {
	match     vectorstore.Match
	weak      bool
	relevancy float64
}
