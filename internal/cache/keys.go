package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
)

const (
	docPrefixLen     = 500
	turnContentLen   = 100
	liveContextLen   = 200
	noContextMarker  = "no_context"
	recentTurnsInKey = 2
)

// Turn is the role/content pair that contributes to a response key.
type Turn struct {
	Role    string
	Content string
}

// Normalize lower-cases text, strips punctuation and collapses whitespace so
// trivially different phrasings share a key.
func Normalize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(sb.String()), " ")
}

// Hash is the first 16 hex chars of sha256 over the normalized text.
func Hash(text string) string {
	return shortSum(Normalize(text))
}

// DocHash identifies a document by its leading text.
func DocHash(doc string) string {
	return Hash(prefix(doc, docPrefixLen))
}

// DocSetHash is order independent.
func DocSetHash(docs []string) string {
	hashes := make([]string, len(docs))
	for i, d := range docs {
		hashes[i] = DocHash(d)
	}
	sort.Strings(hashes)
	return shortSum(strings.Join(hashes, "|"))
}

// ContextHash covers the last two turns and the live context.
func ContextHash(history []Turn, live string) string {
	var parts []string

	recent := history
	if len(recent) > recentTurnsInKey {
		recent = recent[len(recent)-recentTurnsInKey:]
	}
	for _, t := range recent {
		parts = append(parts, t.Role+":"+prefix(t.Content, turnContentLen))
	}

	if live != "" {
		parts = append(parts, Hash(prefix(live, liveContextLen)))
	}

	combined := noContextMarker
	if len(parts) > 0 {
		combined = strings.Join(parts, "|")
	}
	return shortSum(combined)
}

func ResponseKey(query string, history []Turn, live string) string {
	return string(Response) + ":" + Hash(query) + ":" + ContextHash(history, live)
}

func RelevancyKey(query, doc string) string {
	return string(Relevancy) + ":" + Hash(query) + ":" + DocHash(doc)
}

func RerankKey(query string, docs []string) string {
	return string(Rerank) + ":" + Hash(query) + ":" + DocSetHash(docs)
}

func TransformKey(query, variant string) string {
	key := string(Transform) + ":" + Hash(query)
	if variant != "" {
		key += ":" + variant
	}
	return key
}

func EmbeddingKey(text string) string {
	return string(Embedding) + ":" + Hash(text)
}

func shortSum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// prefix cuts s to at most n runes.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
