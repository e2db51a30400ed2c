package retrieval

import (
	"strings"
	"unicode"
)

// DefaultKeywords mark a question as being about the documented API.
var DefaultKeywords = []string{
	"api", "endpoint", "authentication", "auth", "token", "key",
	"request", "response", "error", "code", "status",
	"header", "parameter", "payload", "json", "webhook",
	"rate limit", "authorization", "signature", "sdk",
	"get", "post", "put", "delete", "patch",
	"order", "position", "balance", "leverage", "wallet",
	"how to", "how do i", "can i", "does it",
	"help", "issue", "problem", "not working",
}

var questionWords = []string{"how", "what", "why", "when", "where", "which", "can", "does", "do", "is", "are"}

// Classifier is a keyword heuristic deciding whether a message needs the
// knowledge base or only generic reasoning.
type Classifier struct {
	words   map[string]bool
	phrases []string
}

func NewClassifier(keywords []string) *Classifier {
	c := &Classifier{words: map[string]bool{}}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.ContainsFunc(k, unicode.IsSpace) {
			c.phrases = append(c.phrases, k)
		} else {
			c.words[k] = true
		}
	}
	return c
}

func (c *Classifier) hasKeyword(lower string, tokens []string) bool {
	for _, t := range tokens {
		if c.words[t] {
			return true
		}
	}
	for _, p := range c.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsDomain reports whether text looks like a question about the docs: a
// keyword plus a question mark or leading question word, or a keyword in a
// message longer than three words.
func (c *Classifier) IsDomain(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	tokens := tokenize(lower)
	if len(tokens) == 0 {
		return false
	}

	if !c.hasKeyword(lower, tokens) {
		return false
	}

	if strings.Contains(lower, "?") {
		return true
	}
	for _, w := range questionWords {
		if tokens[0] == w {
			return true
		}
	}

	return len(strings.Fields(lower)) > 3
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// isComplex reports whether a query is long or asks several questions.
func isComplex(text string, minWords int) bool {
	return len(strings.Fields(text)) >= minWords || strings.Count(text, "?") > 1
}
