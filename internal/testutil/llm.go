package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/bowerhall/docsage/internal/llm"
)

// Rule answers any prompt (or system prompt) containing Match.
type Rule struct {
	Match    string
	Response string
	Err      error
}

// ScriptedLLM returns canned responses chosen by the first matching rule,
// falling back to Default. It is safe for concurrent use.
type ScriptedLLM struct {
	Rules   []Rule
	Default string

	mu       sync.Mutex
	requests []llm.Request
}

func NewScriptedLLM(def string, rules ...Rule) *ScriptedLLM {
	return &ScriptedLLM{Default: def, Rules: rules}
}

// On appends a rule and returns the receiver for chaining.
func (s *ScriptedLLM) On(match, response string) *ScriptedLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rules = append(s.Rules, Rule{Match: match, Response: response})
	return s
}

// Fail appends a rule that errors for prompts containing match.
func (s *ScriptedLLM) Fail(match string, err error) *ScriptedLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rules = append(s.Rules, Rule{Match: match, Err: err})
	return s
}

func (s *ScriptedLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	rules := s.Rules
	s.mu.Unlock()

	for _, r := range rules {
		if strings.Contains(req.Prompt, r.Match) || strings.Contains(req.System, r.Match) {
			if r.Err != nil {
				return "", r.Err
			}
			return r.Response, nil
		}
	}
	return s.Default, nil
}

func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *ScriptedLLM) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// CallsMatching counts requests whose prompt or system prompt contains sub.
func (s *ScriptedLLM) CallsMatching(sub string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.requests {
		if strings.Contains(r.Prompt, sub) || strings.Contains(r.System, sub) {
			n++
		}
	}
	return n
}

func (s *ScriptedLLM) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}
