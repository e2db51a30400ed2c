package retrieval

import (
	"fmt"
	"strings"

	"github.com/bowerhall/docsage/internal/conversation"
)

const (
	groundedSystem = `You are a documentation assistant for a developer API.

- Answer only from the documentation excerpts, conversation context and live data provided.
- If the excerpts do not contain the answer, say so clearly instead of guessing.
- Be concise and technical. Include endpoint names, parameters and code examples when relevant.
- Never give trading, investment or financial advice.`

	degradedSystem = `You are a documentation assistant for a developer API. No documentation matched the user's question.

- Do not state endpoint names, limits, parameters or other product specifics as fact.
- Give general, clearly hedged guidance and suggest where in the official docs to look.
- Keep it short.`

	genericSystem = `You are a general assistant attached to an API documentation bot.

- This question is not about the documentation. Reason generically.
- Do not assert any facts about the product, its API or its limits.
- Keep it short.`

	rewritePrompt = `Rewrite this question so a documentation search is more likely to match it. Expand abbreviations, add likely synonyms and state the intent plainly. Reply with the rewritten question only.

Question: %s`

	decomposePrompt = `Extract the single most important focused sub-question from the question below, phrased as a short documentation search query. Reply with the sub-question only.

Question: %s`

	relevancyPrompt = `Rate how relevant the documentation excerpt is to the question on a scale from 0.0 (unrelated) to 1.0 (directly answers it).
Reply with JSON only: {"score": <number>}

Question: %s

Excerpt:
%s`

	rerankPrompt = `Rank these documentation excerpts by how well they answer the question, best first.
Reply with a JSON array of excerpt numbers only, for example [2, 1, 3].

Question: %s

%s`

	degradedPrefix = "I couldn't find this in the documentation, so treat the following as general guidance only.\n\n"
	genericPrefix  = "(General answer, not based on the documentation.)\n\n"
	failureAnswer  = "Sorry, I ran into a problem while answering that. Please try again in a moment or rephrase your question."

	excerptChars = 1500
)

func numberedExcerpts(cands []candidate) string {
	var sb strings.Builder
	for i, c := range cands {
		fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, sourceName(c.match.Chunk.Source()), clip(c.match.Text, excerptChars))
	}
	return sb.String()
}

type promptContext struct {
	bundle conversation.Bundle
	live   string
}

func (pc promptContext) write(sb *strings.Builder) {
	if pc.bundle.Summary != "" {
		sb.WriteString("--- Earlier conversation (summary) ---\n")
		sb.WriteString(pc.bundle.Summary)
		sb.WriteString("\n\n")
	}

	if len(pc.bundle.Recent) > 0 {
		sb.WriteString("--- Recent conversation ---\n")
		for _, t := range pc.bundle.Recent {
			if t.IsSummary() {
				continue
			}
			fmt.Fprintf(sb, "%s: %s\n", t.Role, t.Content)
		}
		sb.WriteString("\n")
	}

	if len(pc.bundle.Memories) > 0 {
		sb.WriteString("--- What we know about this user ---\n")
		for _, m := range pc.bundle.Memories {
			fmt.Fprintf(sb, "- %s\n", m)
		}
		sb.WriteString("\n")
	}

	if pc.live != "" {
		sb.WriteString("--- Live data ---\n")
		sb.WriteString(pc.live)
		sb.WriteString("\n\n")
	}
}

func groundedPrompt(question string, cands []candidate, pc promptContext) string {
	var sb strings.Builder
	pc.write(&sb)

	sb.WriteString("--- Documentation ---\n")
	weak := false
	for i, c := range cands {
		fmt.Fprintf(&sb, "[Source %d: %s]\n%s\n\n", i+1, sourceName(c.match.Chunk.Source()), c.match.Text)
		weak = weak || c.weak
	}
	if weak {
		sb.WriteString("Some excerpts are loose matches. Use them for reasoning and say when they may not apply.\n\n")
	}

	sb.WriteString("--- Question ---\n")
	sb.WriteString(question)
	sb.WriteString("\n\n--- Answer ---\n")
	return sb.String()
}

func contextOnlyPrompt(question string, pc promptContext) string {
	var sb strings.Builder
	pc.write(&sb)
	sb.WriteString("--- Question ---\n")
	sb.WriteString(question)
	sb.WriteString("\n\n--- Answer ---\n")
	return sb.String()
}

func sourceName(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
