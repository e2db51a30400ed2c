package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bowerhall/docsage/internal/cache"
	"github.com/bowerhall/docsage/internal/llm"
	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/metrics"
	"github.com/bowerhall/docsage/internal/vectorstore"
)

const (
	rewriteVariant   = ""
	decomposeVariant = "decompose"

	transformTemperature = 0.2
	transformMaxTokens   = 120
	scoreMaxTokens       = 20
	rerankMaxTokens      = 100
)

var errMalformed = errors.New("malformed model output")

func toCandidates(matches []vectorstore.Match, weak bool) []candidate {
	out := make([]candidate, len(matches))
	for i, m := range matches {
		out[i] = candidate{match: m, weak: weak}
	}
	return out
}

func (o *Orchestrator) transform(ctx context.Context, stage, variant, prompt, query string) (string, error) {
	ctx, span := tracer.Start(ctx, "retrieval."+stage)
	defer span.End()
	defer metrics.ObserveStage(stage, time.Now())

	if out, ok := o.cache.GetTransform(ctx, query, variant); ok {
		outcome(span, stage, true)
		return out, nil
	}

	out, err := o.model.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(prompt, query),
		Temperature: transformTemperature,
		MaxTokens:   transformMaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		metrics.StageOutcomes.WithLabelValues(stage, "error").Inc()
		return "", err
	}

	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		metrics.StageOutcomes.WithLabelValues(stage, "error").Inc()
		return "", fmt.Errorf("%s: %w", stage, errMalformed)
	}

	outcome(span, stage, false)
	o.cache.SetTransform(ctx, query, variant, out)
	return out, nil
}

func (o *Orchestrator) rewrite(ctx context.Context, query string) (string, error) {
	return o.transform(ctx, "rewrite_query", rewriteVariant, rewritePrompt, query)
}

func (o *Orchestrator) decompose(ctx context.Context, query string) (string, error) {
	return o.transform(ctx, "decompose", decomposeVariant, decomposePrompt, query)
}

// validate scores every candidate concurrently and drops those below
// MinRelevancy. A candidate whose score cannot be obtained is kept.
func (o *Orchestrator) validate(ctx context.Context, query string, cands []candidate) []candidate {
	ctx, span := tracer.Start(ctx, "retrieval.validate")
	defer span.End()
	defer metrics.ObserveStage("validate", time.Now())

	keep := make([]bool, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.ValidationWorkers)

	for i := range cands {
		g.Go(func() error {
			score, err := o.relevancy(gctx, query, cands[i].match.Text)
			if err != nil {
				logger.Warn("relevancy check failed, keeping candidate", "chunk", cands[i].match.ID, "error", err)
				metrics.StageOutcomes.WithLabelValues("validate", "fail_open").Inc()
				cands[i].relevancy = -1
				keep[i] = true
				return nil
			}
			cands[i].relevancy = score
			keep[i] = score >= *o.opts.MinRelevancy
			return nil
		})
	}
	g.Wait()

	kept := make([]candidate, 0, len(cands))
	for i, c := range cands {
		if keep[i] {
			kept = append(kept, c)
		}
	}

	span.SetAttributes(attribute.Int("validate.in", len(cands)), attribute.Int("validate.kept", len(kept)))
	metrics.StageOutcomes.WithLabelValues("validate", "dropped").Add(float64(len(cands) - len(kept)))
	return kept
}

func (o *Orchestrator) relevancy(ctx context.Context, query, doc string) (float64, error) {
	if score, ok := o.cache.GetRelevancy(ctx, query, doc); ok {
		return score, nil
	}

	out, err := o.model.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(relevancyPrompt, query, clip(doc, excerptChars)),
		Temperature: 0,
		MaxTokens:   scoreMaxTokens,
	})
	if err != nil {
		return 0, err
	}

	score, err := parseScore(out)
	if err != nil {
		return 0, err
	}

	o.cache.SetRelevancy(ctx, query, doc, score)
	return score, nil
}

func parseScore(out string) (float64, error) {
	out = strings.TrimSpace(out)

	var score float64
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start != -1 && end > start {
		var payload struct {
			Score *float64 `json:"score"`
		}
		if err := json.Unmarshal([]byte(out[start:end+1]), &payload); err != nil || payload.Score == nil {
			return 0, fmt.Errorf("score %q: %w", clip(out, 60), errMalformed)
		}
		score = *payload.Score
	} else {
		v, err := strconv.ParseFloat(out, 64)
		if err != nil {
			return 0, fmt.Errorf("score %q: %w", clip(out, 60), errMalformed)
		}
		score = v
	}

	if score < 0 || score > 1 {
		return 0, fmt.Errorf("score %v out of range: %w", score, errMalformed)
	}
	return score, nil
}

// rerank orders candidates by model judgement and keeps RerankTarget of
// them. On any failure the similarity order is kept.
func (o *Orchestrator) rerank(ctx context.Context, query string, cands []candidate) []candidate {
	ctx, span := tracer.Start(ctx, "retrieval.rerank")
	defer span.End()
	defer metrics.ObserveStage("rerank", time.Now())

	target := o.opts.RerankTarget
	docs := make([]string, len(cands))
	for i, c := range cands {
		docs[i] = c.match.Text
	}

	if hashes, ok := o.cache.GetRerank(ctx, query, docs); ok {
		if ordered, ok := orderByHashes(cands, hashes); ok {
			outcome(span, "rerank", true)
			return truncate(ordered, target)
		}
	}

	ordered, err := o.rankWithModel(ctx, query, cands)
	if err != nil {
		span.RecordError(err)
		logger.Warn("rerank failed, keeping similarity order", "error", err)
		metrics.StageOutcomes.WithLabelValues("rerank", "fallback").Inc()
		return truncate(bySimilarity(cands), target)
	}

	outcome(span, "rerank", false)

	hashes := make([]string, len(ordered))
	for i, c := range ordered {
		hashes[i] = cache.DocHash(c.match.Text)
	}
	o.cache.SetRerank(ctx, query, docs, hashes)

	return truncate(ordered, target)
}

func (o *Orchestrator) rankWithModel(ctx context.Context, query string, cands []candidate) ([]candidate, error) {
	out, err := o.model.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(rerankPrompt, query, numberedExcerpts(cands)),
		Temperature: 0,
		MaxTokens:   rerankMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	order, err := parseOrder(out, len(cands))
	if err != nil {
		return nil, err
	}

	seen := make([]bool, len(cands))
	ordered := make([]candidate, 0, len(cands))
	for _, n := range order {
		seen[n-1] = true
		ordered = append(ordered, cands[n-1])
	}

	// anything the model left out follows in similarity order
	var rest []candidate
	for i, c := range cands {
		if !seen[i] {
			rest = append(rest, c)
		}
	}
	return append(ordered, bySimilarity(rest)...), nil
}

// parseOrder reads a JSON array of 1-based excerpt numbers.
func parseOrder(out string, n int) ([]int, error) {
	start := strings.Index(out, "[")
	end := strings.LastIndex(out, "]")
	if start == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in rerank output: %w", errMalformed)
	}

	var order []int
	if err := json.Unmarshal([]byte(out[start:end+1]), &order); err != nil {
		return nil, fmt.Errorf("rerank output: %w", errMalformed)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("empty rerank order: %w", errMalformed)
	}

	seen := map[int]bool{}
	for _, v := range order {
		if v < 1 || v > n || seen[v] {
			return nil, fmt.Errorf("rerank index %d invalid: %w", v, errMalformed)
		}
		seen[v] = true
	}
	return order, nil
}

func orderByHashes(cands []candidate, hashes []string) ([]candidate, bool) {
	byHash := make(map[string]candidate, len(cands))
	for _, c := range cands {
		byHash[cache.DocHash(c.match.Text)] = c
	}

	ordered := make([]candidate, 0, len(hashes))
	for _, h := range hashes {
		c, ok := byHash[h]
		if !ok {
			return nil, false
		}
		ordered = append(ordered, c)
	}
	return ordered, true
}

func bySimilarity(cands []candidate) []candidate {
	out := append([]candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].match.Similarity > out[j].match.Similarity
	})
	return out
}

func truncate(cands []candidate, n int) []candidate {
	if len(cands) > n {
		return cands[:n]
	}
	return cands
}

func (o *Orchestrator) generate(ctx context.Context, stage, system, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "retrieval.generate", trace.WithAttributes(attribute.String("generate.stage", stage)))
	defer span.End()
	defer metrics.ObserveStage("generate_"+stage, time.Now())

	out, err := o.model.Generate(ctx, llm.Request{
		Prompt:      prompt,
		System:      system,
		Temperature: *o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		metrics.StageOutcomes.WithLabelValues("generate", "error").Inc()
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (o *Orchestrator) failed(err error, relevant bool) Result {
	logger.Error("answer generation failed", "error", err)
	o.alerts.Warn("generation", "answer generation failed", err)
	return Result{Answer: failureAnswer, IsRelevant: relevant, Path: PathFailed}
}

func (o *Orchestrator) grounded(ctx context.Context, query string, cands []candidate, path Path, pc promptContext) Result {
	answer, err := o.generate(ctx, "grounded", groundedSystem, groundedPrompt(query, cands, pc))
	if err != nil {
		return o.failed(err, true)
	}

	sources := make([]Source, len(cands))
	for i, c := range cands {
		sources[i] = Source{
			Name:       sourceName(c.match.Chunk.Source()),
			ChunkID:    c.match.ID,
			Similarity: c.match.Similarity,
			Weak:       c.weak,
		}
	}

	return Result{Answer: answer, Sources: sources, IsRelevant: true, Grounded: true, Path: path}
}

func (o *Orchestrator) degraded(ctx context.Context, query string, pc promptContext) Result {
	answer, err := o.generate(ctx, "degraded", degradedSystem, contextOnlyPrompt(query, pc))
	if err != nil {
		return o.failed(err, true)
	}
	return Result{Answer: degradedPrefix + answer, IsRelevant: true, Path: PathDegraded}
}

func (o *Orchestrator) generic(ctx context.Context, query string, pc promptContext) Result {
	answer, err := o.generate(ctx, "generic", genericSystem, contextOnlyPrompt(query, pc))
	if err != nil {
		return o.failed(err, false)
	}
	return Result{Answer: genericPrefix + answer, IsRelevant: false, Path: PathGeneric}
}
