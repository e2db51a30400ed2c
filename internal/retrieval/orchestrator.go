package retrieval

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bowerhall/docsage/internal/cache"
	"github.com/bowerhall/docsage/internal/conversation"
	"github.com/bowerhall/docsage/internal/livecontext"
	"github.com/bowerhall/docsage/internal/llm"
	"github.com/bowerhall/docsage/internal/logger"
	"github.com/bowerhall/docsage/internal/memory"
	"github.com/bowerhall/docsage/internal/metrics"
	"github.com/bowerhall/docsage/internal/vectorstore"
)

var tracer = otel.Tracer("docsage/retrieval")

type Deps struct {
	Index         Index
	Facts         FactLookup
	Cache         *cache.Cache
	Conversations conversation.Service
	Memory        memory.Service
	Model         llm.LLM
	Live          livecontext.Provider
	Alerts        Notifier
}

// Orchestrator answers questions by running the retrieval pipeline:
// facts, cache, classification, search with fallbacks, validation,
// reranking and generation.
type Orchestrator struct {
	index      Index
	facts      FactLookup
	cache      *cache.Cache
	conv       conversation.Service
	memory     memory.Service
	model      llm.LLM
	live       livecontext.Provider
	alerts     Notifier
	classifier *Classifier
	opts       Options

	// background tracks extraction goroutines so tests and shutdown can
	// wait for them.
	background sync.WaitGroup

	// turns counts recorded turns per conversation. It only grows, so
	// trimming the stored history does not shift the extraction cadence.
	turnsMu sync.Mutex
	turns   map[string]int
}

func New(opts Options, deps Deps) *Orchestrator {
	opts.applyDefaults()

	o := &Orchestrator{
		index:      deps.Index,
		facts:      deps.Facts,
		cache:      deps.Cache,
		conv:       deps.Conversations,
		memory:     deps.Memory,
		model:      deps.Model,
		live:       deps.Live,
		alerts:     deps.Alerts,
		classifier: NewClassifier(opts.Keywords),
		opts:       opts,
		turns:      map[string]int{},
	}

	if o.facts == nil {
		o.facts = noFacts{}
	}
	if o.cache == nil {
		o.cache = cache.Nop()
	}
	if o.conv == nil {
		o.conv = conversation.Nop{}
	}
	if o.memory == nil {
		o.memory = memory.Nop{}
	}
	if o.live == nil {
		o.live = livecontext.None{}
	}
	if o.alerts == nil {
		o.alerts = noAlerts{}
	}

	return o
}

func (o *Orchestrator) Options() Options {
	return o.opts
}

// Answer runs the pipeline for one user message. It never returns an error:
// the worst outcome is a hedged apology.
func (o *Orchestrator) Answer(ctx context.Context, q Query) Result {
	requestID := uuid.NewString()
	text := strings.TrimSpace(q.Text)

	ctx, span := tracer.Start(ctx, "retrieval.answer", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("conversation.id", q.ConversationID),
	))
	defer span.End()

	log := logger.With("request", requestID, "conversation", q.ConversationID)
	log.Debug("answering", "query", clip(text, 80))

	res := o.answer(ctx, q.ConversationID, text)
	res.Answer = truncateAnswer(res.Answer, o.opts.MaxResponseLength)

	span.SetAttributes(
		attribute.String("answer.path", string(res.Path)),
		attribute.Bool("answer.grounded", res.Grounded),
		attribute.Bool("answer.from_cache", res.FromCache),
		attribute.Int("answer.sources", len(res.Sources)),
	)
	if res.Path == PathFailed {
		span.SetStatus(codes.Error, "generation failed")
	}

	metrics.Answers.WithLabelValues(string(res.Path)).Inc()
	log.Info("answered", "path", res.Path, "grounded", res.Grounded, "cached", res.FromCache, "sources", len(res.Sources))

	o.record(ctx, q.ConversationID, text, res.Answer)
	return res
}

func (o *Orchestrator) answer(ctx context.Context, convID, text string) Result {
	if fact, ok := o.stageFacts(ctx, text); ok {
		return Result{Answer: fact, IsRelevant: true, Grounded: true, Path: PathFact}
	}

	history := o.conv.History(ctx, convID)
	live := o.fetchLive(ctx, text)
	turns := cacheTurns(history)

	var cached Result
	if o.stageCache(ctx, text, turns, live, &cached) {
		cached.FromCache = true
		return cached
	}

	pc := promptContext{bundle: o.conv.GetContext(ctx, convID, text), live: live}

	var res Result
	if !o.stageClassify(ctx, text) {
		res = o.generic(ctx, text, pc)
	} else {
		res = o.retrieve(ctx, text, pc)
	}

	if res.Path != PathFailed {
		o.cache.SetResponse(ctx, text, turns, live, res)
	}
	return res
}

func (o *Orchestrator) stageFacts(ctx context.Context, text string) (string, bool) {
	_, span := tracer.Start(ctx, "retrieval.facts")
	defer span.End()

	fact, ok := o.facts.Search(text)
	outcome(span, "facts", ok)
	return fact, ok
}

func (o *Orchestrator) stageCache(ctx context.Context, text string, turns []cache.Turn, live string, out *Result) bool {
	ctx, span := tracer.Start(ctx, "retrieval.cache")
	defer span.End()

	ok := o.cache.GetResponse(ctx, text, turns, live, out)
	outcome(span, "cache", ok)
	return ok
}

func (o *Orchestrator) stageClassify(ctx context.Context, text string) bool {
	_, span := tracer.Start(ctx, "retrieval.classify")
	defer span.End()

	domain := o.classifier.IsDomain(text)
	span.SetAttributes(attribute.Bool("classify.domain", domain))
	if domain {
		metrics.StageOutcomes.WithLabelValues("classify", "domain").Inc()
	} else {
		metrics.StageOutcomes.WithLabelValues("classify", "generic").Inc()
	}
	return domain
}

func (o *Orchestrator) fetchLive(ctx context.Context, text string) string {
	live, err := o.live.Fetch(ctx, text)
	if err != nil {
		logger.Warn("live context unavailable", "error", err)
		return ""
	}
	return live
}

// retrieve runs search with its fallback ladder, then validation,
// reranking and grounded or degraded generation.
func (o *Orchestrator) retrieve(ctx context.Context, text string, pc promptContext) Result {
	cands, path, err := o.search(ctx, text)
	if err != nil {
		logger.Error("search failed", "error", err)
	}

	if len(cands) > 0 {
		cands = o.validate(ctx, text, cands)
	}
	if len(cands) > o.opts.RerankTarget {
		cands = o.rerank(ctx, text, cands)
	}

	if len(cands) == 0 {
		return o.degraded(ctx, text, pc)
	}

	return o.grounded(ctx, text, cands, path, pc)
}

// search walks primary search, bounded rewrites, the broad fallback and
// decomposition, stopping at the first stage that finds anything.
func (o *Orchestrator) search(ctx context.Context, text string) ([]candidate, Path, error) {
	matches, err := o.primary(ctx, "primary", text)
	if err != nil {
		return nil, PathDegraded, err
	}
	if len(matches) > 0 {
		return toCandidates(matches, false), PathPrimary, nil
	}

	current := text
	for i := range o.opts.MaxRewrites {
		rewritten, err := o.rewrite(ctx, current)
		if err != nil {
			logger.Warn("query rewrite failed, keeping query", "attempt", i+1, "error", err)
			break
		}
		current = rewritten

		matches, err = o.primary(ctx, "rewrite", current)
		if err != nil {
			return nil, PathDegraded, err
		}
		if len(matches) > 0 {
			return toCandidates(matches, false), PathRewrite, nil
		}
	}

	matches, err = o.broad(ctx, text)
	if err != nil {
		return nil, PathDegraded, err
	}
	if len(matches) > 0 {
		return toCandidates(matches, true), PathBroad, nil
	}

	if !isComplex(text, o.opts.DecomposeMinWords) {
		return nil, PathDegraded, nil
	}

	sub, err := o.decompose(ctx, text)
	if err != nil {
		logger.Warn("query decomposition failed", "error", err)
		return nil, PathDegraded, nil
	}

	matches, err = o.primary(ctx, "decompose", sub)
	if err != nil {
		return nil, PathDegraded, err
	}
	if len(matches) > 0 {
		return toCandidates(matches, false), PathDecompose, nil
	}

	matches, err = o.broad(ctx, sub)
	if err != nil {
		return nil, PathDegraded, err
	}
	return toCandidates(matches, true), PathDecompose, nil
}

func (o *Orchestrator) primary(ctx context.Context, stage, query string) ([]vectorstore.Match, error) {
	ctx, span := tracer.Start(ctx, "retrieval.search", trace.WithAttributes(attribute.String("search.stage", stage)))
	defer span.End()
	defer metrics.ObserveStage(stage, time.Now())

	matches, err := o.index.Search(ctx, query, o.opts.TopK, o.opts.SimilarityThreshold)
	if err != nil {
		span.RecordError(err)
		metrics.StageOutcomes.WithLabelValues(stage, "error").Inc()
		return nil, err
	}
	outcome(span, stage, len(matches) > 0)
	return matches, nil
}

func (o *Orchestrator) broad(ctx context.Context, query string) ([]vectorstore.Match, error) {
	ctx, span := tracer.Start(ctx, "retrieval.broad")
	defer span.End()
	defer metrics.ObserveStage("broad", time.Now())

	matches, err := o.index.BroadSearch(ctx, query)
	if err != nil {
		span.RecordError(err)
		metrics.StageOutcomes.WithLabelValues("broad", "error").Inc()
		return nil, err
	}
	outcome(span, "broad", len(matches) > 0)
	return matches, nil
}

// record appends the exchange to the conversation and kicks off memory
// extraction every ExtractEvery turns.
func (o *Orchestrator) record(ctx context.Context, convID, question, answer string) {
	if convID == "" {
		return
	}

	if err := o.conv.AddMessage(ctx, convID, conversation.RoleUser, question); err != nil {
		logger.Warn("failed to record user turn", "conversation", convID, "error", err)
	}
	if err := o.conv.AddMessage(ctx, convID, conversation.RoleAssistant, answer); err != nil {
		logger.Warn("failed to record assistant turn", "conversation", convID, "error", err)
	}

	if o.opts.ExtractEvery <= 0 {
		return
	}

	if !o.countTurns(convID, 2) {
		return
	}

	history := o.conv.History(ctx, convID)
	if len(history) == 0 {
		return
	}

	bg := context.WithoutCancel(ctx)
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		if _, err := o.memory.Extract(bg, convID, history); err != nil {
			logger.Warn("memory extraction failed", "conversation", convID, "error", err)
		}
	}()
}

// countTurns adds n turns to the conversation's counter and reports whether
// the counter crossed a multiple of ExtractEvery.
func (o *Orchestrator) countTurns(convID string, n int) bool {
	o.turnsMu.Lock()
	defer o.turnsMu.Unlock()

	before := o.turns[convID]
	after := before + n
	o.turns[convID] = after

	every := o.opts.ExtractEvery
	return after/every > before/every
}

// Wait blocks until background extraction has finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func outcome(span trace.Span, stage string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	span.SetAttributes(attribute.String("stage.outcome", result))
	metrics.StageOutcomes.WithLabelValues(stage, result).Inc()
}

func cacheTurns(history []conversation.Turn) []cache.Turn {
	turns := make([]cache.Turn, len(history))
	for i, t := range history {
		turns[i] = cache.Turn{Role: t.Role, Content: t.Content}
	}
	return turns
}

func truncateAnswer(answer string, limit int) string {
	r := []rune(answer)
	if limit <= 3 || len(r) <= limit {
		return answer
	}
	return string(r[:limit-3]) + "..."
}
