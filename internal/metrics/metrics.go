package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bowerhall/docsage/internal/logger"
)

const namespace = "docsage"

// Registry holds every docsage collector. A private registry keeps tests
// free of duplicate-registration panics from the global default.
var Registry = prometheus.NewRegistry()

var (
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Computation cache lookups by namespace and result.",
	}, []string{"namespace", "result"})

	CacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_backend_errors_total",
		Help:      "Cache backend failures treated as misses or skipped writes.",
	}, []string{"op"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_stage_seconds",
		Help:      "Latency of each retrieval pipeline stage.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	StageOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieval_stage_outcomes_total",
		Help:      "Retrieval stage outcomes such as hit, miss, fallback and error.",
	}, []string{"stage", "outcome"})

	Answers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_total",
		Help:      "Answers produced, by resolution path.",
	}, []string{"path"})

	VectorChunks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "vectorstore_chunks",
		Help:      "Chunks currently held by the embedding store.",
	})

	MemoriesExtracted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memories_extracted_total",
		Help:      "Memories stored by background extraction.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CacheLookups,
		CacheErrors,
		StageDuration,
		StageOutcomes,
		Answers,
		VectorChunks,
		MemoriesExtracted,
	)
}

// ObserveStage records the duration since start under stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
