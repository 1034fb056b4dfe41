package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	processingStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "document_processing_started_total",
		Help: "Total document processing attempts started",
	})
	processingCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "document_processing_completed_total",
		Help: "Total document processing attempts completed",
	})
	processingFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "document_processing_failed_total",
		Help: "Total document processing attempts that ended in error",
	})
	processingInProgressTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "document_processing_in_progress_total",
		Help: "Start requests short-circuited because an attempt was already running",
	})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "document_processing_duration_ms",
		Help:    "Document processing duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
	})
	medicationOccurrencesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medication_occurrences_written_total",
		Help: "Medication occurrences written by completed attempts",
	})

	jobsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processing_jobs_received_total",
		Help: "Queue messages received by the worker",
	})
	jobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processing_jobs_completed_total",
		Help: "Queue messages handled successfully",
	})
	jobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processing_jobs_failed_total",
		Help: "Queue messages whose handling failed and will be retried",
	})
	jobsDeletedUnrecoverable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processing_jobs_deleted_unrecoverable_total",
		Help: "Queue messages deleted because they could never be handled",
	})

	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "LLM completion calls by operation and outcome",
	}, []string{"op", "outcome"})
	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Tokens reported by the LLM provider",
	}, []string{"op", "kind"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "In-process cache lookups by cache and result",
	}, []string{"cache", "result"})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"group"})
)

// IncProcessingStarted increments the started counter.
func IncProcessingStarted() { processingStartedTotal.Inc() }

// IncProcessingCompleted increments the completed counter.
func IncProcessingCompleted() { processingCompletedTotal.Inc() }

// IncProcessingFailed increments the failed counter.
func IncProcessingFailed() { processingFailedTotal.Inc() }

// IncProcessingInProgress counts start requests that found an attempt running.
func IncProcessingInProgress() { processingInProgressTotal.Inc() }

// ObserveProcessingDurationMs records a processing duration in milliseconds.
func ObserveProcessingDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	processingDuration.Observe(value)
}

// AddMedicationOccurrences counts occurrences written for a document.
func AddMedicationOccurrences(n int) {
	if n > 0 {
		medicationOccurrencesWritten.Add(float64(n))
	}
}

func IncJobsReceived()             { jobsReceived.Inc() }
func IncJobsCompleted()            { jobsCompleted.Inc() }
func IncJobsFailed()               { jobsFailed.Inc() }
func IncJobsDeletedUnrecoverable() { jobsDeletedUnrecoverable.Inc() }

// IncRateLimited counts a rejected request in its rate limit group.
func IncRateLimited(group string) { rateLimitedTotal.WithLabelValues(group).Inc() }

// ObserveLLMCall counts one completion call. outcome is "ok", "retry" or "error".
func ObserveLLMCall(op, outcome string) { llmRequestsTotal.WithLabelValues(op, outcome).Inc() }

// AddLLMTokens records prompt and completion token usage.
func AddLLMTokens(op string, prompt, completion int) {
	if prompt > 0 {
		llmTokensTotal.WithLabelValues(op, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		llmTokensTotal.WithLabelValues(op, "completion").Add(float64(completion))
	}
}

// ObserveCacheLookup counts a hit or miss on the named cache.
func ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

var registerDBOnce sync.Once

// RegisterDBStats exports pool statistics for the first database opened by
// the process.
func RegisterDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	registerDBOnce.Do(func() {
		prometheus.MustRegister(collectors.NewDBStatsCollector(db, "medocs"))
	})
}

// Handler exposes the default registry in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// DurationMs returns the elapsed milliseconds between two instants.
func DurationMs(startedAt, completedAt time.Time) float64 {
	if startedAt.IsZero() || completedAt.IsZero() {
		return 0
	}
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}
