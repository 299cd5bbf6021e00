// Package metrics defines the Prometheus instrumentation for the
// suggestion core. Vectors are registered against an injected
// prometheus.Registerer rather than as package globals, since a single
// process only ever needs one Registry but tests construct many.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every exported metric.
type Registry struct {
	SuggestionLatency       *prometheus.HistogramVec
	SuggestionRequests      *prometheus.CounterVec
	CacheOperations         *prometheus.CounterVec
	TriePhraseCount         prometheus.Gauge
	TrieNodeCount           prometheus.Gauge
	TrieMaxDepth            prometheus.Gauge
	AggregationBufferSize   prometheus.Gauge
	QueriesFiltered         *prometheus.CounterVec
	CircuitBreakerState     *prometheus.GaugeVec
	CircuitBreakerFailures  *prometheus.CounterVec
	CircuitBreakerFallbacks *prometheus.CounterVec
	RateLimitHits           *prometheus.CounterVec
	IdempotencyDuplicates   *prometheus.CounterVec
	IdempotencyProcessed    *prometheus.CounterVec
}

// New constructs and registers every metric against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with other
// Registry instances in the same process.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		SuggestionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "suggestion_latency",
			Help:    "Latency of suggestion lookups in seconds.",
			Buckets: []float64{.001, .002, .005, .01, .02, .05, .1, .2, .5, 1},
		}, []string{"endpoint", "cache_hit", "status"}),

		SuggestionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suggestion_requests_total",
			Help: "Total suggestion requests served.",
		}, []string{"endpoint", "status"}),

		CacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache operations by kind and outcome.",
		}, []string{"operation", "result"}),

		TriePhraseCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trie_phrase_count",
			Help: "Number of distinct phrases currently indexed.",
		}),
		TrieNodeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trie_node_count",
			Help: "Number of cached-top-k prefix nodes in the live trie.",
		}),
		TrieMaxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trie_max_depth",
			Help: "Maximum prefix depth (in runes) in the live trie.",
		}),

		AggregationBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregation_buffer_size",
			Help: "Number of distinct phrases currently buffered awaiting flush.",
		}),

		QueriesFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queries_filtered_total",
			Help: "Queries rejected by the quality/profanity filter, by reason.",
		}, []string{"reason"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current breaker state (0=closed, 1=open, 2=half_open).",
		}, []string{"name"}),
		CircuitBreakerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total times a breaker opened; incremented once per trip, not per failed call.",
		}, []string{"name"}),
		CircuitBreakerFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_fallbacks_total",
			Help: "Total fallback invocations by a breaker.",
		}, []string{"name"}),

		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "Total requests rejected by the rate limiter, by endpoint.",
		}, []string{"endpoint"}),

		IdempotencyDuplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_duplicates_total",
			Help: "Total requests short-circuited as duplicates, by operation.",
		}, []string{"operation"}),
		IdempotencyProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_processed_total",
			Help: "Total requests executed fresh under an idempotency key, by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		r.SuggestionLatency, r.SuggestionRequests, r.CacheOperations,
		r.TriePhraseCount, r.TrieNodeCount, r.TrieMaxDepth,
		r.AggregationBufferSize, r.QueriesFiltered,
		r.CircuitBreakerState, r.CircuitBreakerFailures, r.CircuitBreakerFallbacks,
		r.RateLimitHits, r.IdempotencyDuplicates, r.IdempotencyProcessed,
	)
	return r
}

// ObserveSuggestion records one suggestion request's latency and outcome.
func (r *Registry) ObserveSuggestion(endpoint string, cacheHit bool, status string, d time.Duration) {
	ch := "false"
	if cacheHit {
		ch = "true"
	}
	r.SuggestionLatency.WithLabelValues(endpoint, ch, status).Observe(d.Seconds())
	r.SuggestionRequests.WithLabelValues(endpoint, status).Inc()
}

// ObserveCacheOp records a cache get/set/invalidate outcome.
func (r *Registry) ObserveCacheOp(operation, result string) {
	r.CacheOperations.WithLabelValues(operation, result).Inc()
}

// SetTrieStats updates the trie_* gauges from a trie.Stats-shaped read.
func (r *Registry) SetTrieStats(phraseCount int64, nodeCount, maxDepth int) {
	r.TriePhraseCount.Set(float64(phraseCount))
	r.TrieNodeCount.Set(float64(nodeCount))
	r.TrieMaxDepth.Set(float64(maxDepth))
}

// SetAggregationBufferSize updates aggregation_buffer_size.
func (r *Registry) SetAggregationBufferSize(n int64) {
	r.AggregationBufferSize.Set(float64(n))
}

// ObserveFiltered increments queries_filtered_total{reason}.
func (r *Registry) ObserveFiltered(reason string) {
	r.QueriesFiltered.WithLabelValues(reason).Inc()
}

// ObserveRateLimitHit increments rate_limit_hits_total{endpoint}.
func (r *Registry) ObserveRateLimitHit(endpoint string) {
	r.RateLimitHits.WithLabelValues(endpoint).Inc()
}

// ObserveIdempotencyDuplicate / ObserveIdempotencyProcessed record the
// idempotency store's hit/miss outcome for an operation.
func (r *Registry) ObserveIdempotencyDuplicate(operation string) {
	r.IdempotencyDuplicates.WithLabelValues(operation).Inc()
}

func (r *Registry) ObserveIdempotencyProcessed(operation string) {
	r.IdempotencyProcessed.WithLabelValues(operation).Inc()
}

// breakerStateValue maps a breaker.State-shaped int to the gauge value
// documented on CircuitBreakerState (0=closed, 1=open, 2=half_open).
func breakerStateValue(state int) float64 {
	return float64(state)
}
