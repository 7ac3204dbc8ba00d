package metrics

import "github.com/prometheus/client_golang/prometheus"

// Service-level Prometheus metrics: embedding provider, retrieval gate,
// rate limiting.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annai",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "annai",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annai",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"model", "type"},
	)

	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annai",
			Name:      "chat_requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"model", "status"},
	)

	AskOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annai",
			Name:      "ask_outcomes_total",
			Help:      "Retrieval gate decisions per outcome",
		},
		[]string{"outcome"}, // "answered" / "fallback_not_ready" / "fallback_no_hits" / "fallback_low_score"
	)

	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "annai",
			Name:      "rate_limit_decisions_total",
			Help:      "Admission control decisions",
		},
		[]string{"decision"}, // "admitted" / "denied"
	)
)

var serviceMetricsRegistered bool

// RegisterServiceMetrics registers Prometheus service metrics. Must be called once from main.
func RegisterServiceMetrics() {
	if serviceMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(ChatRequestsTotal)
	prometheus.MustRegister(AskOutcomesTotal)
	prometheus.MustRegister(RateLimitDecisionsTotal)
	serviceMetricsRegistered = true
}
