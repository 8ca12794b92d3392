// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the swap engine.
type Metrics struct {
	// Quote metrics
	QuoteRequestsIssued  prometheus.Counter
	QuoteResponsesUsed   prometheus.Counter
	QuoteResponsesStale  prometheus.Counter
	QuoteFailures        prometheus.Counter
	QuoteDebounceResets  prometheus.Counter
	QuoteFetchLatency    prometheus.Histogram

	// Swap metrics
	SwapAttempts        *prometheus.CounterVec
	SwapStepLatency     *prometheus.HistogramVec
	ConfirmationTimeout prometheus.Counter

	// Security metrics
	GateVerdicts     *prometheus.CounterVec
	RateLimitDenials prometheus.Counter

	// Upstream metrics
	AggregatorLatency *prometheus.HistogramVec
	RPCLatency        *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solswap"
	}

	return &Metrics{
		QuoteRequestsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "requests_issued_total",
			Help:      "Quote requests actually sent upstream after debounce",
		}),
		QuoteResponsesUsed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "responses_used_total",
			Help:      "Quote responses applied to visible state",
		}),
		QuoteResponsesStale: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "responses_stale_total",
			Help:      "Quote responses dropped because the intent changed",
		}),
		QuoteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "failures_total",
			Help:      "Quote fetches that failed upstream",
		}),
		QuoteDebounceResets: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "debounce_resets_total",
			Help:      "Debounce timer resets caused by intent changes",
		}),
		QuoteFetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "fetch_latency_seconds",
			Help:      "End-to-end quote fetch latency",
			Buckets:   prometheus.DefBuckets,
		}),

		SwapAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "attempts_total",
			Help:      "Swap attempts by terminal status",
		}, []string{"status"}),
		SwapStepLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "step_latency_seconds",
			Help:      "Latency of each executor step",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		ConfirmationTimeout: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "confirmation_timeouts_total",
			Help:      "Submitted transactions whose confirmation was not observed in time",
		}),

		GateVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "gate_verdicts_total",
			Help:      "Security gate evaluations by verdict",
		}, []string{"verdict", "operation"}),
		RateLimitDenials: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "rate_limit_denials_total",
			Help:      "Operations denied by the per-identity rate limit",
		}),

		AggregatorLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "request_latency_seconds",
			Help:      "Aggregator HTTP request latency by endpoint",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Ledger RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the process-wide metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordQuoteIssued increments the issued-request counter.
func RecordQuoteIssued() {
	DefaultMetrics.QuoteRequestsIssued.Inc()
}

// RecordQuoteUsed increments the applied-response counter.
func RecordQuoteUsed() {
	DefaultMetrics.QuoteResponsesUsed.Inc()
}

// RecordQuoteStale increments the dropped-stale-response counter.
func RecordQuoteStale() {
	DefaultMetrics.QuoteResponsesStale.Inc()
}

// RecordQuoteFailure increments the quote failure counter.
func RecordQuoteFailure() {
	DefaultMetrics.QuoteFailures.Inc()
}

// RecordSwapAttempt records an attempt reaching a terminal-ish status.
func RecordSwapAttempt(status string) {
	DefaultMetrics.SwapAttempts.WithLabelValues(status).Inc()
}

// RecordGateVerdict records a gate evaluation outcome.
func RecordGateVerdict(verdict, operation string) {
	DefaultMetrics.GateVerdicts.WithLabelValues(verdict, operation).Inc()
}

// RecordAggregatorLatency records one aggregator request.
func RecordAggregatorLatency(endpoint string, seconds float64) {
	DefaultMetrics.AggregatorLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordRPCLatency records one ledger RPC call.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCLatency.WithLabelValues(method).Observe(seconds)
}
