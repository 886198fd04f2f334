package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the toolkit.
type Metrics struct {
	// Verification metrics
	VerificationsTotal   *prometheus.CounterVec
	VerificationOutcome  *prometheus.CounterVec
	VerificationDuration *prometheus.HistogramVec

	// RPC call metrics
	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec
	RPCErrorsTotal  *prometheus.CounterVec

	// Replay cache metrics
	ReplayCacheHitsTotal   *prometheus.CounterVec
	ReplayCacheMissesTotal *prometheus.CounterVec

	// Webhook metrics
	WebhooksTotal       *prometheus.CounterVec
	WebhookRetriesTotal *prometheus.CounterVec
	WebhookDuration     *prometheus.HistogramVec
	WebhookQueueDepth   prometheus.Gauge

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_verifications_total",
				Help: "Total number of payment verification attempts",
			},
			[]string{"network", "asset"},
		),
		VerificationOutcome: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_verification_outcome_total",
				Help: "Verification outcomes by result code",
			},
			[]string{"network", "asset", "code"},
		),
		VerificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_verification_duration_seconds",
				Help:    "Time taken to verify a payment (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"network", "asset"},
		),

		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_rpc_calls_total",
				Help: "Total number of RPC calls to the Solana network",
			},
			[]string{"method", "network"},
		),
		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_rpc_call_duration_seconds",
				Help:    "Duration of RPC calls to the Solana network (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "network"},
		),
		RPCErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_rpc_errors_total",
				Help: "Total number of RPC errors",
			},
			[]string{"method", "network", "error_type"},
		),

		ReplayCacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_replay_cache_hits_total",
				Help: "Total number of replay cache lookups that found a previously used signature",
			},
			[]string{"backend"},
		),
		ReplayCacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_replay_cache_misses_total",
				Help: "Total number of replay cache lookups that found no prior use",
			},
			[]string{"backend"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_webhooks_total",
				Help: "Total number of webhook deliveries",
			},
			[]string{"event", "status"},
		),
		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_webhook_retries_total",
				Help: "Total number of webhook retry attempts",
			},
			[]string{"event", "attempt"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_webhook_duration_seconds",
				Help:    "Time taken for a single webhook delivery attempt",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"event"},
		),
		WebhookQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "x402_webhook_queue_depth",
				Help: "Number of deliveries currently queued for retry",
			},
		),

		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "x402_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limit_type", "identifier"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_db_query_duration_seconds",
				Help:    "Database query duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
	}
}

// ObserveVerification records a verification attempt and its outcome.
func (m *Metrics) ObserveVerification(network, asset, code string, duration time.Duration) {
	m.VerificationsTotal.WithLabelValues(network, asset).Inc()
	m.VerificationOutcome.WithLabelValues(network, asset, code).Inc()
	m.VerificationDuration.WithLabelValues(network, asset).Observe(duration.Seconds())
}

// ObserveRPCCall records an RPC call to the Solana network.
func (m *Metrics) ObserveRPCCall(method, network string, duration time.Duration, err error) {
	m.RPCCallsTotal.WithLabelValues(method, network).Inc()
	m.RPCCallDuration.WithLabelValues(method, network).Observe(duration.Seconds())

	if err != nil {
		m.RPCErrorsTotal.WithLabelValues(method, network, classifyError(err.Error())).Inc()
	}
}

// ObserveReplayCache records a replay cache lookup outcome.
func (m *Metrics) ObserveReplayCache(backend string, hit bool) {
	if hit {
		m.ReplayCacheHitsTotal.WithLabelValues(backend).Inc()
	} else {
		m.ReplayCacheMissesTotal.WithLabelValues(backend).Inc()
	}
}

// ObserveWebhook records a single webhook delivery attempt.
func (m *Metrics) ObserveWebhook(event, status string, duration time.Duration, attempt int) {
	m.WebhooksTotal.WithLabelValues(event, status).Inc()
	m.WebhookDuration.WithLabelValues(event).Observe(duration.Seconds())
	if attempt > 1 {
		m.WebhookRetriesTotal.WithLabelValues(event, formatAttempt(attempt)).Inc()
	}
}

// SetWebhookQueueDepth reports the current retry queue size.
func (m *Metrics) SetWebhookQueueDepth(depth int) {
	m.WebhookQueueDepth.Set(float64(depth))
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType, identifier string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType, identifier).Inc()
}

// SetCircuitBreakerState reports a breaker's current state as a gauge value.
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// ObserveDBQuery records a database query duration.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

func classifyError(errStr string) string {
	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "timeout"):
		return "timeout"
	case strings.Contains(lower, "rate limit"):
		return "rate_limit"
	case strings.Contains(lower, "connection"):
		return "connection"
	case strings.Contains(lower, "not found"):
		return "not_found"
	default:
		return "other"
	}
}

func formatAttempt(attempt int) string {
	if attempt <= 5 {
		return string(rune('0' + attempt))
	}
	return "5+"
}
