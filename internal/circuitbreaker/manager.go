package circuitbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/CedrosPay/x402-solanatoolkit/internal/config"
	"github.com/CedrosPay/x402-solanatoolkit/internal/logger"
	"github.com/CedrosPay/x402-solanatoolkit/internal/metrics"
)

// ServiceType identifies an external service for circuit breaker isolation.
// Each gets its own breaker so a degraded RPC endpoint doesn't trip webhook
// delivery and vice versa.
type ServiceType string

const (
	ServiceSolanaRPC ServiceType = "solana_rpc"
	ServiceWebhook   ServiceType = "webhook"
)

// Manager holds one circuit breaker per ServiceType.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	config   Config
}

// Config holds circuit breaker configuration for every service this toolkit
// calls out to.
type Config struct {
	Enabled   bool
	SolanaRPC BreakerConfig
	Webhook   BreakerConfig
}

// BreakerConfig configures a single circuit breaker.
type BreakerConfig struct {
	// MaxRequests is how many requests are allowed through while half-open.
	MaxRequests uint32
	// Interval is the period in closed state after which counts reset. Zero
	// never resets.
	Interval time.Duration
	// Timeout is how long the breaker stays open before trying half-open.
	Timeout time.Duration

	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// NewManager builds a Manager from cfg. When cfg.Enabled is false every
// Execute call passes through unbroken.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		config:   cfg,
	}
	if !cfg.Enabled {
		return m
	}
	m.breakers[ServiceSolanaRPC] = gobreaker.NewCircuitBreaker(toGobreakerSettings(string(ServiceSolanaRPC), cfg.SolanaRPC))
	m.breakers[ServiceWebhook] = gobreaker.NewCircuitBreaker(toGobreakerSettings(string(ServiceWebhook), cfg.Webhook))
	return m
}

// NewManagerFromConfig adapts the toolkit's config.CircuitBreakerConfig into
// a Manager.
func NewManagerFromConfig(cfg config.CircuitBreakerConfig) *Manager {
	return NewManager(Config{
		Enabled:   cfg.Enabled,
		SolanaRPC: toBreakerConfig(cfg.SolanaRPC),
		Webhook:   toBreakerConfig(cfg.Webhook),
	})
}

func toBreakerConfig(cfg config.BreakerServiceConfig) BreakerConfig {
	return BreakerConfig{
		MaxRequests:         cfg.MaxRequests,
		Interval:            cfg.Interval.Duration,
		Timeout:             cfg.Timeout.Duration,
		ConsecutiveFailures: cfg.ConsecutiveFailures,
		FailureRatio:        cfg.FailureRatio,
		MinRequests:         cfg.MinRequests,
	}
}

// Execute wraps fn with circuit breaker protection for the given service.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if !m.config.Enabled {
		return fn()
	}
	breaker, ok := m.breakers[service]
	if !ok {
		return fn()
	}
	return breaker.Execute(fn)
}

// ExecuteContext is a generic variant of Execute for use alongside the retry
// engine, which is itself generic over T.
func ExecuteContext[T any](ctx context.Context, m *Manager, service ServiceType, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := m.Execute(service, func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// State returns the current breaker state, or "disabled"/"not_configured".
func (m *Manager) State(service ServiceType) string {
	if !m.config.Enabled {
		return "disabled"
	}
	breaker, ok := m.breakers[service]
	if !ok {
		return "not_configured"
	}
	return breaker.State().String()
}

// ReportMetrics publishes every configured breaker's current state as a
// gauge (0=closed, 1=half-open, 2=open).
func (m *Manager) ReportMetrics(mx *metrics.Metrics) {
	if mx == nil || !m.config.Enabled {
		return
	}
	for service := range m.breakers {
		mx.SetCircuitBreakerState(string(service), stateValue(m.State(service)))
	}
}

func stateValue(state string) int {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// Counts returns the current request counters for a breaker.
func (m *Manager) Counts(service ServiceType) Counts {
	if !m.config.Enabled {
		return Counts{}
	}
	breaker, ok := m.breakers[service]
	if !ok {
		return Counts{}
	}
	c := breaker.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// Counts mirrors gobreaker.Counts without leaking the dependency into
// callers that only need the numbers.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func toGobreakerSettings(name string, cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 && counts.Requests >= cfg.MinRequests {
				failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
				if failureRate >= cfg.FailureRatio {
					return true
				}
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Global().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
}

// DefaultConfig returns sensible defaults for both breakers.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		SolanaRPC: BreakerConfig{
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         10,
		},
		Webhook: BreakerConfig{
			MaxRequests:         5,
			Interval:            60 * time.Second,
			Timeout:             60 * time.Second,
			ConsecutiveFailures: 10,
			FailureRatio:        0.7,
			MinRequests:         20,
		},
	}
}
