package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config aggregates every component's configuration from a YAML file and
// environment variable overrides. Components each take their own sub-struct
// rather than the whole Config, so the orchestrator, the quoter, and the
// webhook manager can be constructed independently of this package.
type Config struct {
	RPCURL                 string `yaml:"rpc_url"`
	Network                string `yaml:"network"`
	RecipientWalletAddress string `yaml:"recipient_wallet_address"`
	AssetCode              string `yaml:"asset_code"`
	SharedStoreURL         string `yaml:"shared_store_url"`

	MaxPaymentAgeMs  int64  `yaml:"max_payment_age_ms"`
	Commitment       string `yaml:"commitment"`
	MaxRetries       int    `yaml:"max_retries"`
	RetryBaseDelayMs int64  `yaml:"retry_base_delay_ms"`
	// BatchRPS caps VerifyBatch's outbound RPC rate. Zero disables pacing.
	BatchRPS int `yaml:"batch_rps"`

	Webhook        WebhookConfig        `yaml:"webhook"`
	Logger         WebhookLoggerConfig  `yaml:"logger"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	SharedStore    SharedStoreConfig    `yaml:"shared_store"`
	Server         ServerConfig         `yaml:"server"`

	Debug bool `yaml:"debug"`
}

// SharedStoreConfig selects and configures the backing store used by the
// replay cache and the webhook retry queue when running more than one
// instance of the toolkit against the same state.
type SharedStoreConfig struct {
	// Backend is one of "memory" (default, single-instance only), "redis",
	// "postgres", or "mongo".
	Backend string `yaml:"backend"`

	// There is no separate Redis field: when Backend is "redis", the Redis
	// URL is read from the top-level SharedStoreURL (shared_store_url).

	PostgresDSN        string `yaml:"postgres_dsn"`
	PostgresCacheTable string `yaml:"postgres_cache_table"`
	PostgresQueueTable string `yaml:"postgres_queue_table"`

	MongoURI              string `yaml:"mongo_uri"`
	MongoDatabase         string `yaml:"mongo_database"`
	MongoCacheCollection  string `yaml:"mongo_cache_collection"`
}

// ServerConfig configures the reference HTTP demonstration server
// (cmd/x402demo) that exercises the orchestrator end-to-end.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebhookConfig configures the webhook delivery manager.
type WebhookConfig struct {
	Enabled           bool  `yaml:"enabled"`
	ProcessIntervalMs int64 `yaml:"process_interval_ms"`
	DefaultTimeoutMs  int64 `yaml:"default_timeout_ms"`
	FollowRedirects   bool  `yaml:"follow_redirects"`
}

// WebhookLoggerConfig configures the bounded delivery log.
type WebhookLoggerConfig struct {
	MaxEntries      int    `yaml:"max_entries"`
	File            string `yaml:"file"`
	FlushIntervalMs int64  `yaml:"flush_interval_ms"`
}

// LoggingConfig holds structured application logging configuration,
// independent of the webhook delivery log above.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Environment string `yaml:"environment"`
}

// CircuitBreakerConfig holds circuit breaker configuration for external
// services this toolkit calls out to.
type CircuitBreakerConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	SolanaRPC BreakerServiceConfig `yaml:"solana_rpc"`
	Webhook   BreakerServiceConfig `yaml:"webhook"`
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}
