package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
// An empty path skips file parsing and uses defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with the defaults named in this toolkit's
// external interface: maxPaymentAgeMs 300000, commitment confirmed,
// maxRetries 3, retryBaseDelayMs 100, webhook.processIntervalMs 1000,
// webhook.defaultTimeoutMs 5000, logger.maxEntries 1000.
func defaultConfig() *Config {
	return &Config{
		Network:          "mainnet-beta",
		RPCURL:           "https://api.mainnet-beta.solana.com",
		AssetCode:        "USDC",
		MaxPaymentAgeMs:  300000,
		Commitment:       "confirmed",
		MaxRetries:       3,
		RetryBaseDelayMs: 100,
		Webhook: WebhookConfig{
			Enabled:           true,
			ProcessIntervalMs: 1000,
			DefaultTimeoutMs:  5000,
		},
		Logger: WebhookLoggerConfig{
			MaxEntries: 1000,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Environment: "production",
		},
		SharedStore: SharedStoreConfig{
			Backend:              "memory",
			PostgresCacheTable:   "x402_replay_cache",
			PostgresQueueTable:   "x402_webhook_queue",
			MongoDatabase:        "x402",
			MongoCacheCollection: "replay_cache",
		},
		Server: ServerConfig{
			Addr: ":8402",
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			SolanaRPC: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
			Webhook: BreakerServiceConfig{
				MaxRequests:         5,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 60 * time.Second},
				ConsecutiveFailures: 10,
				FailureRatio:        0.7,
				MinRequests:         20,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
