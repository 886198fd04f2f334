package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration. All env
// vars use the X402_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	setIfEnv(&c.RPCURL, "X402_RPC_URL")
	setIfEnv(&c.Network, "X402_NETWORK")
	setIfEnv(&c.RecipientWalletAddress, "X402_RECIPIENT_WALLET_ADDRESS")
	setIfEnv(&c.AssetCode, "X402_ASSET_CODE")
	setIfEnv(&c.SharedStoreURL, "X402_SHARED_STORE_URL")
	setIfEnv(&c.Commitment, "X402_COMMITMENT")
	setInt64IfEnv(&c.MaxPaymentAgeMs, "X402_MAX_PAYMENT_AGE_MS")
	setIntIfEnv(&c.MaxRetries, "X402_MAX_RETRIES")
	setInt64IfEnv(&c.RetryBaseDelayMs, "X402_RETRY_BASE_DELAY_MS")
	setIntIfEnv(&c.BatchRPS, "X402_BATCH_RPS")
	setBoolIfEnv(&c.Debug, "X402_DEBUG")

	setIfEnv(&c.SharedStore.Backend, "X402_SHARED_STORE_BACKEND")
	setIfEnv(&c.SharedStore.PostgresDSN, "X402_POSTGRES_DSN")
	setIfEnv(&c.SharedStore.PostgresCacheTable, "X402_POSTGRES_CACHE_TABLE")
	setIfEnv(&c.SharedStore.PostgresQueueTable, "X402_POSTGRES_QUEUE_TABLE")
	setIfEnv(&c.SharedStore.MongoURI, "X402_MONGO_URI")
	setIfEnv(&c.SharedStore.MongoDatabase, "X402_MONGO_DATABASE")
	setIfEnv(&c.SharedStore.MongoCacheCollection, "X402_MONGO_CACHE_COLLECTION")

	setIfEnv(&c.Server.Addr, "X402_SERVER_ADDR")
	setCSVIfEnv(&c.Server.AllowedOrigins, "X402_SERVER_ALLOWED_ORIGINS")

	setBoolIfEnv(&c.Webhook.Enabled, "X402_WEBHOOK_ENABLED")
	setInt64IfEnv(&c.Webhook.ProcessIntervalMs, "X402_WEBHOOK_PROCESS_INTERVAL_MS")
	setInt64IfEnv(&c.Webhook.DefaultTimeoutMs, "X402_WEBHOOK_DEFAULT_TIMEOUT_MS")
	setBoolIfEnv(&c.Webhook.FollowRedirects, "X402_WEBHOOK_FOLLOW_REDIRECTS")

	setIntIfEnv(&c.Logger.MaxEntries, "X402_LOGGER_MAX_ENTRIES")
	setIfEnv(&c.Logger.File, "X402_LOGGER_FILE")
	setInt64IfEnv(&c.Logger.FlushIntervalMs, "X402_LOGGER_FLUSH_INTERVAL_MS")

	setIfEnv(&c.Logging.Level, "X402_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "X402_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "X402_LOG_ENVIRONMENT")

	setBoolIfEnv(&c.CircuitBreaker.Enabled, "X402_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setCSVIfEnv sets a string slice from a comma-separated environment
// variable, trimming whitespace around each element.
func setCSVIfEnv(target *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*target = out
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setIntIfEnv sets an int pointer from an environment variable.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setInt64IfEnv sets an int64 pointer from an environment variable.
func setInt64IfEnv(target *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}
