package config

import (
	"fmt"
	"net/url"
	"strings"

	xsol "github.com/CedrosPay/x402-solanatoolkit/pkg/x402/solana"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.MaxPaymentAgeMs <= 0 {
		c.MaxPaymentAgeMs = 300000
	}
	if c.Commitment == "" {
		c.Commitment = "confirmed"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelayMs <= 0 {
		c.RetryBaseDelayMs = 100
	}
	if c.Webhook.ProcessIntervalMs <= 0 {
		c.Webhook.ProcessIntervalMs = 1000
	}
	if c.Webhook.DefaultTimeoutMs <= 0 {
		c.Webhook.DefaultTimeoutMs = 5000
	}
	if c.Logger.MaxEntries <= 0 {
		c.Logger.MaxEntries = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.AssetCode == "" {
		c.AssetCode = "USDC"
	}

	if c.RPCURL == "" {
		return fmt.Errorf("config: rpc_url is required")
	}
	if c.Network == "" {
		return fmt.Errorf("config: network is required")
	}
	if c.RecipientWalletAddress == "" {
		return fmt.Errorf("config: recipient_wallet_address is required")
	}
	if err := xsol.ValidateAddress(c.RecipientWalletAddress); err != nil {
		return fmt.Errorf("config: invalid recipient_wallet_address: %w", err)
	}
	switch strings.ToLower(c.Commitment) {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("config: commitment must be one of processed, confirmed, finalized, got %q", c.Commitment)
	}
	if c.SharedStoreURL != "" {
		if _, err := url.Parse(c.SharedStoreURL); err != nil {
			return fmt.Errorf("config: invalid shared_store_url: %w", err)
		}
	}
	if c.SharedStore.Backend == "" {
		c.SharedStore.Backend = "memory"
	}
	switch strings.ToLower(c.SharedStore.Backend) {
	case "memory", "redis", "postgres", "mongo":
	default:
		return fmt.Errorf("config: shared_store.backend must be one of memory, redis, postgres, mongo, got %q", c.SharedStore.Backend)
	}
	if strings.ToLower(c.SharedStore.Backend) == "postgres" && c.SharedStore.PostgresDSN == "" {
		return fmt.Errorf("config: shared_store.postgres_dsn is required when shared_store.backend is postgres")
	}
	if strings.ToLower(c.SharedStore.Backend) == "mongo" && c.SharedStore.MongoURI == "" {
		return fmt.Errorf("config: shared_store.mongo_uri is required when shared_store.backend is mongo")
	}
	if strings.ToLower(c.SharedStore.Backend) == "redis" && c.SharedStoreURL == "" {
		return fmt.Errorf("config: shared_store_url is required when shared_store.backend is redis")
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8402"
	}

	return nil
}
