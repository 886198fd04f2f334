package config

import (
	"os"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
)

var configEnvVars = []string{
	"X402_RPC_URL", "X402_NETWORK", "X402_RECIPIENT_WALLET_ADDRESS", "X402_ASSET_CODE",
	"X402_SHARED_STORE_URL", "X402_COMMITMENT", "X402_MAX_PAYMENT_AGE_MS", "X402_MAX_RETRIES",
	"X402_RETRY_BASE_DELAY_MS", "X402_DEBUG", "X402_WEBHOOK_ENABLED", "X402_WEBHOOK_PROCESS_INTERVAL_MS",
	"X402_WEBHOOK_DEFAULT_TIMEOUT_MS", "X402_WEBHOOK_FOLLOW_REDIRECTS", "X402_LOGGER_MAX_ENTRIES",
	"X402_LOGGER_FILE", "X402_LOGGER_FLUSH_INTERVAL_MS", "X402_LOG_LEVEL", "X402_LOG_FORMAT",
	"X402_LOG_ENVIRONMENT", "X402_CIRCUIT_BREAKER_ENABLED", "X402_BATCH_RPS",
	"X402_SHARED_STORE_BACKEND", "X402_POSTGRES_DSN", "X402_POSTGRES_CACHE_TABLE",
	"X402_POSTGRES_QUEUE_TABLE", "X402_MONGO_URI", "X402_MONGO_DATABASE",
	"X402_MONGO_CACHE_COLLECTION", "X402_SERVER_ADDR", "X402_SERVER_ALLOWED_ORIGINS",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvVars {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range configEnvVars {
			os.Unsetenv(k)
		}
	})
}

func testWallet(t *testing.T) string {
	t.Helper()
	return solana.NewWallet().PublicKey().String()
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	clearConfigEnv(t)
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when recipient_wallet_address is missing")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearConfigEnv(t)
	os.Setenv("X402_RECIPIENT_WALLET_ADDRESS", testWallet(t))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxPaymentAgeMs != 300000 {
		t.Errorf("MaxPaymentAgeMs = %d, want 300000", cfg.MaxPaymentAgeMs)
	}
	if cfg.Commitment != "confirmed" {
		t.Errorf("Commitment = %q, want confirmed", cfg.Commitment)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelayMs != 100 {
		t.Errorf("RetryBaseDelayMs = %d, want 100", cfg.RetryBaseDelayMs)
	}
	if cfg.Webhook.ProcessIntervalMs != 1000 {
		t.Errorf("Webhook.ProcessIntervalMs = %d, want 1000", cfg.Webhook.ProcessIntervalMs)
	}
	if cfg.Webhook.DefaultTimeoutMs != 5000 {
		t.Errorf("Webhook.DefaultTimeoutMs = %d, want 5000", cfg.Webhook.DefaultTimeoutMs)
	}
	if cfg.Logger.MaxEntries != 1000 {
		t.Errorf("Logger.MaxEntries = %d, want 1000", cfg.Logger.MaxEntries)
	}
	if cfg.AssetCode != "USDC" {
		t.Errorf("AssetCode = %q, want USDC", cfg.AssetCode)
	}
}

func TestLoad_RejectsInvalidRecipientAddress(t *testing.T) {
	clearConfigEnv(t)
	os.Setenv("X402_RECIPIENT_WALLET_ADDRESS", "not-a-valid-address")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "recipient_wallet_address") {
		t.Fatalf("expected invalid recipient_wallet_address error, got %v", err)
	}
}

func TestLoad_RejectsInvalidCommitment(t *testing.T) {
	clearConfigEnv(t)
	os.Setenv("X402_RECIPIENT_WALLET_ADDRESS", testWallet(t))
	os.Setenv("X402_COMMITMENT", "bogus")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "commitment") {
		t.Fatalf("expected invalid commitment error, got %v", err)
	}
}

func TestLoad_RejectsInvalidSharedStoreURL(t *testing.T) {
	clearConfigEnv(t)
	os.Setenv("X402_RECIPIENT_WALLET_ADDRESS", testWallet(t))
	os.Setenv("X402_SHARED_STORE_URL", "://not a url")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "shared_store_url") {
		t.Fatalf("expected invalid shared_store_url error, got %v", err)
	}
}

func TestLoad_RejectsUnknownSharedStoreBackend(t *testing.T) {
	clearConfigEnv(t)
	os.Setenv("X402_RECIPIENT_WALLET_ADDRESS", testWallet(t))
	os.Setenv("X402_SHARED_STORE_BACKEND", "dynamodb")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "shared_store.backend") {
		t.Fatalf("expected invalid shared_store.backend error, got %v", err)
	}
}

func TestLoad_RejectsPostgresBackendWithoutDSN(t *testing.T) {
	clearConfigEnv(t)
	os.Setenv("X402_RECIPIENT_WALLET_ADDRESS", testWallet(t))
	os.Setenv("X402_SHARED_STORE_BACKEND", "postgres")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Fatalf("expected missing postgres_dsn error, got %v", err)
	}
}

func TestLoad_DefaultsToMemoryBackend(t *testing.T) {
	clearConfigEnv(t)
	os.Setenv("X402_RECIPIENT_WALLET_ADDRESS", testWallet(t))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SharedStore.Backend != "memory" {
		t.Errorf("SharedStore.Backend = %q, want memory", cfg.SharedStore.Backend)
	}
	if cfg.Server.Addr != ":8402" {
		t.Errorf("Server.Addr = %q, want :8402", cfg.Server.Addr)
	}
}
