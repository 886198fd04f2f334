// Package toolkit wires the x402-over-Solana components — the verification
// orchestrator, the replay cache, the circuit breaker, the webhook manager,
// and the requirements quoter — into a single object embeddable in any HTTP
// server.
package toolkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CedrosPay/x402-solanatoolkit/internal/circuitbreaker"
	"github.com/CedrosPay/x402-solanatoolkit/internal/config"
	"github.com/CedrosPay/x402-solanatoolkit/internal/lifecycle"
	"github.com/CedrosPay/x402-solanatoolkit/internal/logger"
	"github.com/CedrosPay/x402-solanatoolkit/internal/metrics"
	"github.com/CedrosPay/x402-solanatoolkit/internal/replaycache"
	"github.com/CedrosPay/x402-solanatoolkit/internal/verify"
	"github.com/CedrosPay/x402-solanatoolkit/internal/webhook"
	"github.com/CedrosPay/x402-solanatoolkit/pkg/x402"

	"github.com/gagliardetto/solana-go/rpc"
)

// App aggregates the toolkit's components for reuse by any transport —
// the reference cmd/x402demo server, a test harness, or an embedding
// service that already has its own router.
type App struct {
	Config       *config.Config
	Orchestrator *verify.Orchestrator
	Quoter       *x402.Quoter
	Webhooks     *webhook.Manager
	Breaker      *circuitbreaker.Manager
	Metrics      *metrics.Metrics
	DeliveryLog  webhook.DeliveryLog

	cache     replaycache.Cache
	resources *lifecycle.Manager
}

// NewApp constructs every component from cfg. The shared store backend
// (memory, redis, postgres, or mongo) is selected by cfg.SharedStore.Backend
// and used for both the replay cache and — where a backing exists — the
// webhook retry queue.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("toolkit: config required")
	}

	logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "x402-solanatoolkit",
		Environment: cfg.Logging.Environment,
	})

	resources := lifecycle.NewManager()
	metricsCollector := metrics.New(prometheus.DefaultRegisterer)
	breaker := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)

	cache, queue, err := buildSharedStore(context.Background(), cfg, resources, metricsCollector)
	if err != nil {
		return nil, err
	}

	rpcClient := rpc.New(cfg.RPCURL)

	orchestrator, err := verify.New(verify.Config{
		RPCClient:   rpcClient,
		Cache:       cache,
		Breaker:     breaker,
		Metrics:     metricsCollector,
		Network:     cfg.Network,
		AssetCode:   cfg.AssetCode,
		Commitment:  cfg.Commitment,
		MaxAgeMs:    cfg.MaxPaymentAgeMs,
		BatchRPS:    cfg.BatchRPS,
	})
	if err != nil {
		return nil, fmt.Errorf("toolkit: build orchestrator: %w", err)
	}

	quoter, err := x402.NewQuoter(cfg.RecipientWalletAddress, cfg.Network, cfg.AssetCode)
	if err != nil {
		return nil, fmt.Errorf("toolkit: build quoter: %w", err)
	}

	var webhookLogger webhook.DeliveryLog
	if cfg.Logger.File != "" {
		fileLogger := webhook.NewFileDeliveryLogger(cfg.Logger.MaxEntries, cfg.Logger.File, msToDuration(cfg.Logger.FlushIntervalMs))
		resources.Register("webhook-logger", fileLogger)
		webhookLogger = fileLogger
	} else {
		webhookLogger = webhook.NewDeliveryLogger(cfg.Logger.MaxEntries)
	}

	webhookManager := webhook.NewManager(webhook.ManagerConfig{
		Queue:           queue,
		Logger:          webhookLogger,
		Metrics:         metricsCollector,
		FollowRedirects: cfg.Webhook.FollowRedirects,
		ProcessInterval: msToDuration(cfg.Webhook.ProcessIntervalMs),
	})
	resources.RegisterFunc("webhook-manager", func() error {
		return webhookManager.Close()
	})

	return &App{
		Config:       cfg,
		Orchestrator: orchestrator,
		Quoter:       quoter,
		Webhooks:     webhookManager,
		Breaker:      breaker,
		Metrics:      metricsCollector,
		DeliveryLog:  webhookLogger,
		cache:        cache,
		resources:    resources,
	}, nil
}

// Start launches background workers (currently just the webhook manager's
// retry loop). Call once after NewApp succeeds.
func (a *App) Start(ctx context.Context) {
	if a.Config.Webhook.Enabled {
		a.Webhooks.Start(ctx)
	}
}

// Close releases every resource NewApp registered, in reverse order.
func (a *App) Close() error {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Global().Warn().Err(err).Msg("toolkit: close replay cache")
		}
	}
	return a.resources.Close()
}

// buildSharedStore constructs the replay cache and webhook queue backings
// named by cfg.SharedStore.Backend. Redis and Postgres back both the replay
// cache and the webhook queue (see internal/webhook/queue_postgres.go for
// the Postgres webhook queue). Mongo backs only the replay cache; with that
// backend the webhook queue is the in-process MemoryQueue, so retries are
// not shared across instances.
func buildSharedStore(ctx context.Context, cfg *config.Config, resources *lifecycle.Manager, metricsCollector *metrics.Metrics) (replaycache.Cache, webhook.Queue, error) {
	switch cfg.SharedStore.Backend {
	case "redis":
		cache, err := replaycache.NewRedisCacheFromURL(ctx, cfg.SharedStoreURL, replaycache.DefaultKeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("toolkit: redis replay cache: %w", err)
		}
		opts, err := redis.ParseURL(cfg.SharedStoreURL)
		if err != nil {
			return nil, nil, fmt.Errorf("toolkit: parse redis url for webhook queue: %w", err)
		}
		queue := webhook.NewRedisQueue(redis.NewClient(opts), "")
		return cache, queue, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.SharedStore.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("toolkit: open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, nil, fmt.Errorf("toolkit: ping postgres: %w", err)
		}
		resources.RegisterFunc("postgres-db", func() error { return db.Close() })

		cache, err := replaycache.NewPostgresCache(db, cfg.SharedStore.PostgresCacheTable)
		if err != nil {
			return nil, nil, fmt.Errorf("toolkit: postgres replay cache: %w", err)
		}
		cache.WithMetrics(metricsCollector)
		queue, err := webhook.NewPostgresQueue(db, cfg.SharedStore.PostgresQueueTable)
		if err != nil {
			return nil, nil, fmt.Errorf("toolkit: postgres webhook queue: %w", err)
		}
		queue.WithMetrics(metricsCollector)
		return cache, queue, nil

	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.SharedStore.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("toolkit: connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			return nil, nil, fmt.Errorf("toolkit: ping mongo: %w", err)
		}
		resources.RegisterFunc("mongo-client", func() error { return client.Disconnect(ctx) })

		collection := client.Database(cfg.SharedStore.MongoDatabase).Collection(cfg.SharedStore.MongoCacheCollection)
		cache, err := replaycache.NewMongoCache(ctx, collection)
		if err != nil {
			return nil, nil, fmt.Errorf("toolkit: mongo replay cache: %w", err)
		}
		return cache, webhook.NewMemoryQueue(), nil

	default:
		return replaycache.NewMemoryCache(0), webhook.NewMemoryQueue(), nil
	}
}

// msToDuration converts a millisecond config value to a time.Duration,
// falling back to zero (the callee's own default) when unset.
func msToDuration(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
