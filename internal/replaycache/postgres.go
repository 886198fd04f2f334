package replaycache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/CedrosPay/x402-solanatoolkit/internal/metrics"
)

// PostgresCache is the shared-store replay cache backing for deployments
// that already run Postgres and would rather not stand up Redis just for
// replay tracking. Expiry is enforced with a consumed_at/expires_at column
// pair instead of a native TTL — IsUsed and GetMeta filter on expires_at,
// and a caller-driven sweep (PurgeExpired) reclaims rows.
type PostgresCache struct {
	db        *sql.DB
	ownsDB    bool
	tableName string
	metrics   *metrics.Metrics
}

// WithMetrics attaches a metrics collector that IsUsed and MarkUsed report
// their query durations to. Returns c for chaining at construction time.
func (c *PostgresCache) WithMetrics(m *metrics.Metrics) *PostgresCache {
	c.metrics = m
	return c
}

// NewPostgresCache wraps an existing *sql.DB. The caller owns the
// connection's lifecycle; Close is a no-op on it.
func NewPostgresCache(db *sql.DB, tableName string) (*PostgresCache, error) {
	if tableName == "" {
		tableName = "x402_replay_cache"
	}
	c := &PostgresCache{db: db, tableName: tableName}
	if err := c.createTable(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewPostgresCacheFromDSN opens and owns a new connection pool.
func NewPostgresCacheFromDSN(dsn, tableName string) (*PostgresCache, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	c, err := NewPostgresCache(db, tableName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.ownsDB = true
	return c, nil
}

func (c *PostgresCache) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			signature      TEXT PRIMARY KEY,
			recipient      TEXT NOT NULL,
			amount         BIGINT NOT NULL,
			payer          TEXT NOT NULL DEFAULT '',
			consumed_at_ms BIGINT NOT NULL,
			expires_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at);
	`, c.tableName, c.tableName, c.tableName)
	_, err := c.db.Exec(query)
	return err
}

// IsUsed reports whether signature has a live (unexpired) entry.
func (c *PostgresCache) IsUsed(ctx context.Context, signature string) (bool, error) {
	defer metrics.MeasureDBQuery(c.metrics, "replaycache_is_used", "postgres")()
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE signature = $1 AND expires_at > now())`, c.tableName)
	var exists bool
	if err := c.db.QueryRowContext(ctx, query, signature).Scan(&exists); err != nil {
		return false, fmt.Errorf("check replay cache: %w", err)
	}
	return exists, nil
}

// MarkUsed inserts the signature, or refreshes it if a prior entry expired.
func (c *PostgresCache) MarkUsed(ctx context.Context, signature string, meta Meta, ttl time.Duration) error {
	defer metrics.MeasureDBQuery(c.metrics, "replaycache_mark_used", "postgres")()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (signature, recipient, amount, payer, consumed_at_ms, expires_at)
		VALUES ($1, $2, $3, $4, $5, now() + $6::interval)
		ON CONFLICT (signature) DO UPDATE
		SET recipient = EXCLUDED.recipient,
		    amount = EXCLUDED.amount,
		    payer = EXCLUDED.payer,
		    consumed_at_ms = EXCLUDED.consumed_at_ms,
		    expires_at = EXCLUDED.expires_at
		WHERE %s.expires_at <= now()
	`, c.tableName, c.tableName)

	result, err := c.db.ExecContext(ctx, query,
		signature, meta.Recipient, meta.Amount, meta.Payer, meta.ConsumedAtMs,
		fmt.Sprintf("%d seconds", int64(ttl.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("mark replay cache entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("x402: signature already consumed")
	}
	return nil
}

// GetMeta retrieves the stored metadata for a still-live signature.
func (c *PostgresCache) GetMeta(ctx context.Context, signature string) (Meta, bool, error) {
	query := fmt.Sprintf(`
		SELECT recipient, amount, payer, consumed_at_ms
		FROM %s
		WHERE signature = $1 AND expires_at > now()
	`, c.tableName)

	var meta Meta
	err := c.db.QueryRowContext(ctx, query, signature).Scan(&meta.Recipient, &meta.Amount, &meta.Payer, &meta.ConsumedAtMs)
	if err == sql.ErrNoRows {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, fmt.Errorf("query replay cache entry: %w", err)
	}
	return meta, true, nil
}

// Clear truncates the table. Intended for tests and maintenance tooling.
func (c *PostgresCache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`TRUNCATE TABLE %s`, c.tableName))
	return err
}

// PurgeExpired deletes rows past their expiry and returns how many were
// removed. Postgres has no native TTL, so callers should run this
// periodically (e.g. from a background ticker) instead of relying on reads
// alone to bound table growth.
func (c *PostgresCache) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= now()`, c.tableName))
	if err != nil {
		return 0, fmt.Errorf("purge expired replay cache entries: %w", err)
	}
	return result.RowsAffected()
}

// Close releases the underlying connection if this cache opened it.
func (c *PostgresCache) Close() error {
	if !c.ownsDB {
		return nil
	}
	return c.db.Close()
}
