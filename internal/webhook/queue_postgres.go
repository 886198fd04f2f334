package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/CedrosPay/x402-solanatoolkit/internal/metrics"
)

// PostgresQueue is the shared-store queue backing for deployments that
// already run Postgres: one row per queued delivery, polled by
// next_attempt_at_ms the same way RedisQueue polls its sorted set.
type PostgresQueue struct {
	db        *sql.DB
	ownsDB    bool
	tableName string
	metrics   *metrics.Metrics
}

// WithMetrics attaches a metrics collector that Dequeue reports its query
// duration to. Returns q for chaining at construction time.
func (q *PostgresQueue) WithMetrics(m *metrics.Metrics) *PostgresQueue {
	q.metrics = m
	return q
}

// NewPostgresQueue wraps an existing *sql.DB.
func NewPostgresQueue(db *sql.DB, tableName string) (*PostgresQueue, error) {
	if tableName == "" {
		tableName = "x402_webhook_queue"
	}
	q := &PostgresQueue{db: db, tableName: tableName}
	if err := q.createTable(); err != nil {
		return nil, err
	}
	return q, nil
}

// NewPostgresQueueFromDSN opens and owns a new connection pool.
func NewPostgresQueueFromDSN(dsn, tableName string) (*PostgresQueue, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	q, err := NewPostgresQueue(db, tableName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	q.ownsDB = true
	return q, nil
}

func (q *PostgresQueue) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                  TEXT PRIMARY KEY,
			next_attempt_at_ms  BIGINT NOT NULL,
			body                JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_ready ON %s(next_attempt_at_ms);
	`, q.tableName, q.tableName, q.tableName)
	_, err := q.db.Exec(query)
	return err
}

func (q *PostgresQueue) Enqueue(ctx context.Context, item QueuedDelivery) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queued delivery: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, next_attempt_at_ms, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET next_attempt_at_ms = EXCLUDED.next_attempt_at_ms,
		    body = EXCLUDED.body
	`, q.tableName)
	_, err = q.db.ExecContext(ctx, query, item.ID, item.NextAttemptAtMs, body)
	return err
}

func (q *PostgresQueue) Dequeue(ctx context.Context, limit int, nowMs int64) ([]QueuedDelivery, error) {
	defer metrics.MeasureDBQuery(q.metrics, "webhook_queue_dequeue", "postgres")()
	if limit <= 0 {
		limit = 100
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue tx: %w", err)
	}
	defer tx.Rollback()

	selectQuery := fmt.Sprintf(`
		SELECT id, body FROM %s
		WHERE next_attempt_at_ms <= $1
		ORDER BY next_attempt_at_ms ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, q.tableName)
	rows, err := tx.QueryContext(ctx, selectQuery, nowMs, limit)
	if err != nil {
		return nil, fmt.Errorf("select ready deliveries: %w", err)
	}

	var ids []string
	var items []QueuedDelivery
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan queued delivery: %w", err)
		}
		var item QueuedDelivery
		if err := json.Unmarshal(body, &item); err != nil {
			continue
		}
		ids = append(ids, id)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) > 0 {
		deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, q.tableName)
		if _, err := tx.ExecContext(ctx, deleteQuery, pq.Array(ids)); err != nil {
			return nil, fmt.Errorf("delete dequeued deliveries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue tx: %w", err)
	}
	return items, nil
}

func (q *PostgresQueue) Retry(ctx context.Context, item QueuedDelivery, deliveryErr error, nowMs int64) error {
	item.AttemptsMade++
	if deliveryErr != nil {
		item.LastError = deliveryErr.Error()
	}
	delay := int64(0)
	if item.Subscription.RetryPolicy != nil {
		delay = item.Subscription.RetryPolicy.NextDelayMs(item.AttemptsMade)
	}
	item.NextAttemptAtMs = nowMs + delay
	return q.Enqueue(ctx, item)
}

func (q *PostgresQueue) Remove(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, q.tableName), id)
	return err
}

func (q *PostgresQueue) Size(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, q.tableName)).Scan(&n)
	return n, err
}

func (q *PostgresQueue) Close() error {
	if !q.ownsDB {
		return nil
	}
	return q.db.Close()
}
