package webhook

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Queue is the durable retry-queue contract the manager drives. Three
// backings satisfy it, mirroring the replay cache's shared-store/in-process
// split: MemoryQueue (priority queue + map, guarded by a mutex), RedisQueue
// (a sorted set scored by nextAttemptAtMs, backed by a hash of item bodies),
// and PostgresQueue (one row per item, in queue_postgres.go).
type Queue interface {
	Enqueue(ctx context.Context, item QueuedDelivery) error
	// Dequeue removes and returns up to limit items whose NextAttemptAtMs is
	// <= nowMs. Returned items are no longer queued; the caller must call
	// Retry or Remove for each to reschedule or finalize it.
	Dequeue(ctx context.Context, limit int, nowMs int64) ([]QueuedDelivery, error)
	Retry(ctx context.Context, item QueuedDelivery, deliveryErr error, nowMs int64) error
	Remove(ctx context.Context, id string) error
	Size(ctx context.Context) (int, error)
	Close() error
}

// memoryHeap orders entries by NextAttemptAtMs, earliest first.
type memoryHeap []*QueuedDelivery

func (h memoryHeap) Len() int            { return len(h) }
func (h memoryHeap) Less(i, j int) bool  { return h[i].NextAttemptAtMs < h[j].NextAttemptAtMs }
func (h memoryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *memoryHeap) Push(x interface{}) { *h = append(*h, x.(*QueuedDelivery)) }
func (h *memoryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MemoryQueue is an in-process retry queue: not safe across server
// instances, but requires no external store.
type MemoryQueue struct {
	mu    sync.Mutex
	heap  memoryHeap
	items map[string]*QueuedDelivery
}

// NewMemoryQueue constructs an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[string]*QueuedDelivery)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, item QueuedDelivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := item
	q.items[cp.ID] = &cp
	heap.Push(&q.heap, &cp)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, limit int, nowMs int64) ([]QueuedDelivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []QueuedDelivery
	for len(q.heap) > 0 && (limit <= 0 || len(ready) < limit) {
		if q.heap[0].NextAttemptAtMs > nowMs {
			break
		}
		item := heap.Pop(&q.heap).(*QueuedDelivery)
		delete(q.items, item.ID)
		ready = append(ready, *item)
	}
	return ready, nil
}

func (q *MemoryQueue) Retry(ctx context.Context, item QueuedDelivery, deliveryErr error, nowMs int64) error {
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

func (q *MemoryQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, id)
	for i, it := range q.heap {
		if it.ID == id {
			heap.Remove(&q.heap, i)
			break
		}
	}
	return nil
}

func (q *MemoryQueue) Size(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

func (q *MemoryQueue) Close() error { return nil }

// RedisQueue is the shared-store queue backing: a hash of item bodies keyed
// by id, and a sorted set scored by NextAttemptAtMs for ready-item scans. A
// second server instance shares this store, so delivery retries survive a
// restart and are visible across instances.
type RedisQueue struct {
	client   *redis.Client
	itemsKey string
	readyKey string
}

// NewRedisQueue wraps an existing client. prefix namespaces the two keys
// this queue owns; the caller owns the client's lifecycle.
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "x402:webhookqueue:"
	}
	return &RedisQueue{client: client, itemsKey: prefix + "items", readyKey: prefix + "ready"}
}

func (q *RedisQueue) Enqueue(ctx context.Context, item QueuedDelivery) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queued delivery: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.itemsKey, item.ID, body)
	pipe.ZAdd(ctx, q.readyKey, redis.Z{Score: float64(item.NextAttemptAtMs), Member: item.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Dequeue(ctx context.Context, limit int, nowMs int64) ([]QueuedDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := q.client.ZRangeByScore(ctx, q.readyKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", nowMs),
		Offset: 0,
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raws, err := q.client.HMGet(ctx, q.itemsKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	pipe := q.client.TxPipeline()
	var items []QueuedDelivery
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok || str == "" {
			continue
		}
		var item QueuedDelivery
		if err := json.Unmarshal([]byte(str), &item); err != nil {
			continue
		}
		items = append(items, item)
		pipe.ZRem(ctx, q.readyKey, ids[i])
		pipe.HDel(ctx, q.itemsKey, ids[i])
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (q *RedisQueue) Retry(ctx context.Context, item QueuedDelivery, deliveryErr error, nowMs int64) error {
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

func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.readyKey, id)
	pipe.HDel(ctx, q.itemsKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.client.HLen(ctx, q.itemsKey).Result()
	return int(n), err
}

func (q *RedisQueue) Close() error { return nil }
