package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CedrosPay/x402-solanatoolkit/internal/logger"
	"github.com/CedrosPay/x402-solanatoolkit/internal/metrics"
)

// ErrNotSubscribed is the logged error string when a payload's event is
// filtered out by a subscription's subscribedEvents set.
const ErrNotSubscribed = "NotSubscribed"

// DefaultProcessInterval is the background loop's default poll period
// (§6 webhook.processIntervalMs).
const DefaultProcessInterval = time.Second

// clockNow is overridden in tests.
var clockNow = time.Now

// DeliveryLog is the logging sink a Manager records every delivery outcome
// to. *DeliveryLogger and *FileDeliveryLogger both satisfy it.
type DeliveryLog interface {
	Log(entry LogEntry)
}

// DeliveryReader exposes read access to recorded delivery history, for
// inspection endpoints that don't need to log new attempts. *DeliveryLogger
// and *FileDeliveryLogger (via embedding) both satisfy it.
type DeliveryReader interface {
	GetRecent(limit int) []LogEntry
}

// ManagerConfig configures the queue manager.
type ManagerConfig struct {
	Queue           Queue
	Logger          DeliveryLog
	Metrics         *metrics.Metrics // optional; nil disables instrumentation
	FollowRedirects bool
	ProcessInterval time.Duration
}

// Manager is the webhook delivery engine: it signs and sends payloads,
// durably retries failed deliveries via its Queue, and records every
// outcome to its Logger. It owns no other mutable shared state.
type Manager struct {
	queue           Queue
	sender          *Sender
	log             DeliveryLog
	metrics         *metrics.Metrics
	processInterval time.Duration

	stop    chan struct{}
	stopped chan struct{}
	started bool
}

// NewManager constructs a Manager. A nil Logger gets a default in-process
// ring buffer.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = NewDeliveryLogger(DefaultMaxEntries)
	}
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = DefaultProcessInterval
	}
	return &Manager{
		queue:           cfg.Queue,
		sender:          NewSender(cfg.FollowRedirects),
		log:             cfg.Logger,
		metrics:         cfg.Metrics,
		processInterval: cfg.ProcessInterval,
		stop:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
}

// Start launches the background loop that drains ready retry items.
func (m *Manager) Start(ctx context.Context) {
	m.started = true
	go m.run(ctx)
}

// Close stops the background loop and releases the queue.
func (m *Manager) Close() error {
	close(m.stop)
	if m.started {
		<-m.stopped
	}
	return m.queue.Close()
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.stopped)
	ticker := time.NewTicker(m.processInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.processQueue(ctx)
		}
	}
}

// processQueue dequeues ready items, attempts each delivery, and either
// removes the item (success or terminal failure) or reschedules it via the
// queue's Retry, which recomputes nextAttemptAtMs from the subscription's
// policy.
func (m *Manager) processQueue(ctx context.Context) {
	nowMs := clockNow().UnixMilli()
	items, err := m.queue.Dequeue(ctx, 0, nowMs)
	if err != nil {
		logger.Global().Error().Err(err).Msg("webhook: failed to dequeue ready deliveries")
		return
	}

	for _, item := range items {
		m.deliver(ctx, item)
	}

	if m.metrics != nil {
		if size, err := m.queue.Size(ctx); err == nil {
			m.metrics.SetWebhookQueueDepth(size)
		}
	}
}

func (m *Manager) deliver(ctx context.Context, item QueuedDelivery) {
	result := m.sender.Send(ctx, item.Subscription, item.Payload)
	m.logResult(item.ID, item.AttemptsMade+1, result)

	if result.Success {
		if err := m.queue.Remove(ctx, item.ID); err != nil {
			logger.Global().Error().Err(err).Str("deliveryID", item.ID).Msg("webhook: failed to remove delivered item")
		}
		return
	}

	policy := item.Subscription.RetryPolicy
	exhausted := policy == nil || item.AttemptsMade+1 >= policy.MaxAttempts
	if exhausted {
		if err := m.queue.Remove(ctx, item.ID); err != nil {
			logger.Global().Error().Err(err).Str("deliveryID", item.ID).Msg("webhook: failed to remove exhausted item")
		}
		logger.Global().Warn().Str("deliveryID", item.ID).Str("url", item.Subscription.URL).
			Int("attempts", item.AttemptsMade+1).Msg("webhook: delivery failed permanently after all retries")
		return
	}

	nowMs := clockNow().UnixMilli()
	if err := m.queue.Retry(ctx, item, fmt.Errorf("%s", result.Error), nowMs); err != nil {
		logger.Global().Error().Err(err).Str("deliveryID", item.ID).Msg("webhook: failed to reschedule retry")
	}
}

func (m *Manager) logResult(id string, attempt int, result DeliveryResult) {
	m.log.Log(LogEntry{
		ID:             id,
		URL:            result.URL,
		Event:          result.Event,
		Attempt:        attempt,
		Success:        result.Success,
		StatusCode:     result.StatusCode,
		Error:          result.Error,
		ResponseTimeMs: result.ResponseTimeMs,
		TimestampMs:    clockNow().UnixMilli(),
	})
	if m.metrics != nil {
		status := "success"
		if !result.Success {
			status = "failure"
		}
		m.metrics.ObserveWebhook(string(result.Event), status, time.Duration(result.ResponseTimeMs)*time.Millisecond, attempt)
	}
}

// Send performs exactly one delivery attempt and never retries, win or
// lose. Used for fire-once notifications where durability is not required.
func (m *Manager) Send(ctx context.Context, sub Subscription, payload Payload) DeliveryResult {
	if !sub.Accepts(payload.Event) {
		result := DeliveryResult{URL: sub.URL, Event: payload.Event, Error: ErrNotSubscribed}
		m.logResult("", 1, result)
		return result
	}
	result := m.sender.Send(ctx, sub, payload)
	m.logResult("", 1, result)
	return result
}

// SendWithRetry performs one delivery attempt now. On failure, if the
// subscription has a retry policy configured, the delivery is durably
// enqueued for future attempts. It always returns the first-attempt
// result, regardless of whether a retry was scheduled.
func (m *Manager) SendWithRetry(ctx context.Context, sub Subscription, payload Payload) DeliveryResult {
	if !sub.Accepts(payload.Event) {
		result := DeliveryResult{URL: sub.URL, Event: payload.Event, Error: ErrNotSubscribed}
		m.logResult("", 1, result)
		return result
	}

	result := m.sender.Send(ctx, sub, payload)
	m.logResult("", 1, result)
	if result.Success || sub.RetryPolicy == nil {
		return result
	}

	nowMs := clockNow().UnixMilli()
	item := QueuedDelivery{
		ID:              generateDeliveryID(),
		Subscription:    sub,
		Payload:         payload,
		AttemptsMade:    1,
		NextAttemptAtMs: nowMs + sub.RetryPolicy.NextDelayMs(1),
		CreatedAtMs:     nowMs,
		LastError:       result.Error,
	}
	if err := m.queue.Enqueue(ctx, item); err != nil {
		logger.Global().Error().Err(err).Msg("webhook: failed to enqueue delivery for retry")
	}
	return result
}

// SendAsync fires SendWithRetry in a goroutine, ignoring the result.
func (m *Manager) SendAsync(ctx context.Context, sub Subscription, payload Payload) {
	go m.SendWithRetry(context.WithoutCancel(ctx), sub, payload)
}

// generateDeliveryID creates a unique queued-delivery identifier.
// Format: "whd_" + a UUIDv4.
func generateDeliveryID() string {
	return "whd_" + uuid.NewString()
}
