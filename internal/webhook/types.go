// Package webhook implements the signed, retrying, persistent delivery
// engine that notifies downstream systems of verified payments without
// blocking the request path: a signer (HMAC-SHA256 over the payload), a
// sender (single HTTP POST attempt), a durable queue (shared-store or
// in-process), and a bounded delivery logger.
package webhook

import (
	"time"
)

// Event names a webhook payload's event type.
type Event string

const (
	EventPaymentConfirmed Event = "payment.confirmed"
	EventPaymentFailed    Event = "payment.failed"
)

// Backoff names a retry policy's delay growth function.
type Backoff string

const (
	BackoffExponential Backoff = "exponential"
	BackoffLinear      Backoff = "linear"
)

// RetryPolicy governs how a failed delivery is rescheduled.
type RetryPolicy struct {
	MaxAttempts    int
	InitialDelayMs int64
	MaxDelayMs     int64
	Backoff        Backoff
}

// DefaultRetryPolicy returns the webhook retry defaults: 5 attempts, 1s
// initial delay, exponential backoff capped at 5m. NextDelayMs falls back to
// its delays for a policy that leaves them unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialDelayMs: 1000,
		MaxDelayMs:     5 * 60 * 1000,
		Backoff:        BackoffExponential,
	}
}

// NextDelayMs computes the delay before the next attempt given how many
// attempts have already been made (0-indexed: attemptsMade is the count of
// attempts already failed).
func (p RetryPolicy) NextDelayMs(attemptsMade int) int64 {
	maxDelay := p.MaxDelayMs
	if maxDelay <= 0 {
		maxDelay = DefaultRetryPolicy().MaxDelayMs
	}
	initial := p.InitialDelayMs
	if initial <= 0 {
		initial = DefaultRetryPolicy().InitialDelayMs
	}

	var delay int64
	switch p.Backoff {
	case BackoffLinear:
		delay = initial * int64(attemptsMade+1)
	default: // exponential
		delay = initial
		for i := 0; i < attemptsMade; i++ {
			delay *= 2
			if delay >= maxDelay {
				delay = maxDelay
				break
			}
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// Subscription describes one webhook destination and how to deliver to it.
type Subscription struct {
	ID                string
	URL               string
	Secret            string
	SubscribedEvents  map[Event]bool // nil or empty means "all events"
	RetryPolicy       *RetryPolicy   // nil disables retry scheduling
	PerDeliveryTimeout time.Duration
	ExtraHeaders      map[string]string
}

// Accepts reports whether this subscription wants the given event. An empty
// or nil SubscribedEvents set accepts every event.
func (s Subscription) Accepts(event Event) bool {
	if len(s.SubscribedEvents) == 0 {
		return true
	}
	return s.SubscribedEvents[event]
}

// PaymentInfo is the payment summary carried inside a webhook payload.
type PaymentInfo struct {
	Signature    string  `json:"signature"`
	AmountAtomic int64   `json:"amountSmallest"`
	AmountUSD    float64 `json:"amountUSD"`
	Payer        string  `json:"payer,omitempty"`
	Recipient    string  `json:"recipient"`
	Resource     string  `json:"resource,omitempty"`
	BlockTime    *int64  `json:"blockTime,omitempty"`
	Slot         *uint64 `json:"slot,omitempty"`
}

// Payload is the JSON body sent to a subscriber.
type Payload struct {
	Event       Event             `json:"event"`
	TimestampMs int64             `json:"timestampMs"`
	Payment     PaymentInfo       `json:"payment"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DeliveryResult is what the sender and the manager's public operations
// return for one delivery attempt.
type DeliveryResult struct {
	Success        bool   `json:"success"`
	StatusCode     int    `json:"statusCode,omitempty"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	Attempts       int    `json:"attempts"`
	URL            string `json:"url"`
	Event          Event  `json:"event"`
}

// QueuedDelivery is a durable retry-queue entry: a subscription bound to one
// payload, its retry progress, and scheduling metadata.
type QueuedDelivery struct {
	ID             string
	Subscription   Subscription
	Payload        Payload
	AttemptsMade   int
	NextAttemptAtMs int64
	CreatedAtMs    int64
	LastError      string
}

// ReadyAt reports whether this entry is due for delivery at the given time.
func (q QueuedDelivery) ReadyAt(nowMs int64) bool {
	return nowMs >= q.NextAttemptAtMs
}
