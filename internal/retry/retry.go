// Package retry provides a generic closure-wrapping combinator with
// classified exponential backoff and jitter, used around the RPC fetch in
// the verification orchestrator and elsewhere a fallible async operation
// needs retrying without duplicating backoff arithmetic at each call site.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/CedrosPay/x402-solanatoolkit/internal/logger"
)

// ErrNonRetryable wraps an error to force the classifier to reject it even
// if the message would otherwise look transient. Unused by the default
// classifier but available to callers building bespoke ones.
var ErrNonRetryable = errors.New("retry: non-retryable")

// Policy configures one retry run.
type Policy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterRatio float64

	// IsRetryable classifies an error as transient (worth retrying) or
	// terminal. Defaults to DefaultClassifier when nil.
	IsRetryable func(err error) bool

	// OnRetry is called before each sleep, with the 1-indexed attempt that
	// just failed, the error, and the computed delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the policy described in §4.D: 3 retries, 100ms base,
// 2x multiplier, 10% jitter, capped at 2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
		JitterRatio: 0.1,
		IsRetryable: DefaultClassifier,
	}
}

func (p Policy) classifier() func(error) bool {
	if p.IsRetryable != nil {
		return p.IsRetryable
	}
	return DefaultClassifier
}

// delayFor computes the backoff for the attempt that just failed (0-indexed),
// per §4.D: min(maxDelay, baseDelay * multiplier^attempt + uniform(-j, +j) * base).
func (p Policy) delayFor(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(p.BaseDelay)
	backoff := base * math.Pow(multiplier, float64(attempt))

	jitterRatio := p.JitterRatio
	if jitterRatio > 0 {
		jitter := jitterRatio * base
		backoff += (rand.Float64()*2 - 1) * jitter
	}
	if backoff < 0 {
		backoff = 0
	}

	delay := time.Duration(backoff)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs operation, retrying on transient failure per the policy. The
// closure is invoked exactly MaxRetries+1 times if every error it returns is
// classified retryable; it stops after the first non-retryable error.
func Do[T any](ctx context.Context, policy Policy, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var err error
	classifier := policy.classifier()

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err = operation(ctx)
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if !classifier(err) {
			return result, err
		}

		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.delayFor(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, delay)
		} else {
			logger.FromContext(ctx).Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", policy.MaxRetries+1).
				Dur("retry_delay", delay).
				Msg("retry.attempt")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	return result, err
}

// WithTimeout races operation against a per-attempt deadline and converts a
// timeout into a retryable error so Do's classifier picks it up.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, operation func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type out struct {
		val T
		err error
	}
	done := make(chan out, 1)
	go func() {
		val, err := operation(attemptCtx)
		done <- out{val, err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, errTimeout
	}
}

var errTimeout = errors.New("retry: operation timed out")

// DefaultClassifier identifies network errors (timeouts, connection
// refused, DNS failures, HTTP 429/502/503/504) and RPC-specific transient
// messages ("node is behind", "transaction not found", "blockhash not
// found").
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errTimeout) {
		return true
	}

	msg := strings.ToLower(err.Error())

	networkSubstrings := []string{
		"connection refused", "connection reset", "timeout", "timed out",
		"temporary failure", "no such host", "dns", "network",
	}
	for _, s := range networkSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	httpSubstrings := []string{
		"429", "too many requests", "rate limit", "throttle",
		"502", "503", "504", "bad gateway", "service unavailable", "gateway timeout",
	}
	for _, s := range httpSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	rpcSubstrings := []string{
		"node is behind", "transaction not found", "blockhash not found",
	}
	for _, s := range rpcSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}
