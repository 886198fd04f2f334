package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errRetryable = errors.New("connection reset by peer")
var errTerminal = errors.New("invalid signature")

func TestDo_AlwaysRetryableInvokesMaxRetriesPlusOne(t *testing.T) {
	calls := 0
	policy := Policy{
		MaxRetries:  3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2,
		IsRetryable: func(error) bool { return true },
	}

	_, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, errRetryable
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (maxRetries+1)", calls)
	}
}

func TestDo_NonRetryableStopsAfterFirstFailure(t *testing.T) {
	calls := 0
	policy := Policy{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		IsRetryable: func(err error) bool {
			return err != errTerminal
		},
	}

	_, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, errTerminal
	})

	if err != errTerminal {
		t.Errorf("err = %v, want %v", err, errTerminal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesKFailuresThenSucceeds(t *testing.T) {
	calls := 0
	k := 2
	policy := Policy{
		MaxRetries:  5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
		IsRetryable: func(error) bool { return true },
	}

	got, err := Do(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls <= k {
			return "", errRetryable
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got = %v, want ok", got)
	}
	if calls != k+1 {
		t.Errorf("calls = %d, want %d", calls, k+1)
	}
}

func TestDo_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{
		MaxRetries:  5,
		BaseDelay:   50 * time.Millisecond,
		IsRetryable: func(error) bool { return true },
	}

	cancel()
	_, err := Do(ctx, policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, errRetryable
	})

	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after cancellation)", calls)
	}
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout", errors.New("context deadline exceeded: timeout"), true},
		{"429", errors.New("http 429 too many requests"), true},
		{"502", errors.New("bad gateway (502)"), true},
		{"transaction not found", errors.New("transaction not found"), true},
		{"node is behind", errors.New("node is behind by 200 slots"), true},
		{"invalid signature", errors.New("invalid signature"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassifier(tt.err); got != tt.want {
				t.Errorf("DefaultClassifier(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithTimeout_ConvertsTimeoutToRetryableError(t *testing.T) {
	_, err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !DefaultClassifier(err) {
		t.Error("expected timeout error to be classified retryable")
	}
}

func TestWithTimeout_ReturnsResultOnSuccess(t *testing.T) {
	got, err := WithTimeout(context.Background(), 50*time.Millisecond, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got = %v, want 42", got)
	}
}
