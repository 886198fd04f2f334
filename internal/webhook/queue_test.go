package webhook

import (
	"context"
	"errors"
	"testing"
)

func testDelivery(id string, nextAttemptAtMs int64) QueuedDelivery {
	return QueuedDelivery{
		ID:              id,
		Subscription:    Subscription{ID: "sub1", URL: "https://example.com/hook", RetryPolicy: &RetryPolicy{MaxAttempts: 3, InitialDelayMs: 100, MaxDelayMs: 1000, Backoff: BackoffExponential}},
		Payload:         testPayload(),
		NextAttemptAtMs: nextAttemptAtMs,
		CreatedAtMs:     0,
	}
}

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	if err := q.Enqueue(ctx, testDelivery("a", 100)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(ctx, testDelivery("b", 200)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	size, err := q.Size(ctx)
	if err != nil || size != 2 {
		t.Fatalf("Size() = %d, %v, want 2, nil", size, err)
	}

	ready, err := q.Dequeue(ctx, 10, 150)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("Dequeue() = %+v, want only item a", ready)
	}

	size, _ = q.Size(ctx)
	if size != 1 {
		t.Errorf("Size() after dequeue = %d, want 1", size)
	}
}

func TestMemoryQueue_DequeueOrdersByNextAttempt(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	_ = q.Enqueue(ctx, testDelivery("late", 300))
	_ = q.Enqueue(ctx, testDelivery("early", 100))
	_ = q.Enqueue(ctx, testDelivery("mid", 200))

	ready, err := q.Dequeue(ctx, 10, 1000)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if len(ready) != 3 {
		t.Fatalf("len(ready) = %d, want 3", len(ready))
	}
	order := []string{ready[0].ID, ready[1].ID, ready[2].ID}
	want := []string{"early", "mid", "late"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestMemoryQueue_Retry_RecomputesNextAttempt(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	item := testDelivery("a", 0)

	if err := q.Retry(ctx, item, errors.New("boom"), 1000); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	// Retry counts the failed attempt first (AttemptsMade 0 -> 1), so the
	// delay is NextDelayMs(1) = 200ms.
	ready, err := q.Dequeue(ctx, 10, 1199)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected item not yet ready at 1199ms, got %+v", ready)
	}

	ready, err = q.Dequeue(ctx, 10, 1200)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if len(ready) != 1 {
		t.Fatalf("expected item ready at 1200ms, got %+v", ready)
	}
	if ready[0].AttemptsMade != 1 {
		t.Errorf("AttemptsMade = %d, want 1", ready[0].AttemptsMade)
	}
	if ready[0].LastError != "boom" {
		t.Errorf("LastError = %q, want boom", ready[0].LastError)
	}
}

func TestMemoryQueue_Remove(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	_ = q.Enqueue(ctx, testDelivery("a", 0))

	if err := q.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	size, _ := q.Size(ctx)
	if size != 0 {
		t.Errorf("Size() after remove = %d, want 0", size)
	}
	ready, _ := q.Dequeue(ctx, 10, 100)
	if len(ready) != 0 {
		t.Errorf("expected no ready items after remove, got %+v", ready)
	}
}

func TestRetryPolicy_NextDelayMs_Exponential(t *testing.T) {
	p := RetryPolicy{InitialDelayMs: 100, MaxDelayMs: 1000, Backoff: BackoffExponential}
	cases := []struct {
		attemptsMade int
		want         int64
	}{
		{0, 100},
		{1, 200},
		{2, 400},
		{3, 800},
		{4, 1000}, // capped
		{10, 1000},
	}
	for _, c := range cases {
		if got := p.NextDelayMs(c.attemptsMade); got != c.want {
			t.Errorf("NextDelayMs(%d) = %d, want %d", c.attemptsMade, got, c.want)
		}
	}
}

func TestRetryPolicy_NextDelayMs_Linear(t *testing.T) {
	p := RetryPolicy{InitialDelayMs: 100, MaxDelayMs: 350, Backoff: BackoffLinear}
	cases := []struct {
		attemptsMade int
		want         int64
	}{
		{0, 100},
		{1, 200},
		{2, 300},
		{3, 350}, // capped
	}
	for _, c := range cases {
		if got := p.NextDelayMs(c.attemptsMade); got != c.want {
			t.Errorf("NextDelayMs(%d) = %d, want %d", c.attemptsMade, got, c.want)
		}
	}
}
