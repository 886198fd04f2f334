package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestManager(t *testing.T) (*Manager, *MemoryQueue) {
	t.Helper()
	q := NewMemoryQueue()
	m := NewManager(ManagerConfig{Queue: q, Logger: NewDeliveryLogger(100), ProcessInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = m.Close() })
	return m, q
}

func TestManager_Send_NeverRetriesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, q := newTestManager(t)
	sub := Subscription{URL: srv.URL, Secret: "s", RetryPolicy: &RetryPolicy{MaxAttempts: 5, InitialDelayMs: 10, MaxDelayMs: 100}}
	result := m.Send(context.Background(), sub, testPayload())

	if result.Success {
		t.Fatal("expected failure")
	}
	size, _ := q.Size(context.Background())
	if size != 0 {
		t.Errorf("Send() must never enqueue a retry, queue size = %d", size)
	}
}

func TestManager_SendWithRetry_EnqueuesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, q := newTestManager(t)
	sub := Subscription{URL: srv.URL, Secret: "s", RetryPolicy: &RetryPolicy{MaxAttempts: 5, InitialDelayMs: 10, MaxDelayMs: 100}}
	result := m.SendWithRetry(context.Background(), sub, testPayload())

	if result.Success {
		t.Fatal("expected first attempt to fail")
	}
	size, _ := q.Size(context.Background())
	if size != 1 {
		t.Errorf("expected one queued retry, got size = %d", size)
	}
}

func TestManager_SendWithRetry_NoRetryPolicy_DoesNotEnqueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, q := newTestManager(t)
	sub := Subscription{URL: srv.URL, Secret: "s"}
	m.SendWithRetry(context.Background(), sub, testPayload())

	size, _ := q.Size(context.Background())
	if size != 0 {
		t.Errorf("expected no queued retry without a retry policy, got size = %d", size)
	}
}

func TestManager_SendWithRetry_EventFiltering(t *testing.T) {
	var hit int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, _ := newTestManager(t)
	sub := Subscription{URL: srv.URL, Secret: "s", SubscribedEvents: map[Event]bool{EventPaymentFailed: true}}
	result := m.SendWithRetry(context.Background(), sub, testPayload()) // event is payment.confirmed

	if result.Success {
		t.Fatal("expected filtered payload to be reported as unsuccessful")
	}
	if result.Error != ErrNotSubscribed {
		t.Errorf("Error = %q, want %q", result.Error, ErrNotSubscribed)
	}
	if atomic.LoadInt32(&hit) != 0 {
		t.Error("expected sender never invoked for a filtered event")
	}
}

func TestManager_BackgroundLoop_RetriesUntilSuccess(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, q := newTestManager(t)
	sub := Subscription{URL: srv.URL, Secret: "s", RetryPolicy: &RetryPolicy{MaxAttempts: 5, InitialDelayMs: 1, MaxDelayMs: 5}}
	m.SendWithRetry(context.Background(), sub, testPayload())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		size, _ := q.Size(context.Background())
		if size == 0 && atomic.LoadInt32(&attempts) >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected retry to succeed and drain the queue, attempts=%d", atomic.LoadInt32(&attempts))
}

func TestManager_BackgroundLoop_RemovesAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, q := newTestManager(t)
	sub := Subscription{URL: srv.URL, Secret: "s", RetryPolicy: &RetryPolicy{MaxAttempts: 2, InitialDelayMs: 1, MaxDelayMs: 2}}
	m.SendWithRetry(context.Background(), sub, testPayload())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		size, _ := q.Size(context.Background())
		if size == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected exhausted retry item to be removed from the queue")
}
