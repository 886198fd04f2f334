package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CedrosPay/x402-solanatoolkit/internal/apierrors"
	"github.com/CedrosPay/x402-solanatoolkit/internal/logger"
	"github.com/CedrosPay/x402-solanatoolkit/internal/verify"
	"github.com/CedrosPay/x402-solanatoolkit/internal/webhook"
	"github.com/CedrosPay/x402-solanatoolkit/pkg/toolkit"
	"github.com/CedrosPay/x402-solanatoolkit/pkg/x402"
)

// catalog is the demo's hardcoded resource price list, keyed by the
// {slug} path segment. A real paywall would resolve this from a product
// store; this toolkit deliberately has none (pricing is a Non-goal).
var catalog = map[string]float64{
	"article":  0.05,
	"dataset":  2.50,
	"api-call": 0.001,
}

// demoServer holds the toolkit app and the in-memory webhook subscription
// registry the demo routes close over.
type demoServer struct {
	app  *toolkit.App
	subs *subscriptionRegistry
}

func (s *demoServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handlePaywalledResource implements the 4.D/4.H gate: a request without a
// valid X-PAYMENT header gets 402 with PaymentRequirements; a request
// carrying one is verified and, on success, served and announced over
// every matching webhook subscription.
func (s *demoServer) handlePaywalledResource(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	priceUSD, ok := catalog[slug]
	if !ok {
		http.Error(w, "unknown resource", http.StatusNotFound)
		return
	}

	header := r.Header.Get("X-Payment")
	if header == "" {
		s.writePaymentRequired(w, r, slug, priceUSD, "")
		return
	}

	recipient := s.app.Quoter.PayToATA()
	verdict := s.app.Orchestrator.VerifyHeader(r.Context(), header, recipient, priceUSD, verify.Options{})
	if !verdict.IsValid {
		s.writePaymentRequired(w, r, slug, priceUSD, apierrors.UserMessage(verdict.Code))
		return
	}

	receipt := x402.Receipt{
		Signature: verdict.Signature,
		Network:   string(s.app.Quoter.Network()),
		Amount:    int64(verdict.Transfer.Amount),
		Timestamp: nowMs(),
		Status:    x402.ReceiptStatusVerified,
		BlockTime: verdict.BlockTime,
		Slot:      verdict.Slot,
	}
	encodedReceipt, err := x402.EncodeReceipt(receipt)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("x402demo: failed to encode receipt")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("X-Payment-Response", encodedReceipt)

	s.notifySubscribers(r, slug, priceUSD, verdict)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"resource": slug,
		"paid":     true,
		"signature": verdict.Signature,
	})
}

func (s *demoServer) writePaymentRequired(w http.ResponseWriter, r *http.Request, slug string, priceUSD float64, errMsg string) {
	requirements, err := s.app.Quoter.Generate(priceUSD, x402.QuoteOptions{
		Resource:     r.URL.Path,
		Description:  slug,
		ErrorMessage: errMsg,
	})
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("x402demo: failed to generate payment requirements")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	requirements.Error = errMsg

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(requirements)
}

func (s *demoServer) notifySubscribers(r *http.Request, slug string, priceUSD float64, verdict x402.Verdict) {
	payload := webhook.Payload{
		Event:       webhook.EventPaymentConfirmed,
		TimestampMs: nowMs(),
		Payment: webhook.PaymentInfo{
			Signature:    verdict.Signature,
			AmountAtomic: int64(verdict.Transfer.Amount),
			AmountUSD:    priceUSD,
			Payer:        verdict.Transfer.Authority,
			Recipient:    verdict.Transfer.Destination,
			Resource:     slug,
			BlockTime:    verdict.BlockTime,
			Slot:         verdict.Slot,
		},
	}
	for _, sub := range s.subs.all() {
		s.app.Webhooks.SendAsync(r.Context(), sub, payload)
	}
}

// handleCreateSubscription registers a webhook destination. The demo keeps
// subscriptions in process memory only; a production deployment would
// persist them the way the replay cache and webhook queue persist theirs.
func (s *demoServer) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL    string   `json:"url"`
		Secret string   `json:"secret"`
		Events []string `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	events := make(map[webhook.Event]bool, len(req.Events))
	for _, e := range req.Events {
		events[webhook.Event(e)] = true
	}

	sub := webhook.Subscription{
		ID:               "sub_" + uuid.NewString(),
		URL:              req.URL,
		Secret:           req.Secret,
		SubscribedEvents: events,
		RetryPolicy:      ptrPolicy(webhook.DefaultRetryPolicy()),
	}
	s.subs.add(sub)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": sub.ID})
}

func (s *demoServer) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.subs.all())
}

func (s *demoServer) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.subs.remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *demoServer) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	reader, ok := s.app.DeliveryLog.(webhook.DeliveryReader)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]webhook.LogEntry{})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reader.GetRecent(100))
}

func ptrPolicy(p webhook.RetryPolicy) *webhook.RetryPolicy { return &p }

func nowMs() int64 { return time.Now().UnixMilli() }

// subscriptionRegistry is a mutex-guarded in-memory set of webhook
// subscriptions, the simplest possible backing for a demo that has no
// database of its own.
type subscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[string]webhook.Subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{subs: make(map[string]webhook.Subscription)}
}

func (r *subscriptionRegistry) add(sub webhook.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub
}

func (r *subscriptionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

func (r *subscriptionRegistry) all() []webhook.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]webhook.Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	return out
}
