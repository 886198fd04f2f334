package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/CedrosPay/x402-solanatoolkit/internal/httputil"
)

// DefaultTimeout is used when a subscription has no PerDeliveryTimeout set.
const DefaultTimeout = 5 * time.Second

// UserAgent identifies this toolkit's outbound webhook requests.
const UserAgent = "x402-solana-webhook/1.0"

// Sender performs a single HTTP delivery attempt per call; retry scheduling
// is the queue manager's job, not the sender's.
type Sender struct {
	client *http.Client
}

// NewSender builds a Sender. followRedirects controls whether the
// underlying client follows HTTP redirects; the spec default is to not
// follow them.
func NewSender(followRedirects bool) *Sender {
	client := httputil.NewClient(DefaultTimeout)
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &Sender{client: client}
}

// Send signs payload, POSTs it to sub.URL, and returns the delivery outcome.
// A non-2xx status and a network failure are both reported as
// success=false; neither is treated specially here.
func (s *Sender) Send(ctx context.Context, sub Subscription, payload Payload) DeliveryResult {
	result := DeliveryResult{URL: sub.URL, Event: payload.Event, Attempts: 1}

	body, err := CanonicalPayload(payload)
	if err != nil {
		result.Error = fmt.Sprintf("marshal payload: %v", err)
		return result
	}

	timeout := sub.PerDeliveryTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("build request: %v", err)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(SignatureHeader, Sign(sub.Secret, body))
	req.Header.Set(TimestampHeader, strconv.FormatInt(time.Now().UnixMilli(), 10))
	for k, v := range sub.ExtraHeaders {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	result.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = fmt.Sprintf("send request: %v", err)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("received status %d from %s", resp.StatusCode, sub.URL)
		return result
	}

	result.Success = true
	return result
}
