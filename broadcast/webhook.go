package broadcast

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Mediatap-Signature"

// DefaultRetryDelays is the wait before each delivery attempt.
var DefaultRetryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends an event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
// Header: X-Mediatap-Signature: sha256=<hex>
func Deliver(ctx context.Context, client *http.Client, url, secret string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mediatap-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Webhook forwards hub events to one endpoint.
type Webhook struct {
	URL    string
	Secret string
	Delays []time.Duration // nil means DefaultRetryDelays

	client *http.Client
}

// NewWebhook creates a Webhook with a 10s per-attempt timeout.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		URL:    url,
		Secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Run delivers events from sub until ctx is done or the hub closes, then
// closes sub. Events are delivered in order, one at a time. Subscribe
// before starting Run so no event published in between is lost.
func (w *Webhook) Run(ctx context.Context, sub *Subscription) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			w.send(ctx, ev)
		}
	}
}

// send delivers ev, retrying on failure with the configured delays.
func (w *Webhook) send(ctx context.Context, ev Event) {
	delays := w.Delays
	if delays == nil {
		delays = DefaultRetryDelays
	}
	client := w.client
	if client == nil {
		client = http.DefaultClient
	}

	for attempt, delay := range delays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		err := Deliver(ctx, client, w.URL, w.Secret, ev)
		if err == nil {
			slog.Debug("webhook delivered", "url", w.URL, "event", ev.Type, "attempt", attempt+1)
			return
		}
		slog.Warn("webhook delivery failed",
			"url", w.URL,
			"event", ev.Type,
			"attempt", attempt+1,
			"error", err,
		)
	}
	slog.Error("webhook delivery exhausted all retries", "url", w.URL, "event", ev.Type)
}
