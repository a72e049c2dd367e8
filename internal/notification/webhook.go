// Package notification delivers operational events to an operator-configured
// webhook. Delivery is fire-and-forget from the caller's perspective: a
// failed send is an error for the caller to log, never a reason to fail the
// operation that produced the event.
package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sender delivers one structured event.
type Sender interface {
	Send(ctx context.Context, eventType, title, body string, payload map[string]any) error
}

// webhookPayload is the JSON body sent to the webhook endpoint. The "text"
// field keeps the payload compatible with Slack/Discord/Teams incoming
// webhooks; structured data rides in "payload" for custom receivers.
type webhookPayload struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"text"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// WebhookSender POSTs events to a fixed URL, signing the body with
// HMAC-SHA256 when a secret is configured.
type WebhookSender struct {
	client *http.Client
	url    string
	secret string
}

// NewWebhookSender creates a WebhookSender. An empty url disables delivery:
// Send becomes a no-op so callers need no conditional wiring.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		secret: secret,
	}
}

// Send serializes the event and POSTs it. Non-2xx responses are delivery
// failures.
func (s *WebhookSender) Send(ctx context.Context, eventType, title, body string, payload map[string]any) error {
	if s.url == "" {
		return nil
	}

	data, err := json.Marshal(webhookPayload{
		Type:      eventType,
		Title:     title,
		Body:      body,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("notification: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notification: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Parabase-Webhook/1.0")

	// Signature convention follows GitHub and Stripe: "sha256=<hex>" over the
	// exact request body.
	if s.secret != "" {
		req.Header.Set("X-Parabase-Signature", "sha256="+hmacSHA256(data, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification: webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func hmacSHA256(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
