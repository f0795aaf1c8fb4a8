// Package webhook delivers alerts to an HTTP endpoint.
//
// The payload is signed with HMAC-SHA256 when a secret is configured, so
// receivers can authenticate the sender. Delivery is a single attempt;
// the caller owns retry semantics.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artpar/quotamon/ports"
)

// Config configures the webhook notifier.
type Config struct {
	// URL receives the POST for each alert.
	URL string

	// Secret signs payloads. Empty disables signing.
	Secret string

	Timeout time.Duration
}

// Notifier posts alerts as JSON to a configured endpoint.
type Notifier struct {
	url    string
	secret string
	client *http.Client
}

// New creates a webhook notifier.
func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Notifier{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: timeout},
	}
}

// payload is the wire form of a delivered alert.
type payload struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SentAt  string `json:"sent_at"`
}

// Send posts the notification. A non-empty Target overrides the
// configured URL.
func (n *Notifier) Send(ctx context.Context, msg ports.Notification) error {
	url := n.url
	if msg.Target != "" {
		url = msg.Target
	}

	data, err := json.Marshal(payload{
		ID:      msg.ID,
		Subject: msg.Subject,
		Body:    msg.Body,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Quotamon-Webhook/1.0")
	req.Header.Set("X-Notification-ID", msg.ID)
	if n.secret != "" {
		req.Header.Set("X-Webhook-Signature", SignPayload(data, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook endpoint returned %d: %s", resp.StatusCode, body)
	}

	return nil
}

// SignPayload computes the hex HMAC-SHA256 signature for a payload.
func SignPayload(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether a signature matches the payload.
// Receivers use it to authenticate deliveries.
func VerifySignature(data []byte, signature, secret string) bool {
	expected := SignPayload(data, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Ensure interface compliance.
var _ ports.Notifier = (*Notifier)(nil)
