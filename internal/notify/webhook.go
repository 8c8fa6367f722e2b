package notify

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

	"github.com/google/uuid"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
)

// WebhookChannel posts the payload to an arbitrary HTTP endpoint, signed
// with HMAC-SHA256 so the receiver can verify origin and integrity.
type WebhookChannel struct {
	name   string
	url    string
	secret string
	client *http.Client
}

func NewWebhookChannel(name, url, secret string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		name:   name,
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *WebhookChannel) Name() string {
	return c.name
}

func (c *WebhookChannel) Deliver(ctx context.Context, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", "lead.classified")
	req.Header.Set("X-Webhook-ID", uuid.New().String())
	if c.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, c.secret))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return mailerrors.Wrap(mailerrors.ErrConnectionLost, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned %d", c.name, resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under secret. Receivers
// recompute it over the raw request body to verify the signature header.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
