package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
)

// SlackChannel posts to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

func NewSlackChannel(webhookURL string, timeout time.Duration) *SlackChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *SlackChannel) Name() string {
	return "slack"
}

func (c *SlackChannel) Deliver(ctx context.Context, payload *Payload) error {
	sender := payload.SenderEmail
	if payload.SenderName != "" {
		sender = fmt.Sprintf("%s <%s>", payload.SenderName, payload.SenderEmail)
	}
	text := fmt.Sprintf("*New %s lead* (%.0f%%)\nFrom: %s\nSubject: %s\n> %s",
		payload.Label, payload.Confidence*100, sender, payload.Subject, payload.Snippet)

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return mailerrors.Wrap(mailerrors.ErrConnectionLost, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
