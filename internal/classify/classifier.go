package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/config"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailparse"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/pipeline"
)

const systemPrompt = `You are an email triage assistant for a sales team.
Classify the email into exactly one label:
- interested: the sender shows buying interest or asks to continue the conversation
- meeting_booked: a meeting or call has been scheduled or confirmed
- not_interested: the sender declines or asks to stop contact
- spam: unsolicited bulk or irrelevant mail
- out_of_office: an automatic absence reply
- other: none of the above
Respond with JSON only: {"label": "...", "confidence": 0.0}`

var validLabels = map[string]bool{
	models.LabelInterested:    true,
	models.LabelMeetingBooked: true,
	models.LabelNotInterested: true,
	models.LabelSpam:          true,
	models.LabelOutOfOffice:   true,
	models.LabelOther:         true,
}

// Classifier labels messages with a chat-completion model. A per-call
// timeout and a bounded retry loop keep a slow or flaky model from
// stalling the pipeline.
type Classifier struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	maxRetries  int
	maxBodySize int
}

func New(cfg config.ClassifierConfig) *Classifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = 4000
	}
	return &Classifier{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		timeout:     timeout,
		maxRetries:  maxRetries,
		maxBodySize: maxBody,
	}
}

// Classify labels one message. Transient failures are retried with
// exponential backoff up to the configured budget; a definitive model
// refusal is returned immediately as ErrClassifierRejected.
func (c *Classifier) Classify(ctx context.Context, msg *models.EmailMessage) (*pipeline.Classification, error) {
	var result *pipeline.Classification

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)
	err := backoff.Retry(func() error {
		res, err := c.classifyOnce(ctx, msg)
		if err != nil {
			if errors.Is(err, mailerrors.ErrClassifierRejected) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Classifier) classifyOnce(ctx context.Context, msg *models.EmailMessage) (*pipeline.Classification, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: c.buildPrompt(msg)},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return nil, mailerrors.Wrap(mailerrors.ErrClassifierRejected, apiErr.Message)
		}
		return nil, mailerrors.Wrap(mailerrors.ErrClassifierUnavailable, err.Error())
	}
	if len(resp.Choices) == 0 {
		return nil, mailerrors.Wrap(mailerrors.ErrClassifierUnavailable, "empty completion")
	}

	var parsed struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, mailerrors.Wrap(mailerrors.ErrClassifierRejected, fmt.Sprintf("unparseable completion: %v", err))
	}
	parsed.Label = strings.ToLower(strings.TrimSpace(parsed.Label))
	if !validLabels[parsed.Label] {
		return nil, mailerrors.Wrap(mailerrors.ErrClassifierRejected, fmt.Sprintf("unknown label %q", parsed.Label))
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}

	return &pipeline.Classification{
		Label:        parsed.Label,
		Confidence:   parsed.Confidence,
		ModelVersion: c.model,
	}, nil
}

func (c *Classifier) buildPrompt(msg *models.EmailMessage) string {
	body := msg.BodyText
	if body == "" {
		body = msg.Snippet
	}
	if len(body) > c.maxBodySize {
		body = mailparse.TruncateRunes(body, c.maxBodySize)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\n", msg.SenderName, msg.SenderEmail)
	fmt.Fprintf(&b, "Subject: %s\n\n", msg.Subject)
	b.WriteString(body)
	return b.String()
}
