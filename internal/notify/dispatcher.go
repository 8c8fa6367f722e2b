package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/config"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/logger"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
)

// Dispatcher fans classified messages out to channels. Every delivery runs
// through the ledger first: the unique (message key, channel) row is what
// keeps replays and crash-redelivery from notifying twice.
type Dispatcher struct {
	ledger   repository.NotificationRepository
	channels []Channel
	events   *logger.EventLogger

	actionable    map[string]bool
	minConfidence float64
	maxAttempts   int
	backoffBase   time.Duration
}

func NewDispatcher(ledger repository.NotificationRepository, channels []Channel, events *logger.EventLogger, cfg config.NotifyConfig) *Dispatcher {
	actionable := make(map[string]bool, len(cfg.ActionableLabels))
	for _, label := range cfg.ActionableLabels {
		actionable[label] = true
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &Dispatcher{
		ledger:        ledger,
		channels:      channels,
		events:        events,
		actionable:    actionable,
		minConfidence: cfg.MinConfidence,
		maxAttempts:   maxAttempts,
		backoffBase:   backoffBase,
	}
}

// Actionable reports whether a message's classification warrants an alert.
func (d *Dispatcher) Actionable(msg *models.EmailMessage) bool {
	return d.actionable[msg.Label] && msg.Confidence >= d.minConfidence
}

// Dispatch delivers the message to every configured channel. Channel
// failures are isolated: one exhausted channel never blocks the others,
// and no delivery failure is fatal to the pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *models.EmailMessage) error {
	if !d.Actionable(msg) {
		return nil
	}

	payload := &Payload{
		MessageKey:  msg.Key(),
		AccountID:   msg.AccountID,
		Folder:      msg.Folder,
		SenderEmail: msg.SenderEmail,
		SenderName:  msg.SenderName,
		Subject:     msg.Subject,
		Snippet:     msg.Snippet,
		Label:       msg.Label,
		Confidence:  msg.Confidence,
		SentAt:      msg.SentAt,
	}

	for _, ch := range d.channels {
		if err := d.deliverWithLedger(ctx, ch, payload); err != nil {
			d.events.StageFailure(payload.MessageKey, "notify:"+ch.Name(), err.Error())
		}
	}
	return nil
}

// deliverWithLedger reserves the ledger row, runs the bounded retry loop,
// and records the outcome. Returns an error only for ledger failures;
// delivery exhaustion is recorded, logged, and absorbed.
func (d *Dispatcher) deliverWithLedger(ctx context.Context, ch Channel, payload *Payload) error {
	delivery, _, err := d.ledger.Reserve(ctx, payload.MessageKey, ch.Name())
	if err != nil {
		return fmt.Errorf("reserve ledger row: %w", err)
	}

	switch delivery.Status {
	case models.DeliveryStatusDelivered:
		// Already notified for this (message, channel) pair.
		return nil
	case models.DeliveryStatusExhausted:
		// A previous run spent the budget; do not resurrect it here.
		return nil
	}

	remaining := d.maxAttempts - delivery.Attempts
	if remaining <= 0 {
		if err := d.ledger.MarkExhausted(ctx, delivery.ID, delivery.LastError); err != nil {
			return fmt.Errorf("mark exhausted: %w", err)
		}
		d.events.DeliveryExhausted(payload.MessageKey, ch.Name(), delivery.LastError)
		return nil
	}

	policy := backoff.WithContext(newRetryPolicy(d.backoffBase, remaining-1), ctx)
	var lastErr error
	err = backoff.Retry(func() error {
		deliverErr := ch.Deliver(ctx, payload)
		if deliverErr != nil {
			lastErr = deliverErr
			if recordErr := d.ledger.RecordAttempt(ctx, delivery.ID, deliverErr.Error()); recordErr != nil {
				return backoff.Permanent(recordErr)
			}
			return deliverErr
		}
		if recordErr := d.ledger.RecordAttempt(ctx, delivery.ID, ""); recordErr != nil {
			return backoff.Permanent(recordErr)
		}
		return nil
	}, policy)

	if err != nil {
		reason := err.Error()
		if lastErr != nil {
			reason = lastErr.Error()
		}
		if markErr := d.ledger.MarkExhausted(ctx, delivery.ID, reason); markErr != nil {
			return fmt.Errorf("mark exhausted: %w", markErr)
		}
		d.events.DeliveryExhausted(payload.MessageKey, ch.Name(), reason)
		return nil
	}

	if err := d.ledger.MarkDelivered(ctx, delivery.ID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	d.events.StageTransition(payload.MessageKey, "notify:"+ch.Name(), "delivered")
	return nil
}

func newRetryPolicy(base time.Duration, maxRetries int) backoff.BackOff {
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = base
	return backoff.WithMaxRetries(policy, uint64(maxRetries))
}
