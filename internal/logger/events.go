// Package logger provides structured event logging for the sync and
// enrichment pipeline.
package logger

import (
	"log/slog"
	"os"
	"time"
)

// EventLogger records pipeline and sync lifecycle events. It ensures
// sensitive data (mailbox credentials, API keys) is never logged.
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger creates a new EventLogger with JSON output.
func NewEventLogger() *EventLogger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &EventLogger{
		logger: slog.New(handler),
	}
}

// NewEventLoggerWithHandler creates an EventLogger with a custom handler.
func NewEventLoggerWithHandler(handler slog.Handler) *EventLogger {
	return &EventLogger{
		logger: slog.New(handler),
	}
}

// WorkerState logs a mailbox worker state transition.
func (l *EventLogger) WorkerState(accountID uint, folder, from, to string) {
	l.logger.Info("worker_state",
		slog.String("event_type", "worker_state"),
		slog.Uint64("account_id", uint64(accountID)),
		slog.String("folder", folder),
		slog.String("from", from),
		slog.String("to", to),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// BatchEmitted logs a successfully emitted sync batch and the new watermark.
func (l *EventLogger) BatchEmitted(accountID uint, folder string, count int, watermark uint32) {
	l.logger.Info("batch_emitted",
		slog.String("event_type", "batch_emitted"),
		slog.Uint64("account_id", uint64(accountID)),
		slog.String("folder", folder),
		slog.Int("count", count),
		slog.Uint64("watermark", uint64(watermark)),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// StageTransition logs one record moving through an enrichment stage.
func (l *EventLogger) StageTransition(messageKey, stage, outcome string) {
	l.logger.Info("stage_transition",
		slog.String("event_type", "stage_transition"),
		slog.String("message_key", messageKey),
		slog.String("stage", stage),
		slog.String("outcome", outcome),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// StageFailure logs a per-record stage failure; the record itself is
// degraded, never dropped.
func (l *EventLogger) StageFailure(messageKey, stage, reason string) {
	l.logger.Warn("stage_failure",
		slog.String("event_type", "stage_failure"),
		slog.String("message_key", messageKey),
		slog.String("stage", stage),
		slog.String("reason", reason),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// DeliveryExhausted logs a notification that ran out of retries.
func (l *EventLogger) DeliveryExhausted(messageKey, channel, reason string) {
	l.logger.Warn("delivery_exhausted",
		slog.String("event_type", "delivery_exhausted"),
		slog.String("message_key", messageKey),
		slog.String("channel", channel),
		slog.String("reason", reason),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// SyncEvent logs a generic sync event with extra detail fields.
func (l *EventLogger) SyncEvent(eventType string, accountID uint, details map[string]string) {
	attrs := []any{
		slog.String("event_type", eventType),
		slog.Uint64("account_id", uint64(accountID)),
		slog.Time("timestamp", time.Now().UTC()),
	}

	for k, v := range details {
		// Filter out sensitive keys
		if isSensitiveKey(k) {
			continue
		}
		attrs = append(attrs, slog.String(k, v))
	}

	l.logger.Info("sync_event", attrs...)
}

// Info logs an informational message.
func (l *EventLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Error logs an error message.
func (l *EventLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// GetLogger returns the underlying slog.Logger for use with middleware.
func (l *EventLogger) GetLogger() *slog.Logger {
	return l.logger
}

// isSensitiveKey checks if a key might contain sensitive data.
func isSensitiveKey(key string) bool {
	sensitiveKeys := map[string]bool{
		"password":      true,
		"api_key":       true,
		"apikey":        true,
		"token":         true,
		"secret":        true,
		"authorization": true,
		"auth":          true,
		"credential":    true,
		"credentials":   true,
		"session":       true,
		"cookie":        true,
	}
	return sensitiveKeys[key]
}
