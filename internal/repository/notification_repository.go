package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"gorm.io/gorm"
)

// NotificationRepository is the dedup ledger for outbound notifications.
// The unique (message_key, channel) index is what enforces at-most-one
// successful delivery per pair; the dispatcher must Reserve before any
// delivery attempt.
type NotificationRepository interface {
	// Reserve returns the ledger row for (messageKey, channel), creating a
	// pending one if none exists. created=false with a delivered row tells
	// the dispatcher to skip delivery entirely.
	Reserve(ctx context.Context, messageKey, channel string) (delivery *models.NotificationDelivery, created bool, err error)
	RecordAttempt(ctx context.Context, id uint, attemptErr string) error
	MarkDelivered(ctx context.Context, id uint) error
	MarkExhausted(ctx context.Context, id uint, lastError string) error
	Get(ctx context.Context, messageKey, channel string) (*models.NotificationDelivery, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]models.NotificationDelivery, error)
}

// notificationRepository implements NotificationRepository using GORM
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new NotificationRepository instance
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Reserve finds or creates the ledger row for the pair
func (r *notificationRepository) Reserve(ctx context.Context, messageKey, channel string) (*models.NotificationDelivery, bool, error) {
	existing, err := r.Get(ctx, messageKey, channel)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	delivery := &models.NotificationDelivery{
		MessageKey: messageKey,
		Channel:    channel,
		Status:     models.DeliveryStatusPending,
	}
	if createErr := r.db.WithContext(ctx).Create(delivery).Error; createErr != nil {
		if isDuplicateKeyError(createErr) {
			// Concurrent replay created the row first; use it.
			existing, getErr := r.Get(ctx, messageKey, channel)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create delivery record: %w", createErr)
	}
	return delivery, true, nil
}

// RecordAttempt increments the attempt counter and stores the last error
func (r *notificationRepository) RecordAttempt(ctx context.Context, id uint, attemptErr string) error {
	result := r.db.WithContext(ctx).Model(&models.NotificationDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": attemptErr,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDelivered finalizes the row; a delivered row is never retried again
func (r *notificationRepository) MarkDelivered(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.NotificationDelivery{}).
		Where("id = ? AND status <> ?", id, models.DeliveryStatusDelivered).
		Updates(map[string]interface{}{
			"status":       models.DeliveryStatusDelivered,
			"delivered_at": &now,
			"last_error":   "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark delivery: %w", result.Error)
	}
	return nil
}

// MarkExhausted records that the retry budget ran out
func (r *notificationRepository) MarkExhausted(ctx context.Context, id uint, lastError string) error {
	result := r.db.WithContext(ctx).Model(&models.NotificationDelivery{}).
		Where("id = ? AND status = ?", id, models.DeliveryStatusPending).
		Updates(map[string]interface{}{
			"status":     models.DeliveryStatusExhausted,
			"last_error": lastError,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark delivery exhausted: %w", result.Error)
	}
	return nil
}

// Get retrieves a ledger row by its dedup key
func (r *notificationRepository) Get(ctx context.Context, messageKey, channel string) (*models.NotificationDelivery, error) {
	var delivery models.NotificationDelivery
	result := r.db.WithContext(ctx).
		Where("message_key = ? AND channel = ?", messageKey, channel).
		First(&delivery)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get delivery record: %w", result.Error)
	}
	return &delivery, nil
}

// ListByStatus returns ledger rows in the given status, oldest first
func (r *notificationRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.NotificationDelivery, error) {
	var deliveries []models.NotificationDelivery
	result := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id").Limit(limit).
		Find(&deliveries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", result.Error)
	}
	return deliveries, nil
}
