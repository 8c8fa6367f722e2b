package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"gorm.io/gorm"
)

// MessageFilter narrows message list queries
type MessageFilter struct {
	AccountID uint
	Folder    string
	Label     string
}

// MessageRepository defines the interface for synced-message data access
type MessageRepository interface {
	// UpsertByKey persists a normalized message idempotently on its
	// (account, folder, uid) key. A replay with the same key updates the
	// normalized fields in place and reports created=false; classification
	// fields are left untouched so a crash-recovery replay cannot erase an
	// earlier result.
	UpsertByKey(ctx context.Context, message *models.EmailMessage) (created bool, err error)
	GetByID(ctx context.Context, id uint) (*models.EmailMessage, error)
	GetByKey(ctx context.Context, accountID uint, folder string, uid uint32) (*models.EmailMessage, error)
	List(ctx context.Context, filter MessageFilter, limit, offset int) ([]models.MessageListItem, int64, error)
	SetClassification(ctx context.Context, id uint, label string, confidence float64, modelVersion string) error
	MarkNeedsReclassify(ctx context.Context, id uint, needs bool) error
	MarkIndexPending(ctx context.Context, id uint, pending bool) error
	ListIndexPending(ctx context.Context, limit int) ([]models.EmailMessage, error)
	ListNeedsReclassify(ctx context.Context, limit int) ([]models.EmailMessage, error)
	Delete(ctx context.Context, id uint) error
}

// messageRepository implements MessageRepository using GORM
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository instance
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// UpsertByKey creates the message with its attachments, or refreshes the
// normalized fields of an existing row with the same key.
func (r *messageRepository) UpsertByKey(ctx context.Context, message *models.EmailMessage) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.EmailMessage
		result := tx.Where("account_id = ? AND folder = ? AND uid = ?",
			message.AccountID, message.Folder, message.UID).First(&existing)

		if result.Error != nil {
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to look up message by key: %w", result.Error)
			}
			attachments := message.Attachments
			message.Attachments = nil
			if err := tx.Create(message).Error; err != nil {
				if isDuplicateKeyError(err) {
					// Lost a race with a concurrent replay of the same key;
					// treat as the replay path.
					return tx.Where("account_id = ? AND folder = ? AND uid = ?",
						message.AccountID, message.Folder, message.UID).First(message).Error
				}
				return fmt.Errorf("failed to create message: %w", err)
			}
			for i := range attachments {
				attachments[i].MessageID = message.ID
				if err := tx.Create(&attachments[i]).Error; err != nil {
					return fmt.Errorf("failed to create attachment: %w", err)
				}
			}
			message.Attachments = attachments
			created = true
			return nil
		}

		// Replay: refresh normalized content only.
		updates := map[string]interface{}{
			"message_id":   message.MessageID,
			"thread_id":    message.ThreadID,
			"sender_email": message.SenderEmail,
			"sender_name":  message.SenderName,
			"recipients":   message.Recipients,
			"cc_list":      message.CcList,
			"subject":      message.Subject,
			"snippet":      message.Snippet,
			"body_text":    message.BodyText,
			"body_html":    message.BodyHTML,
			"raw_size":     message.RawSize,
			"sent_at":      message.SentAt,
		}
		if err := tx.Model(&models.EmailMessage{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}
		message.ID = existing.ID
		message.Label = existing.Label
		message.Confidence = existing.Confidence
		message.ModelVersion = existing.ModelVersion
		message.ClassifiedAt = existing.ClassifiedAt
		message.NeedsReclassify = existing.NeedsReclassify
		message.IndexPending = existing.IndexPending
		message.ReceivedAt = existing.ReceivedAt
		return nil
	})
	return created, err
}

// GetByID retrieves a message by its ID with preloaded attachments
func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.EmailMessage, error) {
	var message models.EmailMessage
	result := r.db.WithContext(ctx).Preload("Attachments").First(&message, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message by ID: %w", result.Error)
	}
	return &message, nil
}

// GetByKey retrieves a message by its (account, folder, uid) key
func (r *messageRepository) GetByKey(ctx context.Context, accountID uint, folder string, uid uint32) (*models.EmailMessage, error) {
	var message models.EmailMessage
	result := r.db.WithContext(ctx).Preload("Attachments").
		Where("account_id = ? AND folder = ? AND uid = ?", accountID, folder, uid).
		First(&message)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message by key: %w", result.Error)
	}
	return &message, nil
}

// List retrieves messages matching the filter, newest first
func (r *messageRepository) List(ctx context.Context, filter MessageFilter, limit, offset int) ([]models.MessageListItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.EmailMessage{})
	if filter.AccountID != 0 {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.Folder != "" {
		query = query.Where("folder = ?", filter.Folder)
	}
	if filter.Label != "" {
		query = query.Where("label = ?", filter.Label)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var results []models.MessageListItem
	if err := query.
		Select("id", "account_id", "folder", "uid", "sender_email", "sender_name",
			"subject", "snippet", "label", "sent_at", "received_at").
		Order("received_at DESC").
		Limit(limit).Offset(offset).
		Scan(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	return results, total, nil
}

// SetClassification overwrites the classification result for a message.
// The reclassify flag is always cleared: the record now carries a result.
func (r *messageRepository) SetClassification(ctx context.Context, id uint, label string, confidence float64, modelVersion string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.EmailMessage{}).Where("id = ?", id).Updates(map[string]interface{}{
		"label":            label,
		"confidence":       confidence,
		"model_version":    modelVersion,
		"classified_at":    &now,
		"needs_reclassify": false,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to set classification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNeedsReclassify flags or clears a record for the reclassification sweep
func (r *messageRepository) MarkNeedsReclassify(ctx context.Context, id uint, needs bool) error {
	result := r.db.WithContext(ctx).Model(&models.EmailMessage{}).Where("id = ?", id).
		Update("needs_reclassify", needs)
	if result.Error != nil {
		return fmt.Errorf("failed to update reclassify flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkIndexPending flags or clears a deferred search-index write
func (r *messageRepository) MarkIndexPending(ctx context.Context, id uint, pending bool) error {
	result := r.db.WithContext(ctx).Model(&models.EmailMessage{}).Where("id = ?", id).
		Update("index_pending", pending)
	if result.Error != nil {
		return fmt.Errorf("failed to update index flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIndexPending returns records whose index write was deferred
func (r *messageRepository) ListIndexPending(ctx context.Context, limit int) ([]models.EmailMessage, error) {
	var messages []models.EmailMessage
	result := r.db.WithContext(ctx).
		Where("index_pending = ?", true).
		Order("id").Limit(limit).
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list index-pending messages: %w", result.Error)
	}
	return messages, nil
}

// ListNeedsReclassify returns records flagged for reclassification
func (r *messageRepository) ListNeedsReclassify(ctx context.Context, limit int) ([]models.EmailMessage, error) {
	var messages []models.EmailMessage
	result := r.db.WithContext(ctx).
		Where("needs_reclassify = ?", true).
		Order("id").Limit(limit).
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list reclassify candidates: %w", result.Error)
	}
	return messages, nil
}

// Delete removes a message and its attachments
func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.EmailMessage{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
