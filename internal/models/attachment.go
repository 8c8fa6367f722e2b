package models

import (
	"time"
)

// Attachment represents metadata for a file attached to a synced message.
// Content is not duplicated here; the raw message archive holds the bytes.
type Attachment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   uint      `gorm:"not null;index" json:"message_id"`
	Filename    string    `gorm:"not null;size:512" json:"filename"`
	ContentType string    `gorm:"size:255" json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Attachment
func (Attachment) TableName() string {
	return "attachments"
}
