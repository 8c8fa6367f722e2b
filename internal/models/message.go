package models

import (
	"fmt"
	"time"
)

// Classification labels assigned by the categorizer. Unclassified marks
// records the classifier has not (or could not) label yet.
const (
	LabelInterested    = "interested"
	LabelMeetingBooked = "meeting_booked"
	LabelNotInterested = "not_interested"
	LabelSpam          = "spam"
	LabelOutOfOffice   = "out_of_office"
	LabelOther         = "other"
	LabelUnclassified  = "unclassified"
)

// EmailMessage represents a normalized email synced from a remote mailbox.
// The (account_id, folder, uid) triple is the stable identity of a message;
// it never changes across reconnects and is the dedup key for every
// downstream write.
type EmailMessage struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AccountID uint   `gorm:"not null;uniqueIndex:idx_messages_key,priority:1" json:"account_id"`
	Folder    string `gorm:"not null;size:255;uniqueIndex:idx_messages_key,priority:2" json:"folder"`
	UID       uint32 `gorm:"not null;uniqueIndex:idx_messages_key,priority:3" json:"uid"`

	MessageID   string `gorm:"size:512;index" json:"message_id,omitempty"`
	ThreadID    string `gorm:"size:512;index" json:"thread_id,omitempty"`
	SenderEmail string `gorm:"not null;size:255" json:"sender_email"`
	SenderName  string `gorm:"size:255" json:"sender_name,omitempty"`
	Recipients  string `gorm:"size:2048" json:"recipients,omitempty"`
	CcList      string `gorm:"size:2048" json:"cc_list,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Snippet     string `gorm:"size:255" json:"snippet,omitempty"`
	BodyText    string `json:"body_text,omitempty"`
	BodyHTML    string `json:"body_html,omitempty"`
	RawSize     int64  `json:"raw_size"`

	SentAt     time.Time `json:"sent_at"`
	ReceivedAt time.Time `gorm:"autoCreateTime" json:"received_at"`

	// Classification result; overwritten on reclassification, never merged.
	Label        string     `gorm:"size:64;default:unclassified;index" json:"label"`
	Confidence   float64    `json:"confidence"`
	ModelVersion string     `gorm:"size:128" json:"model_version,omitempty"`
	ClassifiedAt *time.Time `json:"classified_at,omitempty"`

	// NeedsReclassify flags records whose classification failed and should
	// be retried by the sweep pass.
	NeedsReclassify bool `gorm:"default:false;index" json:"needs_reclassify"`
	// IndexPending flags records whose search-index write was deferred
	// after the retry budget was exhausted.
	IndexPending bool `gorm:"default:false;index" json:"index_pending"`

	Account     Account      `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	Attachments []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}

// TableName returns the table name for EmailMessage
func (EmailMessage) TableName() string {
	return "email_messages"
}

// Key returns the globally unique message key used for index document ids,
// the raw archive, and the notification dedup ledger.
func (m *EmailMessage) Key() string {
	return MessageKey(m.AccountID, m.Folder, m.UID)
}

// MessageKey builds the canonical (account, folder, uid) key string.
func MessageKey(accountID uint, folder string, uid uint32) string {
	return fmt.Sprintf("%d:%s:%d", accountID, folder, uid)
}

// MessageListItem is a lightweight version for list views
type MessageListItem struct {
	ID          uint      `json:"id"`
	AccountID   uint      `json:"account_id"`
	Folder      string    `json:"folder"`
	UID         uint32    `json:"uid"`
	SenderEmail string    `json:"sender_email"`
	SenderName  string    `json:"sender_name,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	Label       string    `json:"label"`
	SentAt      time.Time `json:"sent_at"`
	ReceivedAt  time.Time `json:"received_at"`
}
