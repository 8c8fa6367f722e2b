package models

import (
	"time"
)

// Delivery lifecycle for a notification task.
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusExhausted = "failed_exhausted"
)

// NotificationDelivery is the dedup ledger for outbound notifications.
// The unique (message_key, channel) index guarantees at most one row per
// pair, and a row in delivered state is final: replays of the same record
// through the pipeline consult the ledger and skip delivery.
type NotificationDelivery struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	MessageKey  string     `gorm:"not null;size:512;uniqueIndex:idx_deliveries_dedup,priority:1" json:"message_key"`
	Channel     string     `gorm:"not null;size:128;uniqueIndex:idx_deliveries_dedup,priority:2" json:"channel"`
	Status      string     `gorm:"not null;size:32;default:pending;index" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"size:1024" json:"last_error,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for NotificationDelivery
func (NotificationDelivery) TableName() string {
	return "notification_deliveries"
}
