package notify

import (
	"context"
	"time"
)

// Payload is the notification view of a classified message. It carries
// only what a channel needs to render an alert; recipients pull the full
// record through the API if they want more.
type Payload struct {
	MessageKey  string    `json:"message_key"`
	AccountID   uint      `json:"account_id"`
	Folder      string    `json:"folder"`
	SenderEmail string    `json:"sender_email"`
	SenderName  string    `json:"sender_name,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	SentAt      time.Time `json:"sent_at"`
}

// Channel delivers one notification payload to an external destination.
// Implementations must be safe for concurrent use.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, payload *Payload) error
}
