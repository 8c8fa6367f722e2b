package models

import (
	"strings"
	"time"
)

// Account represents a remote IMAP account monitored by the sync engine
type Account struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"not null;size:255;uniqueIndex" json:"email"`
	IMAPHost  string    `gorm:"not null;size:255" json:"imap_host"`
	IMAPPort  int       `gorm:"not null;default:993" json:"imap_port"`
	Username  string    `gorm:"not null;size:255" json:"username"`
	Password  string    `gorm:"not null;size:255" json:"-"`
	UseTLS    bool      `gorm:"default:true" json:"use_tls"`
	Folders   string    `gorm:"not null;default:INBOX;size:1024" json:"folders"`
	SMTPHost  string    `gorm:"size:255" json:"smtp_host,omitempty"`
	SMTPPort  int       `gorm:"default:587" json:"smtp_port,omitempty"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	FolderStates []FolderState `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Account
func (Account) TableName() string {
	return "accounts"
}

// FolderList splits the comma-separated folder set. An empty value
// defaults to INBOX so a worker always has at least one folder to watch.
func (a *Account) FolderList() []string {
	if strings.TrimSpace(a.Folders) == "" {
		return []string{"INBOX"}
	}
	parts := strings.Split(a.Folders, ",")
	folders := make([]string, 0, len(parts))
	for _, p := range parts {
		if f := strings.TrimSpace(p); f != "" {
			folders = append(folders, f)
		}
	}
	if len(folders) == 0 {
		return []string{"INBOX"}
	}
	return folders
}
