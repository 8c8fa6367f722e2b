package models

import (
	"time"
)

// FolderState persists the sync watermark for one (account, folder) pair.
// LastUID is the highest UID known to have been emitted downstream; after a
// reconnect the worker only fetches UIDs above it. UIDValidity guards the
// watermark: IMAP UIDs are only stable within a UIDVALIDITY epoch, so a
// changed value forces a watermark reset and full resync.
type FolderState struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AccountID   uint      `gorm:"not null;uniqueIndex:idx_folder_states_key,priority:1" json:"account_id"`
	Folder      string    `gorm:"not null;size:255;uniqueIndex:idx_folder_states_key,priority:2" json:"folder"`
	LastUID     uint32    `gorm:"not null;default:0" json:"last_uid"`
	UIDValidity uint32    `gorm:"not null;default:0" json:"uid_validity"`
	SyncedAt    time.Time `gorm:"autoUpdateTime" json:"synced_at"`
}

// TableName returns the table name for FolderState
func (FolderState) TableName() string {
	return "folder_states"
}
