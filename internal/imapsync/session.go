package imapsync

import (
	"context"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

// FolderStatus reports the state of a selected folder.
type FolderStatus struct {
	UIDNext     uint32
	UIDValidity uint32
	NumMessages uint32
}

// Session is one authenticated IMAP connection with a selected folder.
// Sessions are not safe for concurrent use; each mailbox worker owns
// exactly one and drives it from a single goroutine.
type Session interface {
	// Select opens the folder and returns its status.
	Select(ctx context.Context, folder string) (*FolderStatus, error)

	// UIDsAbove lists UIDs strictly greater than the watermark in the
	// selected folder, ascending.
	UIDsAbove(ctx context.Context, watermark uint32) ([]uint32, error)

	// FetchRaw retrieves the full raw RFC 5322 bytes for one UID.
	FetchRaw(ctx context.Context, uid uint32) ([]byte, error)

	// Wait blocks in push-wait (IDLE) mode until the server signals a
	// mailbox change (true, nil), the refresh window elapses (false, nil),
	// or the connection breaks (false, err). Callers treat a timeout and
	// an error drop the same way apart from reconnecting: reissue the wait.
	Wait(ctx context.Context) (changed bool, err error)

	// Close logs out and releases the connection.
	Close() error
}

// Dialer establishes sessions for an account. The production dialer wraps
// go-imap; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, account *models.Account) (Session, error)
}

// RawEvent carries one protocol-delivered message into the pipeline. It is
// transient: consumed once by the normalizer, then discarded.
type RawEvent struct {
	AccountID uint
	Folder    string
	UID       uint32
	Raw       []byte
}

// Key returns the canonical message key for the event.
func (e *RawEvent) Key() string {
	return models.MessageKey(e.AccountID, e.Folder, e.UID)
}

// EventSink consumes raw message events. Submit blocks when the sink is
// saturated, which is the backpressure that keeps a fast mailbox from
// overrunning the enrichment stages.
type EventSink interface {
	Submit(ctx context.Context, event RawEvent) error
}
