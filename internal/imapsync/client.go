package imapsync

import (
	"context"
	"fmt"
	"mime"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

// IMAPDialer establishes authenticated sessions against real IMAP servers.
type IMAPDialer struct {
	// IdleRefresh bounds how long a single IDLE command stays open before
	// it is torn down and reissued. Servers are allowed to drop clients
	// idling past ~29 minutes, so stay well under that.
	IdleRefresh time.Duration
}

const defaultIdleRefresh = 25 * time.Minute

func (d *IMAPDialer) Dial(ctx context.Context, account *models.Account) (Session, error) {
	refresh := d.IdleRefresh
	if refresh <= 0 {
		refresh = defaultIdleRefresh
	}

	s := &imapSession{
		refresh: refresh,
		updates: make(chan struct{}, 1),
	}

	opts := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					select {
					case s.updates <- struct{}{}:
					default:
					}
				}
			},
			Expunge: func(seqNum uint32) {
				// Deletions do not move the watermark but still end the
				// current wait so the worker re-reads folder state.
				select {
				case s.updates <- struct{}{}:
				default:
				}
			},
		},
	}

	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)
	var cl *imapclient.Client
	var err error
	if account.UseTLS {
		cl, err = imapclient.DialTLS(addr, opts)
	} else {
		cl, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, mailerrors.Wrap(mailerrors.ErrConnectionLost, fmt.Sprintf("dial %s", addr))
	}

	if err := cl.Login(account.Username, account.Password).Wait(); err != nil {
		_ = cl.Logout().Wait()
		return nil, mailerrors.Wrap(mailerrors.ErrConnectionLost, "imap login")
	}

	s.client = cl
	return s, nil
}

type imapSession struct {
	client  *imapclient.Client
	refresh time.Duration
	updates chan struct{}
}

func (s *imapSession) Select(ctx context.Context, folder string) (*FolderStatus, error) {
	data, err := s.client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, mailerrors.Wrap(mailerrors.ErrConnectionLost, fmt.Sprintf("select %s", folder))
	}
	return &FolderStatus{
		UIDNext:     uint32(data.UIDNext),
		UIDValidity: data.UIDValidity,
		NumMessages: data.NumMessages,
	}, nil
}

func (s *imapSession) UIDsAbove(ctx context.Context, watermark uint32) ([]uint32, error) {
	criteria := &imap.SearchCriteria{}
	var set imap.UIDSet
	set.AddRange(imap.UID(watermark+1), 0)
	criteria.UID = []imap.UIDSet{set}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, mailerrors.Wrap(mailerrors.ErrConnectionLost, "uid search")
	}

	// Some servers return UIDs at or below the range start; filter them
	// so a replayed watermark never yields already-seen UIDs.
	raw := data.AllUIDs()
	uids := make([]uint32, 0, len(raw))
	for _, uid := range raw {
		if uint32(uid) > watermark {
			uids = append(uids, uint32(uid))
		}
	}
	return uids, nil
}

func (s *imapSession) FetchRaw(ctx context.Context, uid uint32) ([]byte, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return nil, mailerrors.Wrap(mailerrors.ErrConnectionLost, fmt.Sprintf("fetch uid %d", uid))
		}
		if uint32(buf.UID) != uid {
			continue
		}
		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			return nil, mailerrors.Wrap(mailerrors.ErrMalformedMessage, fmt.Sprintf("uid %d has no body section", uid))
		}
		return raw, nil
	}
	return nil, mailerrors.Wrap(mailerrors.ErrConnectionLost, fmt.Sprintf("uid %d missing from fetch response", uid))
}

// Wait issues IDLE and blocks until the server signals a mailbox change,
// the refresh window elapses, or the connection drops.
func (s *imapSession) Wait(ctx context.Context) (bool, error) {
	// Drain any update that arrived between waits so it is not lost;
	// report it immediately instead of idling past it.
	select {
	case <-s.updates:
		return true, nil
	default:
	}

	idleCmd, err := s.client.Idle()
	if err != nil {
		return false, mailerrors.Wrap(mailerrors.ErrConnectionLost, "idle")
	}

	done := make(chan error, 1)
	go func() { done <- idleCmd.Wait() }()

	timer := time.NewTimer(s.refresh)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		_ = idleCmd.Close()
		<-done
		return false, ctx.Err()
	case <-s.updates:
		_ = idleCmd.Close()
		if err := <-done; err != nil {
			return true, mailerrors.Wrap(mailerrors.ErrConnectionLost, "idle teardown")
		}
		return true, nil
	case <-timer.C:
		_ = idleCmd.Close()
		if err := <-done; err != nil {
			return false, mailerrors.Wrap(mailerrors.ErrConnectionLost, "idle refresh")
		}
		return false, nil
	case err := <-done:
		if err != nil {
			return false, mailerrors.Wrap(mailerrors.ErrConnectionLost, "idle ended")
		}
		// Server ended IDLE on its own; treat as a hint to recheck.
		return true, nil
	}
}

func (s *imapSession) Close() error {
	return s.client.Logout().Wait()
}
