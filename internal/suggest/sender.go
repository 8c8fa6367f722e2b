package suggest

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

// Sender submits accepted reply drafts through the account's SMTP server.
type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

// sanitizeHeader strips CR/LF so a crafted subject cannot inject headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// SendReply builds an RFC-compliant reply to msg and submits it via the
// account's configured SMTP host. Threading headers reference the original
// so the reply lands in the same conversation.
func (s *Sender) SendReply(ctx context.Context, account *models.Account, msg *models.EmailMessage, body string) error {
	if account.SMTPHost == "" {
		return fmt.Errorf("account %s has no smtp host configured", account.Email)
	}

	from := sanitizeHeader(account.Email)
	to := sanitizeHeader(msg.SenderEmail)
	if to == "" {
		return fmt.Errorf("message %s has no sender to reply to", msg.Key())
	}

	subject := msg.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	var h mail.Header
	if fromAddrs, err := mail.ParseAddressList(from); err == nil && len(fromAddrs) > 0 {
		h.SetAddressList("From", fromAddrs)
	} else {
		h.Set("From", from)
	}
	if toAddrs, err := mail.ParseAddressList(to); err == nil && len(toAddrs) > 0 {
		h.SetAddressList("To", toAddrs)
	} else {
		h.Set("To", to)
	}
	h.SetSubject(sanitizeHeader(subject))
	if msg.MessageID != "" {
		ref := "<" + sanitizeHeader(msg.MessageID) + ">"
		h.Set("In-Reply-To", ref)
		h.Set("References", ref)
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return fmt.Errorf("build reply: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write reply body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish reply: %w", err)
	}

	port := account.SMTPPort
	if port <= 0 {
		port = 587
	}
	addr := net.JoinHostPort(account.SMTPHost, strconv.Itoa(port))
	auth := sasl.NewPlainClient("", account.Username, account.Password)

	// Port 465 is implicit TLS; everything else is STARTTLS submission.
	if port == 465 {
		return smtp.SendMailTLS(addr, auth, from, []string{to}, &buf)
	}
	return smtp.SendMail(addr, auth, from, []string{to}, &buf)
}
