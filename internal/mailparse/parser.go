package mailparse

import (
	"bytes"
	"fmt"
	netmail "net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

// Normalize parses one raw RFC 5322 message into an EmailMessage. It is a
// pure function of its input: no network, no shared state. The caller is
// responsible for setting AccountID, Folder and UID on the result.
//
// Header damage degrades to defaults instead of failing; only input that
// enmime cannot read at all is rejected, wrapped as ErrMalformedMessage.
func Normalize(raw []byte) (*models.EmailMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mailerrors.ErrMalformedMessage, err)
	}

	msg := &models.EmailMessage{
		Subject:  env.GetHeader("Subject"),
		BodyText: env.Text,
		BodyHTML: env.HTML,
		RawSize:  int64(len(raw)),
	}

	msg.SenderName, msg.SenderEmail = parseFromHeader(env.GetHeader("From"))
	msg.Recipients = joinAddressHeader(env, "To")
	msg.CcList = joinAddressHeader(env, "Cc")
	msg.MessageID = strings.Trim(env.GetHeader("Message-Id"), "<> ")
	msg.Snippet = generateSnippet(msg.BodyText, msg.BodyHTML)
	msg.SentAt = parseDateHeader(env.GetHeader("Date"))
	msg.ThreadID = deriveThreadID(env, msg)

	for _, att := range env.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Filename:    att.FileName,
			ContentType: att.ContentType,
			Size:        int64(len(att.Content)),
		})
	}
	for _, att := range env.Inlines {
		if att.FileName != "" {
			msg.Attachments = append(msg.Attachments, models.Attachment{
				Filename:    att.FileName,
				ContentType: att.ContentType,
				Size:        int64(len(att.Content)),
			})
		}
	}

	return msg, nil
}

// parseFromHeader extracts name and email from a From header
func parseFromHeader(from string) (name, email string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	if addr, err := netmail.ParseAddress(from); err == nil {
		return addr.Name, strings.ToLower(addr.Address)
	}

	// Pattern: "Name" <email@example.com> or Name <email@example.com>
	re := regexp.MustCompile(`^(?:"?([^"<]*)"?\s*)?<?([^<>\s]+@[^<>\s]+)>?$`)
	matches := re.FindStringSubmatch(from)
	if len(matches) >= 3 {
		name = strings.Trim(strings.TrimSpace(matches[1]), `"`)
		email = strings.ToLower(strings.TrimSpace(matches[2]))
		return name, email
	}

	// Fallback: treat entire string as email
	return "", strings.ToLower(from)
}

// joinAddressHeader renders an address-list header as a comma-separated
// list of bare addresses, tolerating unparseable entries.
func joinAddressHeader(env *enmime.Envelope, header string) string {
	raw := env.GetHeader(header)
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	addrs, err := netmail.ParseAddressList(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}

	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, strings.ToLower(a.Address))
	}
	return strings.Join(parts, ", ")
}

// parseDateHeader parses the Date header, defaulting to now when the
// header is missing or broken so records always sort somewhere sane.
func parseDateHeader(value string) time.Time {
	if strings.TrimSpace(value) == "" {
		return time.Now().UTC()
	}
	t, err := netmail.ParseDate(value)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

// generateSnippet creates a preview snippet from email body
func generateSnippet(bodyText, bodyHTML string) string {
	var text string

	if bodyText != "" {
		text = bodyText
	} else if bodyHTML != "" {
		text = stripHTMLTags(bodyHTML)
	}

	text = strings.Join(strings.Fields(text), " ")
	text = strings.TrimSpace(text)

	if len(text) > 255 {
		text = TruncateRunes(text, 252) + "..."
	}

	return text
}

// TruncateRunes cuts s to at most max bytes without splitting a multi-byte
// rune; the snippet and prompt columns must stay valid UTF-8.
func TruncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// stripHTMLTags removes HTML tags from a string
func stripHTMLTags(html string) string {
	// Remove script and style elements
	re := regexp.MustCompile(`(?i)<(script|style)[^>]*>[\s\S]*?</\1>`)
	html = re.ReplaceAllString(html, "")

	// Remove HTML tags
	re = regexp.MustCompile(`<[^>]*>`)
	html = re.ReplaceAllString(html, " ")

	// Decode common HTML entities
	html = strings.ReplaceAll(html, "&nbsp;", " ")
	html = strings.ReplaceAll(html, "&amp;", "&")
	html = strings.ReplaceAll(html, "&lt;", "<")
	html = strings.ReplaceAll(html, "&gt;", ">")
	html = strings.ReplaceAll(html, "&quot;", `"`)
	html = strings.ReplaceAll(html, "&#39;", "'")

	return html
}
