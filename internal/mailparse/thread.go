package mailparse

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

var subjectPrefixRe = regexp.MustCompile(`(?i)^\s*(re|fwd?|aw|sv)\s*(\[\d+\])?\s*:\s*`)

// deriveThreadID computes a stable conversation identity for the message.
// Explicit threading headers win: the root of the References chain, then
// In-Reply-To, then the message's own Message-Id (it starts a thread).
// Without any of those, fall back to a hash of the normalized subject plus
// the participant set, so providerless mail still groups into threads.
func deriveThreadID(env *enmime.Envelope, msg *models.EmailMessage) string {
	if refs := strings.Fields(env.GetHeader("References")); len(refs) > 0 {
		return strings.Trim(refs[0], "<> ")
	}
	if inReplyTo := strings.Trim(env.GetHeader("In-Reply-To"), "<> "); inReplyTo != "" {
		return inReplyTo
	}
	if msg.MessageID != "" && !looksLikeReply(msg.Subject) {
		return msg.MessageID
	}
	return subjectThreadID(msg)
}

// looksLikeReply reports whether the subject carries a reply/forward prefix;
// such a message belongs to an existing thread even when its threading
// headers were stripped.
func looksLikeReply(subject string) bool {
	return subjectPrefixRe.MatchString(subject)
}

// subjectThreadID hashes normalized subject + participant set
func subjectThreadID(msg *models.EmailMessage) string {
	participants := participantSet(msg)
	base := NormalizeSubject(msg.Subject) + "|" + strings.Join(participants, ",")
	sum := sha256.Sum256([]byte(base))
	return "thread-" + hex.EncodeToString(sum[:16])
}

// participantSet returns the sorted, deduplicated lowercase addresses of
// everyone on the message. Sorting makes the set order-independent, so a
// reply (which swaps From and To) lands in the same thread.
func participantSet(msg *models.EmailMessage) []string {
	seen := make(map[string]bool)
	add := func(raw string) {
		for _, part := range strings.Split(raw, ",") {
			addr := strings.ToLower(strings.TrimSpace(part))
			if addr != "" {
				seen[addr] = true
			}
		}
	}
	add(msg.SenderEmail)
	add(msg.Recipients)
	add(msg.CcList)

	participants := make([]string, 0, len(seen))
	for addr := range seen {
		participants = append(participants, addr)
	}
	sort.Strings(participants)
	return participants
}

// NormalizeSubject strips reply/forward prefixes and collapses whitespace,
// lowercased. "Re: Re: Pricing" and "pricing" normalize identically.
func NormalizeSubject(subject string) string {
	s := subject
	for {
		stripped := subjectPrefixRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
