package rfc5322

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"hybridmail/internal/domain"
)

// Parse turns raw envelope-stripped message bytes into a ParsedMessage. It
// returns ok=false when the message has no usable from_email, the one
// rejection rule the ingestion pipeline enforces at parse time.
func Parse(raw []byte, now time.Time) (msg domain.ParsedMessage, ok bool) {
	headerBlock, body, hasBody := splitHeadersBody(raw)
	if !hasBody {
		headerBlock, body = raw, nil
	}
	h := parseHeaderBlock(headerBlock)

	fromEmail, fromName := parseFromField(h.Get("From"))
	if fromEmail == "" || !strings.Contains(fromEmail, "@") {
		return domain.ParsedMessage{}, false
	}

	messageID := extractMessageID(h.Get("Message-Id"), now)
	subject := decodeSubject(h.Get("Subject"))
	sentAt := parseDate(h.Get("Date"), now)
	bodyText, bodyHTML := extractBody(h, body)

	return domain.ParsedMessage{
		MessageID: messageID,
		ThreadHints: domain.ThreadHints{
			InReplyTo:  extractMessageIDToken(h.Get("In-Reply-To")),
			References: extractMessageIDTokens(h.Get("References")),
		},
		Subject:   subject,
		FromEmail: strings.ToLower(fromEmail),
		FromName:  fromName,
		To:        splitAddressList(h.Get("To")),
		Cc:        splitAddressList(h.Get("Cc")),
		SentAt:    sentAt,
		BodyText:  bodyText,
		BodyHTML:  bodyHTML,
	}, true
}

// extractMessageID strips the <> wrapper from a Message-Id header, or
// synthesizes a time-ordered, collision-resistant id when the header is
// absent or empty.
func extractMessageID(raw string, now time.Time) string {
	id := extractMessageIDToken(raw)
	if id != "" {
		return id
	}
	return synthesizeMessageID(now)
}

func extractMessageIDToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = strings.TrimPrefix(raw, "<")
	if idx := strings.IndexByte(raw, '>'); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}

// extractMessageIDTokens splits a References header (whitespace-separated
// list of <id> tokens) into its component ids.
func extractMessageIDTokens(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	fields := strings.Fields(raw)
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		if id := extractMessageIDToken(f); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func synthesizeMessageID(now time.Time) string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("generated-%d-%s", now.UnixNano(), hex.EncodeToString(buf[:]))
}

// parseDate parses an RFC 5322 Date header, falling back to now when the
// header is absent or malformed.
func parseDate(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	if t, err := mail.ParseDate(raw); err == nil {
		return t.UTC()
	}
	return now
}
