package rfc5322

import (
	"strings"
	"testing"
	"time"
)

func TestParse_Basic(t *testing.T) {
	raw := []byte("From: Jane Doe <jane@example.com>\n" +
		"To: bob@example.com, \"Carol, C.\" <carol@example.com>\n" +
		"Subject: hello there\n" +
		"Message-Id: <abc123@example.com>\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\n" +
		"\n" +
		"plain body text\n")

	msg, ok := Parse(raw, time.Now())
	if !ok {
		t.Fatal("expected ok=true")
	}
	if msg.FromEmail != "jane@example.com" {
		t.Errorf("FromEmail = %q", msg.FromEmail)
	}
	if msg.FromName != "Jane Doe" {
		t.Errorf("FromName = %q", msg.FromName)
	}
	if msg.MessageID != "abc123@example.com" {
		t.Errorf("MessageID = %q", msg.MessageID)
	}
	if len(msg.To) != 2 {
		t.Fatalf("To = %+v, want 2 entries", msg.To)
	}
	if msg.To[1].Email != "carol@example.com" || msg.To[1].Name != "Carol, C." {
		t.Errorf("To[1] = %+v", msg.To[1])
	}
	if !strings.Contains(msg.BodyText, "plain body text") {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
	if msg.SentAt.Year() != 2006 {
		t.Errorf("SentAt = %v", msg.SentAt)
	}
}

func TestParse_RejectsMissingFrom(t *testing.T) {
	raw := []byte("To: bob@example.com\nSubject: no sender\n\nbody\n")
	_, ok := Parse(raw, time.Now())
	if ok {
		t.Fatal("expected ok=false when From is unresolvable")
	}
}

func TestParse_SynthesizesMessageID(t *testing.T) {
	raw := []byte("From: a@b.com\nSubject: no id\n\nbody\n")
	now := time.Unix(1700000000, 0)
	msg, ok := Parse(raw, now)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !strings.HasPrefix(msg.MessageID, "generated-") {
		t.Errorf("MessageID = %q, want generated- prefix", msg.MessageID)
	}
}

func TestParse_RFC2047Subject(t *testing.T) {
	raw := []byte("From: a@b.com\n" +
		"Subject: =?UTF-8?B?SGVsbG8sIFdvcmxkIQ==?=\n\n" +
		"body\n")
	msg, ok := Parse(raw, time.Now())
	if !ok {
		t.Fatal("expected ok=true")
	}
	if msg.Subject != "Hello, World!" {
		t.Errorf("Subject = %q", msg.Subject)
	}
}

func TestParse_QuotedPrintableSubject(t *testing.T) {
	raw := []byte("From: a@b.com\n" +
		"Subject: =?UTF-8?Q?Caf=C3=A9_menu?=\n\n" +
		"body\n")
	msg, ok := Parse(raw, time.Now())
	if !ok {
		t.Fatal("expected ok=true")
	}
	if msg.Subject != "Café menu" {
		t.Errorf("Subject = %q", msg.Subject)
	}
}

func TestParse_ThreadHints(t *testing.T) {
	raw := []byte("From: a@b.com\n" +
		"In-Reply-To: <parent@example.com>\n" +
		"References: <root@example.com> <parent@example.com>\n" +
		"\nbody\n")
	msg, ok := Parse(raw, time.Now())
	if !ok {
		t.Fatal("expected ok=true")
	}
	if msg.ThreadHints.InReplyTo != "parent@example.com" {
		t.Errorf("InReplyTo = %q", msg.ThreadHints.InReplyTo)
	}
	if len(msg.ThreadHints.References) != 2 || msg.ThreadHints.References[1] != "parent@example.com" {
		t.Errorf("References = %+v", msg.ThreadHints.References)
	}
}

func TestParse_MultipartPrefersTextPlain(t *testing.T) {
	raw := []byte("From: a@b.com\n" +
		"Content-Type: multipart/alternative; boundary=\"XYZ\"\n" +
		"\n" +
		"--XYZ\n" +
		"Content-Type: text/plain\n" +
		"\n" +
		"plain version\n" +
		"--XYZ\n" +
		"Content-Type: text/html\n" +
		"\n" +
		"<p>html version</p>\n" +
		"--XYZ--\n")

	msg, ok := Parse(raw, time.Now())
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !strings.Contains(msg.BodyText, "plain version") {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
	if !strings.Contains(msg.BodyHTML, "html version") {
		t.Errorf("BodyHTML = %q", msg.BodyHTML)
	}
}

func TestParse_QuotedPrintableBody(t *testing.T) {
	raw := []byte("From: a@b.com\n" +
		"Content-Transfer-Encoding: quoted-printable\n" +
		"\n" +
		"Caf=C3=A9 au lait\n")
	msg, ok := Parse(raw, time.Now())
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !strings.Contains(msg.BodyText, "Café au lait") {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
}

func TestParse_Base64Body(t *testing.T) {
	raw := []byte("From: a@b.com\n" +
		"Content-Transfer-Encoding: base64\n" +
		"\n" +
		"aGVsbG8gd29ybGQ=\n")
	msg, ok := Parse(raw, time.Now())
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !strings.Contains(msg.BodyText, "hello world") {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
}

func TestParse_DateFallback(t *testing.T) {
	raw := []byte("From: a@b.com\nDate: not a date\n\nbody\n")
	now := time.Unix(1700000000, 0).UTC()
	msg, ok := Parse(raw, now)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !msg.SentAt.Equal(now) {
		t.Errorf("SentAt = %v, want fallback %v", msg.SentAt, now)
	}
}

func TestSplitOutsideQuotes(t *testing.T) {
	got := splitOutsideQuotes(`a@b.com, "Doe, Jane" <jane@x.com>, c@d.com`, ',')
	if len(got) != 3 {
		t.Fatalf("got %d parts: %+v", len(got), got)
	}
}
