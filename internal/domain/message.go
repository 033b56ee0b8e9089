package domain

import "time"

// RecipientRole is the role a contact plays on a message's recipient list.
type RecipientRole string

const (
	RecipientTo  RecipientRole = "to"
	RecipientCc  RecipientRole = "cc"
	RecipientBcc RecipientRole = "bcc"
)

// Message is one email, uniquely identified within a tenant by its external
// MessageID (the RFC 5322 Message-ID header, or a synthesized id when one is
// absent).
type Message struct {
	ID              int64
	TenantID        string
	SourceID        int64
	MessageID       string
	ThreadID        *int64
	Subject         string
	BodyText        string
	BodyHTML        string
	SentAt          time.Time
	FromContactID   int64
	FromEmail       string
	FromName        string
	HasAttachments  bool
	CreatedAt       time.Time
}

// Recipient is a (message, contact, role) membership row.
type Recipient struct {
	MessageID int64
	ContactID int64
	Role      RecipientRole
}

// Attachment is a persisted reference to an attachment's blob bytes.
type Attachment struct {
	ID          int64
	MessageID   int64
	Filename    string
	ContentType string
	Size        int64
	BlobKey     string
}

// ParsedMessage is the per-message output of the header/body parser, prior to
// contact/thread resolution and persistence.
type ParsedMessage struct {
	MessageID   string
	ThreadHints ThreadHints
	Subject     string
	FromEmail   string
	FromName    string
	To          []Address
	Cc          []Address
	SentAt      time.Time
	BodyText    string
	BodyHTML    string
}

// ThreadHints carries the raw In-Reply-To/References header values a message
// arrived with, consumed by thread resolution.
type ThreadHints struct {
	InReplyTo  string
	References []string
}

// Address is a display-name + email pair parsed from a header address list.
type Address struct {
	Name  string
	Email string
}
