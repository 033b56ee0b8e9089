// Package queue implements the durable, at-least-once job queue the
// ingestion pipeline runs on: a single Redis Stream carries every message
// kind, each tagged with its own Type so a consumer can dispatch without
// resorting to an untyped payload map.
package queue

import "github.com/goccy/go-json"

// Type discriminates the three message variants the pipeline produces.
type Type string

const (
	// TypeProcessChunk asks a worker to parse one arrived byte chunk of a
	// source file (mbox, etc.) and emit ProcessEmail/ProcessEmailRef
	// messages for whatever complete messages it finds.
	TypeProcessChunk Type = "process-chunk"
	// TypeProcessEmail carries a fully parsed message inline, for small
	// enough bodies that round-tripping them through the queue is cheaper
	// than a blob round trip.
	TypeProcessEmail Type = "process-email"
	// TypeProcessEmailRef carries a pointer to a message body spilled to
	// blob storage, used once a body exceeds the inline size threshold.
	TypeProcessEmailRef Type = "process-email-ref"
)

// Stream is the single Redis Stream name every message type is published
// to; Type alone distinguishes payload shape on the consumer side.
const Stream = "ingest:messages"

// Envelope is the wire shape written to the stream: a discriminator plus a
// raw payload that's unmarshaled once the concrete Type is known.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ChunkMessage is the payload for TypeProcessChunk. Total is the uploader's
// known chunk count for the source, carried through each chained
// process-chunk message so a consumer can tell whether the chunk it just
// consumed was the last one without any other state.
type ChunkMessage struct {
	TenantID    string `json:"tenant_id"`
	SourceID    int64  `json:"source_id"`
	ChunkIndex  int    `json:"chunk_index"`
	Total       int    `json:"total"`
	IsLastChunk bool   `json:"is_last_chunk"`
}

// EmailMessage is the payload for TypeProcessEmail: a fully parsed message,
// ready for thread resolution and persistence.
type EmailMessage struct {
	TenantID  string   `json:"tenant_id"`
	SourceID  int64    `json:"source_id"`
	MessageID string   `json:"message_id"`
	Subject   string   `json:"subject"`
	FromEmail string   `json:"from_email"`
	FromName  string   `json:"from_name"`
	ToEmails  []string `json:"to_emails"`
	CcEmails  []string `json:"cc_emails"`
	SentAtRFC string   `json:"sent_at"`
	BodyText  string   `json:"body_text"`
	BodyHTML  string   `json:"body_html"`
	InReplyTo string   `json:"in_reply_to"`
	RefIDs    []string `json:"references"`
}

// EmailRefMessage is the payload for TypeProcessEmailRef: the message body
// lives in blob storage at BlobKey rather than inline.
type EmailRefMessage struct {
	TenantID  string `json:"tenant_id"`
	SourceID  int64  `json:"source_id"`
	MessageID string `json:"message_id"`
	BlobKey   string `json:"blob_key"`
}

// Encode marshals a typed payload into an Envelope ready for Producer.Publish.
func Encode(t Type, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: raw}, nil
}
