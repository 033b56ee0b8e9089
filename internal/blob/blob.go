// Package blob provides opaque byte storage for uploaded source chunks,
// attachment bytes, and oversize message-body spills.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when a key has no object.
var ErrNotFound = errors.New("blob: not found")

// Store is the port every component that touches blob storage depends on.
type Store interface {
	// Put writes body to key, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// Get returns a reader for the object at key. The caller must close it.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ChunkKey is the blob key an uploaded source chunk is stored under.
// index is zero-padded to 6 digits so lexical and numeric listing order
// agree.
func ChunkKey(sourceID int64, index int) string {
	return fmt.Sprintf("uploads/%d/chunk-%06d", sourceID, index)
}

// AttachmentKey is the blob key an attachment's bytes are stored under.
func AttachmentKey(tenantID string, messageID, attachmentID int64, filename string) string {
	return fmt.Sprintf("%s/%d/%d/%s", tenantID, messageID, attachmentID, filename)
}

// EmailBodySpillKey is the blob key an oversize message body is spilled to
// before a process-email-ref message references it.
func EmailBodySpillKey(sourceID int64, id string) string {
	return fmt.Sprintf("uploads/%d/email-body-%s", sourceID, id)
}
