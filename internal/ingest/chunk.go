// Package ingest implements the chunk-parser half of the ingestion pipeline:
// a queue handler that turns one arrived byte chunk of a source file into
// per-message queue work, chaining itself to the next chunk.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hybridmail/internal/blob"
	"hybridmail/internal/domain"
	"hybridmail/internal/kv"
	"hybridmail/internal/mbox"
	"hybridmail/internal/queue"
	"hybridmail/internal/rfc5322"
	"hybridmail/internal/tenant"
)

// inlineBodyCap is the maximum serialized size of a process-email payload
// before its body is spilled to the blob store and a process-email-ref is
// enqueued instead.
const inlineBodyCap = 200 * 1024

// carryoverTTL is how long a chunk's trailing partial message survives in
// KV, long enough to outlive the time until the next chunk is processed.
const carryoverTTL = 24 * time.Hour

// SourceStore is the subset of the relational store the chunk handler needs.
type SourceStore interface {
	IncrementExpected(ctx context.Context, scope tenant.Scope, sourceID, delta int64) (int64, error)
	MarkFailed(ctx context.Context, scope tenant.Scope, sourceID int64, errMsg string) error
}

// ChunkHandler implements queue.Handler for queue.TypeProcessChunk messages.
type ChunkHandler struct {
	Blob     blob.Store
	KV       *kv.Store
	Producer *queue.Producer
	Sources  SourceStore
	Log      zerolog.Logger
}

// Handle runs one iteration of the chunk algorithm: fetch chunk bytes, merge
// with carryover, split on envelope boundaries, enqueue one process-email(-ref)
// per complete message, persist the new carryover, chain the next chunk, and
// clean up.
func (h *ChunkHandler) Handle(ctx context.Context, env queue.Envelope) error {
	var msg queue.ChunkMessage
	if err := unmarshalPayload(env, &msg); err != nil {
		return fmt.Errorf("ingest: decode chunk message: %w", err)
	}
	scope, err := tenant.NewScope(msg.TenantID)
	if err != nil {
		return fmt.Errorf("ingest: invalid tenant id on chunk message: %w", err)
	}

	chunkKey := blob.ChunkKey(msg.SourceID, msg.ChunkIndex)
	reader, err := h.Blob.Get(ctx, chunkKey)
	if err != nil {
		return fmt.Errorf("ingest: fetch chunk %s: %w", chunkKey, err)
	}
	var chunkBuf bytes.Buffer
	_, readErr := chunkBuf.ReadFrom(reader)
	reader.Close()
	if readErr != nil {
		return fmt.Errorf("ingest: read chunk %s: %w", chunkKey, readErr)
	}

	carryover, err := h.KV.GetCarryover(ctx, msg.SourceID)
	if err != nil {
		return fmt.Errorf("ingest: read carryover: %w", err)
	}

	buffer := append(append([]byte{}, carryover...), chunkBuf.Bytes()...)
	rawMessages, nextCarryover := mbox.Split(buffer, msg.IsLastChunk)

	now := time.Now().UTC()
	envelopes := make([]queue.Envelope, 0, len(rawMessages))
	for _, raw := range rawMessages {
		parsed, ok := rfc5322.Parse(raw.Body(), now)
		if !ok {
			h.Log.Warn().Int64("source_id", msg.SourceID).Str("envelope", raw.FromLine).Msg("dropping unparseable message")
			continue
		}
		env, err := h.buildEmailEnvelope(ctx, msg, parsed)
		if err != nil {
			h.Log.Error().Err(err).Int64("source_id", msg.SourceID).Msg("failed to build email envelope")
			continue
		}
		envelopes = append(envelopes, env)
	}

	totalExpected, err := h.Sources.IncrementExpected(ctx, scope, msg.SourceID, int64(len(envelopes)))
	if err != nil {
		return fmt.Errorf("ingest: increment expected: %w", err)
	}

	if len(envelopes) > 0 {
		if err := h.Producer.PublishBatch(ctx, envelopes); err != nil {
			return fmt.Errorf("ingest: publish email batch: %w", err)
		}
	}

	if msg.IsLastChunk {
		if err := h.KV.DeleteCarryover(ctx, msg.SourceID); err != nil {
			h.Log.Warn().Err(err).Int64("source_id", msg.SourceID).Msg("failed to delete carryover")
		}
		if totalExpected == 0 {
			if err := h.Sources.MarkFailed(ctx, scope, msg.SourceID, "no messages found"); err != nil {
				h.Log.Error().Err(err).Int64("source_id", msg.SourceID).Msg("failed to mark empty source as failed")
			}
		}
	} else {
		if err := h.KV.SetCarryover(ctx, msg.SourceID, nextCarryover, carryoverTTL); err != nil {
			return fmt.Errorf("ingest: write carryover: %w", err)
		}
		nextMsg := msg
		nextMsg.ChunkIndex++
		nextMsg.IsLastChunk = nextMsg.Total > 0 && nextMsg.ChunkIndex == nextMsg.Total-1
		if err := h.Producer.Publish(ctx, queue.TypeProcessChunk, nextMsg); err != nil {
			return fmt.Errorf("ingest: enqueue next chunk: %w", err)
		}
	}

	if err := h.Blob.Delete(ctx, chunkKey); err != nil {
		h.Log.Warn().Err(err).Str("key", chunkKey).Msg("failed to delete consumed chunk")
	}

	return nil
}

func (h *ChunkHandler) buildEmailEnvelope(ctx context.Context, chunkMsg queue.ChunkMessage, parsed domain.ParsedMessage) (queue.Envelope, error) {
	emailMsg := toEmailMessage(chunkMsg, parsed)

	inline, err := queue.Encode(queue.TypeProcessEmail, emailMsg)
	if err != nil {
		return queue.Envelope{}, err
	}
	if len(inline.Payload) <= inlineBodyCap {
		return inline, nil
	}

	spillKey := blob.EmailBodySpillKey(chunkMsg.SourceID, parsed.MessageID)
	body := []byte(parsed.BodyText)
	if err := h.Blob.Put(ctx, spillKey, bytes.NewReader(body), "text/plain; charset=utf-8"); err != nil {
		return queue.Envelope{}, fmt.Errorf("spill oversize body: %w", err)
	}

	ref := queue.EmailRefMessage{
		TenantID:  chunkMsg.TenantID,
		SourceID:  chunkMsg.SourceID,
		MessageID: parsed.MessageID,
		BlobKey:   spillKey,
	}
	return queue.Encode(queue.TypeProcessEmailRef, ref)
}

func toEmailMessage(chunkMsg queue.ChunkMessage, parsed domain.ParsedMessage) queue.EmailMessage {
	toEmails := make([]string, len(parsed.To))
	for i, a := range parsed.To {
		toEmails[i] = a.Email
	}
	ccEmails := make([]string, len(parsed.Cc))
	for i, a := range parsed.Cc {
		ccEmails[i] = a.Email
	}
	return queue.EmailMessage{
		TenantID:  chunkMsg.TenantID,
		SourceID:  chunkMsg.SourceID,
		MessageID: parsed.MessageID,
		Subject:   parsed.Subject,
		FromEmail: parsed.FromEmail,
		FromName:  parsed.FromName,
		ToEmails:  toEmails,
		CcEmails:  ccEmails,
		SentAtRFC: parsed.SentAt.Format(time.RFC3339),
		BodyText:  parsed.BodyText,
		BodyHTML:  parsed.BodyHTML,
		InReplyTo: parsed.ThreadHints.InReplyTo,
		RefIDs:    parsed.ThreadHints.References,
	}
}
