package sqlite

import (
	"context"
	"database/sql"

	"hybridmail/internal/domain"
	"hybridmail/internal/tenant"
)

// FindThreadID resolves a message's thread by walking its In-Reply-To and
// References hints against already-materialized messages for the tenant.
// It returns the thread id of a matching message that has one; if messages
// match but none has a thread id, it returns a matched message's own row id
// (that message then serves as the thread root). It returns nil when there
// are no hints or nothing matches.
func (s *Store) FindThreadID(ctx context.Context, scope tenant.Scope, hints domain.ThreadHints) (*int64, error) {
	candidates := make([]string, 0, 1+len(hints.References))
	if hints.InReplyTo != "" {
		candidates = append(candidates, hints.InReplyTo)
	}
	candidates = append(candidates, hints.References...)
	if len(candidates) == 0 {
		return nil, nil
	}

	var threadID sql.NullInt64
	var ownID int64
	err := queryInChunks(s.db, candidates, []interface{}{scope.ID()}, `
		SELECT id, thread_id FROM messages WHERE tenant_id = ? AND message_id IN (%s)
	`, func(rows *sql.Rows) error {
		if threadID.Valid {
			return nil
		}
		var id int64
		var tid sql.NullInt64
		if err := rows.Scan(&id, &tid); err != nil {
			return err
		}
		ownID = id
		threadID = tid
		return nil
	})
	if err != nil {
		return nil, err
	}
	if threadID.Valid {
		t := threadID.Int64
		return &t, nil
	}
	if ownID != 0 {
		return &ownID, nil
	}
	return nil, nil
}

// UpsertMessage idempotently inserts a message keyed on (tenant_id,
// message_id); if the message already exists (a mbox re-ingest or a
// duplicate Message-Id), its id is returned without modifying the row.
func (s *Store) UpsertMessage(ctx context.Context, msg domain.Message) (id int64, inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (tenant_id, source_id, message_id, thread_id, subject, body_text,
		                       body_html, sent_at, from_contact_id, has_attachments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, message_id) DO NOTHING
	`, msg.TenantID, msg.SourceID, msg.MessageID, msg.ThreadID, msg.Subject, msg.BodyText,
		msg.BodyHTML, msg.SentAt, msg.FromContactID, msg.HasAttachments)
	if err != nil {
		return 0, false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if rows == 0 {
		existing, err := s.findMessageID(ctx, msg.TenantID, msg.MessageID)
		return existing, false, err
	}
	newID, err := res.LastInsertId()
	return newID, true, err
}

func (s *Store) findMessageID(ctx context.Context, tenantID, messageID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM messages WHERE tenant_id = ? AND message_id = ?
	`, tenantID, messageID).Scan(&id)
	return id, err
}

// InsertRecipients adds the (message, contact, role) membership rows for a
// newly-inserted message. Re-inserting an existing membership is a no-op.
func (s *Store) InsertRecipients(ctx context.Context, recipients []domain.Recipient) error {
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO recipients (message_id, contact_id, role) VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range recipients {
			if _, err := stmt.ExecContext(ctx, r.MessageID, r.ContactID, r.Role); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertAttachments records the blob-store references for a message's
// attachments.
func (s *Store) InsertAttachments(ctx context.Context, attachments []domain.Attachment) error {
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO attachments (message_id, filename, content_type, size, blob_key)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range attachments {
			if _, err := stmt.ExecContext(ctx, a.MessageID, a.Filename, a.ContentType, a.Size, a.BlobKey); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetMessage returns a message by internal id, scoped to scope.
func (s *Store) GetMessage(ctx context.Context, scope tenant.Scope, id int64) (domain.Message, error) {
	var m domain.Message
	var threadID sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, source_id, message_id, thread_id, subject, body_text, body_html,
		       sent_at, from_contact_id, has_attachments, created_at
		FROM messages WHERE tenant_id = ? AND id = ?
	`, scope.ID(), id)
	if err := row.Scan(&m.ID, &m.TenantID, &m.SourceID, &m.MessageID, &threadID, &m.Subject,
		&m.BodyText, &m.BodyHTML, &m.SentAt, &m.FromContactID, &m.HasAttachments, &m.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	if threadID.Valid {
		t := threadID.Int64
		m.ThreadID = &t
	}
	return m, nil
}
