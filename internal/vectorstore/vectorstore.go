// Package vectorstore is the dense vector index: one row per message,
// backed by pgvector, queried by cosine distance.
package vectorstore

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"hybridmail/internal/domain"
	"hybridmail/internal/tenant"
)

// Store is the port the materializer and retrieval pipeline depend on.
type Store struct {
	db *pgxpool.Pool
}

// New wraps an existing pgx pool. The caller is expected to have already
// run the schema migration that creates vector_entries with the pgvector
// extension enabled.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Upsert writes or replaces the vector for a message, keyed by message id.
func (s *Store) Upsert(ctx context.Context, entry domain.VectorEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO vector_entries (message_id, tenant_id, embedding, subject, sent_at, from_email)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			embedding = EXCLUDED.embedding,
			subject = EXCLUDED.subject,
			sent_at = EXCLUDED.sent_at,
			from_email = EXCLUDED.from_email
	`, entry.MessageID, entry.Metadata.TenantID, pgVector(entry.Values),
		entry.Metadata.Subject, entry.Metadata.SentAt, entry.Metadata.FromEmail)
	return err
}

// UpsertBatch upserts several vectors. There is no batched pgvector INSERT
// form that keeps per-row ON CONFLICT semantics simple, so each row is
// written individually within the caller's tenant-scoped request.
func (s *Store) UpsertBatch(ctx context.Context, entries []domain.VectorEntry) error {
	for _, e := range entries {
		if err := s.Upsert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Match is one scored hit from a top-K query.
type Match struct {
	MessageID int64
	Score     float64 // cosine similarity, 1 - distance
	Metadata  domain.VectorMetadata
}

// Query returns the top K vectors nearest to embedding, scoped to scope.
// Tenant scoping happens both in this query's WHERE clause and, per the
// data model's anti-staleness rule, is re-verified by the caller against
// the relational store before a match is trusted.
func (s *Store) Query(ctx context.Context, scope tenant.Scope, embedding []float32, k int) ([]Match, error) {
	rows, err := s.db.Query(ctx, `
		SELECT message_id, 1 - (embedding <=> $1) AS score, subject, sent_at, from_email
		FROM vector_entries
		WHERE tenant_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgVector(embedding), scope.ID(), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		m.Metadata.TenantID = scope.ID()
		if err := rows.Scan(&m.MessageID, &m.Score, &m.Metadata.Subject, &m.Metadata.SentAt, &m.Metadata.FromEmail); err != nil {
			return nil, err
		}
		m.Metadata.MessageID = m.MessageID
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteByID removes a message's vector. Nothing in this module calls it.
func (s *Store) DeleteByID(ctx context.Context, messageID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM vector_entries WHERE message_id = $1`, messageID)
	return err
}

// pgVector renders a float32 slice in pgvector's text input format.
func pgVector(v []float32) string {
	if len(v) == 0 {
		return "[0]"
	}
	buf := make([]byte, 0, len(v)*13+2)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(f), 'f', 6, 32)
	}
	buf = append(buf, ']')
	return string(buf)
}
